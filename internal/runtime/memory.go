// Package runtime executes contracts inside a wazero sandbox and provides
// the host import surface they are compiled against.
package runtime

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/cosmwasgo/wasmvm/types"
)

// Limits for data moving across the sandbox boundary. Anything bigger is
// rejected before it is copied.
const (
	maxLengthDBKey      = 100_000
	maxLengthDBValue    = 100_000
	maxLengthAddress    = 200
	maxLengthQueryChain = 100_000
	// maxLengthDebug caps debug log messages
	maxLengthDebug = 2 * 1024 * 1024
	// maxLengthResult caps data read back from a region the contract returned
	maxLengthResult = 64 * 1024 * 1024
)

// regionSize is the byte size of a Region struct in linear memory.
const regionSize = 12

// Region describes a section of the contract's linear memory:
// a 12 byte struct of three little-endian u32 fields. The contract allocates
// regions through its exported allocator; the host only reads and fills them.
type Region struct {
	// Offset is the start of the described data in linear memory
	Offset uint32
	// Capacity is the number of bytes reserved at Offset
	Capacity uint32
	// Length is the number of bytes in use, always <= Capacity
	Length uint32
}

// Validate checks the region invariants against the current memory size.
// A region violating them means the contract is buggy or malicious, and the
// call must fail rather than read out of bounds.
func (r Region) Validate(memorySize uint64) error {
	if r.Offset == 0 {
		return fmt.Errorf("region has zero offset")
	}
	if r.Length > r.Capacity {
		return fmt.Errorf("region length %d exceeds capacity %d", r.Length, r.Capacity)
	}
	if uint64(r.Offset)+uint64(r.Capacity) > memorySize {
		return fmt.Errorf("region out of bounds: offset %d capacity %d, memory size %d", r.Offset, r.Capacity, memorySize)
	}
	return nil
}

// readRegion loads and validates the Region struct at ptr.
func readRegion(mem api.Memory, ptr uint32) (Region, error) {
	raw, ok := mem.Read(ptr, regionSize)
	if !ok {
		return Region{}, fmt.Errorf("cannot read region descriptor at offset %d", ptr)
	}
	region := Region{
		Offset:   binary.LittleEndian.Uint32(raw[0:4]),
		Capacity: binary.LittleEndian.Uint32(raw[4:8]),
		Length:   binary.LittleEndian.Uint32(raw[8:12]),
	}
	if err := region.Validate(uint64(mem.Size())); err != nil {
		return Region{}, err
	}
	return region, nil
}

// readRegionData reads the data a region points at, enforcing maxLength.
// The returned slice is a copy, safe to keep after the call returns.
func readRegionData(mem api.Memory, ptr uint32, maxLength uint32) ([]byte, error) {
	region, err := readRegion(mem, ptr)
	if err != nil {
		return nil, err
	}
	if region.Length > maxLength {
		return nil, types.RegionLengthTooBigError{Length: region.Length, MaxLength: maxLength}
	}
	if region.Length == 0 {
		return []byte{}, nil
	}
	data, ok := mem.Read(region.Offset, region.Length)
	if !ok {
		return nil, fmt.Errorf("cannot read %d bytes at offset %d", region.Length, region.Offset)
	}
	return append([]byte(nil), data...), nil
}

// writeToRegion fills an existing region with data and updates its length
// field. Fails with RegionTooSmallError if the capacity is not sufficient;
// the region keeps its previous content in that case.
func writeToRegion(mem api.Memory, ptr uint32, data []byte) error {
	region, err := readRegion(mem, ptr)
	if err != nil {
		return err
	}
	if uint32(len(data)) > region.Capacity {
		return types.RegionTooSmallError{Size: region.Capacity, Required: uint32(len(data))}
	}
	if len(data) > 0 {
		if !mem.Write(region.Offset, data) {
			return fmt.Errorf("cannot write %d bytes at offset %d", len(data), region.Offset)
		}
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if !mem.Write(ptr+8, lenBuf[:]) {
		return fmt.Errorf("cannot update region length at offset %d", ptr+8)
	}
	return nil
}

// allocateFor asks the contract's allocator for a region of the given size
// and fills it with data. Returns the region pointer to hand back to the
// contract, which takes ownership of the allocation.
func allocateFor(ctx context.Context, m api.Module, data []byte) (uint32, error) {
	allocate := m.ExportedFunction("allocate")
	if allocate == nil {
		return 0, fmt.Errorf("contract does not export an allocator")
	}
	res, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("allocate failed: %w", err)
	}
	if len(res) != 1 {
		return 0, fmt.Errorf("allocate returned %d results, expected 1", len(res))
	}
	regionPtr := uint32(res[0])
	if regionPtr == 0 {
		return 0, fmt.Errorf("allocate returned a null pointer")
	}
	if err := writeToRegion(m.Memory(), regionPtr, data); err != nil {
		return 0, err
	}
	return regionPtr, nil
}
