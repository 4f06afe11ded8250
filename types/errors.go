package types

import (
	"fmt"
)

// OutOfGasError is returned when the gas limit of a call is exhausted.
// Descriptor names the operation that ran out.
type OutOfGasError struct {
	Descriptor string
}

var _ error = OutOfGasError{}

func (e OutOfGasError) Error() string {
	return fmt.Sprintf("out of gas: %s", e.Descriptor)
}

// RegionLengthTooBigError is returned when a contract passes a region whose
// length exceeds the limit the host accepts for that kind of data.
type RegionLengthTooBigError struct {
	Length    uint32
	MaxLength uint32
}

var _ error = RegionLengthTooBigError{}

func (e RegionLengthTooBigError) Error() string {
	return fmt.Sprintf("region length too big: got %d, limit %d", e.Length, e.MaxLength)
}

// RegionTooSmallError is returned when the host needs to write data into a
// region whose capacity is not sufficient.
type RegionTooSmallError struct {
	Size     uint32
	Required uint32
}

var _ error = RegionTooSmallError{}

func (e RegionTooSmallError) Error() string {
	return fmt.Sprintf("region too small: size %d, required %d", e.Size, e.Required)
}

// ValidationError is returned when Wasm bytecode is rejected during static
// validation, before any compilation or storage happens.
type ValidationError struct {
	Msg string
}

var _ error = ValidationError{}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Msg)
}

// NotFoundError is returned when a checksum is not present in the cache.
type NotFoundError struct {
	Kind string
}

var _ error = NotFoundError{}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Kind)
}

// IntegrityError is returned when code loaded from disk does not hash to the
// checksum it is stored under.
type IntegrityError struct{}

var _ error = IntegrityError{}

func (e IntegrityError) Error() string {
	return "integrity error: code does not match its checksum"
}

// InstanceBusyError is returned when a call is attempted on an instance that
// is already executing. Instances are single-threaded; re-entrant and
// concurrent calls on the same instance are rejected.
type InstanceBusyError struct{}

var _ error = InstanceBusyError{}

func (e InstanceBusyError) Error() string {
	return "instance is currently executing a call"
}

// ReadOnlyContextError is returned when a contract attempts a storage write
// in a context where writes are forbidden (query and IBC encode calls).
type ReadOnlyContextError struct{}

var _ error = ReadOnlyContextError{}

func (e ReadOnlyContextError) Error() string {
	return "cannot modify storage in read-only context"
}

// UninitializedContractError is returned when a call requires an entry point
// the contract does not export.
type UninitializedContractError struct {
	Export string
}

var _ error = UninitializedContractError{}

func (e UninitializedContractError) Error() string {
	return fmt.Sprintf("contract does not export %q", e.Export)
}
