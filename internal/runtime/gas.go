package runtime

import (
	"github.com/cosmwasgo/wasmvm/types"
)

// Gas costs in the VM's internal gas unit. All costs are fixed constants so
// that a call consumes the same gas on every node replaying it.
const (
	// gasCostRead is charged per db_read, plus gasCostPerByte for the data moved
	gasCostRead uint64 = 150
	// gasCostWrite is charged per db_write or db_remove
	gasCostWrite uint64 = 300
	// gasCostIteratorCreate is charged per db_scan
	gasCostIteratorCreate uint64 = 300
	// gasCostIteratorNext is charged per db_next
	gasCostIteratorNext uint64 = 100
	// gasCostCanonicalize and gasCostHumanize cover the host call overhead;
	// the address implementation reports its own cost on top
	gasCostCanonicalize uint64 = 200
	gasCostHumanize     uint64 = 200
	// gasCostQuery is charged per query_chain, plus per-byte costs
	gasCostQuery uint64 = 500
	// gasCostPerByte is charged for every byte crossing the sandbox boundary
	gasCostPerByte uint64 = 1
)

// GasState meters a single contract call. It is not safe for concurrent use;
// each call carries its own state and contract execution is single-threaded.
type GasState struct {
	limit uint64
	used  uint64
	// externallyUsed tracks gas reported by host callbacks (address
	// conversion, querier) so the report can split internal from external.
	externallyUsed uint64
}

func NewGasState(limit uint64) *GasState {
	return &GasState{limit: limit}
}

// Consume charges amount against the limit. On exhaustion it returns
// types.OutOfGasError naming the operation; the caller must stop executing.
func (g *GasState) Consume(amount uint64, descriptor string) error {
	if g.used+amount > g.limit || g.used+amount < g.used {
		g.used = g.limit
		return types.OutOfGasError{Descriptor: descriptor}
	}
	g.used += amount
	return nil
}

// ConsumeExternal charges gas spent inside a host callback.
func (g *GasState) ConsumeExternal(amount uint64, descriptor string) error {
	if err := g.Consume(amount, descriptor); err != nil {
		return err
	}
	g.externallyUsed += amount
	return nil
}

// GasState doubles as the read-only meter for this call.
var _ types.GasMeter = (*GasState)(nil)

// GasConsumed implements types.GasMeter.
func (g *GasState) GasConsumed() types.Gas {
	return g.used
}

func (g *GasState) Limit() uint64 {
	return g.limit
}

func (g *GasState) Used() uint64 {
	return g.used
}

func (g *GasState) Remaining() uint64 {
	return g.limit - g.used
}

// Report summarizes consumption for the caller.
func (g *GasState) Report() types.GasReport {
	return types.GasReport{
		Limit:          g.limit,
		Remaining:      g.limit - g.used,
		UsedExternally: g.externallyUsed,
		UsedInternally: g.used - g.externallyUsed,
	}
}
