package types

// Gas is a type alias for a unit of gas in the deterministic gas schedule.
type Gas = uint64

// GasMeter is a read-only version of the sdk gas meter.
// It allows the host querier to report gas consumed outside the contract.
type GasMeter interface {
	GasConsumed() Gas
}

// GasReport is a report of how gas was spent during a single contract call.
//
// All values are in the VM's internal gas unit. The caller is responsible
// for converting to the chain's gas unit if they differ.
type GasReport struct {
	// Limit is the maximum gas the call was allowed to consume
	Limit uint64
	// Remaining is the gas left at the end of the call
	Remaining uint64
	// UsedExternally is gas consumed by callbacks into the host (storage,
	// address conversion, querier)
	UsedExternally uint64
	// UsedInternally is gas consumed inside the VM (marshaling and contract
	// execution), excluding externally used gas
	UsedInternally uint64
}

func EmptyGasReport(limit uint64) GasReport {
	return GasReport{
		Limit:     limit,
		Remaining: limit,
	}
}
