package types

import "fmt"

type (
	// HumanizeAddressFunc is a type for functions that convert a canonical address (bytes)
	// to a human readable address (typically bech32). The uint64 return is the
	// gas the conversion cost, charged to the calling contract.
	HumanizeAddressFunc func([]byte) (string, uint64, error)
	// CanonicalizeAddressFunc is a type for functions that convert a human readable address (typically bech32)
	// to a canonical address (bytes).
	CanonicalizeAddressFunc func(string) ([]byte, uint64, error)
	// ValidateAddressFunc is a type for functions that validate a human readable address (typically bech32).
	ValidateAddressFunc func(string) (uint64, error)
)

// GoAPI is the set of address conversion callbacks the host provides to a
// contract call. Conversions must be pure: the same input always yields the
// same output and the same gas cost.
type GoAPI struct {
	HumanizeAddress     HumanizeAddressFunc
	CanonicalizeAddress CanonicalizeAddressFunc
	ValidateAddress     ValidateAddressFunc
}

// NewValidateAddress derives a validator from the conversion pair: an
// address is valid when canonicalizing it and humanizing the result yields
// the input unchanged. Chains with a cheaper native check can provide their
// own ValidateAddressFunc instead.
func NewValidateAddress(canonicalize CanonicalizeAddressFunc, humanize HumanizeAddressFunc) ValidateAddressFunc {
	return func(human string) (uint64, error) {
		canonical, gasCanon, err := canonicalize(human)
		if err != nil {
			return gasCanon, err
		}
		restored, gasHuman, err := humanize(canonical)
		gasUsed := gasCanon + gasHuman
		if err != nil {
			return gasUsed, err
		}
		if restored != human {
			return gasUsed, fmt.Errorf("address %q is not normalized", human)
		}
		return gasUsed, nil
	}
}
