// Package types provides core types used throughout the wasmvm package.
package types

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shamaton/msgpack/v2"
)

// Uint64 is a wrapper for uint64, but it is marshalled to and from JSON as a string.
// Integers beyond 53 bits lose precision in numeric JSON parsers, so they must
// never travel as JSON numbers.
type Uint64 uint64

func (u Uint64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(u), 10))
}

func (u *Uint64) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("cannot unmarshal %s into Uint64, expected string-encoded integer", data)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("cannot unmarshal %s into Uint64, failed to parse integer", data)
	}
	*u = Uint64(v)
	return nil
}

// Int64 is a wrapper for int64, but it is marshalled to and from JSON as a string
type Int64 int64

func (i Int64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(i), 10))
}

func (i *Int64) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("cannot unmarshal %s into Int64, expected string-encoded integer", data)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("cannot unmarshal %s into Int64, failed to parse integer", data)
	}
	*i = Int64(v)
	return nil
}

// HumanAddress is a printable (typically bech32 encoded) address string. Just use it as a label for developers.
type HumanAddress = string

// CanonicalAddress uses standard base64 encoding, just use it as a label for developers
type CanonicalAddress = []byte

// Coin is a string representation of the sdk.Coin type (more portable than sdk.Int)
type Coin struct {
	Denom  string `json:"denom"`  // type, eg. "ATOM"
	Amount string `json:"amount"` // string encoding of decimal value, eg. "12.3456"
}

func NewCoin(amount uint64, denom string) Coin {
	return Coin{
		Denom:  denom,
		Amount: strconv.FormatUint(amount, 10),
	}
}

// Array is a wrapper around a slice that ensures that we get "[]" JSON for nil values.
// When unmarshalling, we get an empty slice for "[]" and "null".
//
// This is needed for fields the contract deserializes into a list type, where
// `null` would be rejected.
type Array[C any] []C

// MarshalJSON ensures that we get "[]" for nil arrays
func (a Array[C]) MarshalJSON() ([]byte, error) {
	if len(a) == 0 {
		return []byte("[]"), nil
	}
	var raw []C = a
	return json.Marshal(raw)
}

// UnmarshalJSON ensures that we get an empty slice for "[]" and "null"
func (a *Array[C]) UnmarshalJSON(data []byte) error {
	var raw []C
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	// make sure we deserialize [] back to empty slice
	if len(raw) == 0 {
		raw = []C{}
	}
	*a = raw
	return nil
}

// AnalysisReport contains static analysis info of the contract (the Wasm code
// to be precise). This type is returned by VM.AnalyzeCode().
type AnalysisReport struct {
	HasIBCEntryPoints bool
	// Entrypoints is the sorted list of entry points the contract exports.
	// The set is resolved once at code storage time and cached alongside
	// the compiled artifact.
	Entrypoints []string
}

// HasEntrypoint reports whether the given export was found during analysis.
func (r AnalysisReport) HasEntrypoint(name string) bool {
	for _, e := range r.Entrypoints {
		if e == name {
			return true
		}
	}
	return false
}

// Metrics are cache statistics for introspection and monitoring.
type Metrics struct {
	HitsPinnedMemoryCache     uint32
	HitsMemoryCache           uint32
	HitsFsCache               uint32
	Misses                    uint32
	ElementsPinnedMemoryCache uint64
	ElementsMemoryCache       uint64
	// Cumulative size of all elements in pinned memory cache (in bytes)
	SizePinnedMemoryCache uint64
	// Cumulative size of all elements in memory cache (in bytes)
	SizeMemoryCache uint64
}

type PerModuleMetrics struct {
	Hits uint32 `msgpack:"hits"`
	Size uint64 `msgpack:"size"`
}

type PerModuleEntry struct {
	Checksum Checksum
	Metrics  PerModuleMetrics
}

type PinnedMetrics struct {
	PerModule []PerModuleEntry `msgpack:"per_module"`
}

func (pm *PinnedMetrics) UnmarshalMessagePack(data []byte) error {
	return msgpack.UnmarshalAsArray(data, pm)
}

func (pm *PinnedMetrics) MarshalMessagePack() ([]byte, error) {
	return msgpack.MarshalAsArray(pm)
}
