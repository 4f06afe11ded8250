package types

// Order is the iteration direction requested by a contract scan.
type Order int32

const (
	Ascending  Order = 1
	Descending Order = 2
)

// Iterator is the interface a storage backend must provide for range scans.
// It mirrors the semantics of cosmos-sdk store iterators: the start bound is
// inclusive, the end bound is exclusive, and nil bounds are unbounded.
type Iterator interface {
	// Domain returns the bounds the iterator was created with.
	Domain() (start, end []byte)
	// Valid reports whether the iterator points at a key/value pair.
	// Once invalid, an iterator never becomes valid again.
	Valid() bool
	// Next advances the iterator. Panics if the iterator is not valid.
	Next()
	// Key returns the current key. Panics if the iterator is not valid.
	Key() []byte
	// Value returns the current value. Panics if the iterator is not valid.
	Value() []byte
	// Error returns the last error, or nil. Must be checked after Valid
	// returns false to distinguish exhaustion from failure.
	Error() error
	// Close releases the iterator's resources.
	Close() error
}

// KVStore copies a subset of the cosmos-sdk store interface.
// It is the storage handle a contract call operates on.
type KVStore interface {
	// Get returns nil iff key doesn't exist. An empty value is a valid
	// stored value and must be returned as an empty non-nil slice.
	Get(key []byte) []byte
	Set(key, value []byte)
	Delete(key []byte)

	// Iterator iterates over a domain of keys in ascending order. End is
	// exclusive. Start must be less than end, or the iterator is invalid.
	// CONTRACT: no writes may happen within a domain while an iterator
	// exists over it.
	Iterator(start, end []byte) Iterator

	// ReverseIterator iterates over a domain of keys in descending order.
	// End is exclusive. Start must be less than end, or the iterator is
	// invalid.
	ReverseIterator(start, end []byte) Iterator
}

// Querier lets a contract synchronously read chain state beyond its own
// storage. Implementations must not mutate state.
//
// The embedded GasMeter reports gas spent on queries so far, so the caller
// can deduct it from the calling contract's meter deterministically.
type Querier interface {
	GasMeter
	// Query serves one request within the given gas limit. A nil error with
	// a valid JSON response means success; contract-level errors travel
	// inside the response, host-level failures as SystemError.
	Query(request QueryRequest, gasLimit uint64) ([]byte, error)
}
