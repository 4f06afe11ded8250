package runtime

import (
	"github.com/cosmwasgo/wasmvm/types"
)

// iteratorTable tracks the open iterators of a single contract call.
// Handles are never reused within a call, so a stale handle from an earlier
// scan cannot alias a newer iterator.
type iteratorTable struct {
	iterators []types.Iterator
}

// add stores the iterator and returns its handle. Handles start at 1;
// 0 is reserved as the invalid handle.
func (t *iteratorTable) add(iter types.Iterator) uint32 {
	t.iterators = append(t.iterators, iter)
	return uint32(len(t.iterators))
}

// get returns the iterator for the handle, or nil for unknown or closed
// handles.
func (t *iteratorTable) get(id uint32) types.Iterator {
	if id == 0 || int(id) > len(t.iterators) {
		return nil
	}
	return t.iterators[id-1]
}

// closeAll releases every live iterator. Called at the end of each contract
// call; iterators never outlive the call that opened them.
func (t *iteratorTable) closeAll() {
	for i, iter := range t.iterators {
		if iter != nil {
			_ = iter.Close()
			t.iterators[i] = nil
		}
	}
}
