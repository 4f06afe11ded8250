package store

import (
	"bytes"
	"sort"

	"github.com/cosmwasgo/wasmvm/types"
)

// pendingOp is a buffered write. A nil value with delete=true is a pending
// deletion.
type pendingOp struct {
	value  []byte
	delete bool
}

// StorageTransaction buffers all writes over a base KVStore until Commit.
// Reads observe the buffered writes layered over the base. Discard drops the
// buffer, leaving the base untouched.
//
// This is the rollback mechanism behind atomic packet handling: run the
// contract against a transaction, then commit on success or discard on error.
type StorageTransaction struct {
	base    types.KVStore
	ops     map[string]pendingOp
	settled bool
}

var _ types.KVStore = (*StorageTransaction)(nil)

func NewStorageTransaction(base types.KVStore) *StorageTransaction {
	return &StorageTransaction{
		base: base,
		ops:  make(map[string]pendingOp),
	}
}

func (tx *StorageTransaction) Get(key []byte) []byte {
	if op, ok := tx.ops[string(key)]; ok {
		if op.delete {
			return nil
		}
		if op.value == nil {
			return []byte{}
		}
		return append([]byte(nil), op.value...)
	}
	return tx.base.Get(key)
}

func (tx *StorageTransaction) Set(key, value []byte) {
	tx.assertLive()
	tx.ops[string(key)] = pendingOp{value: append([]byte(nil), value...)}
}

func (tx *StorageTransaction) Delete(key []byte) {
	tx.assertLive()
	tx.ops[string(key)] = pendingOp{delete: true}
}

// Commit applies the buffered writes to the base store. Keys are applied in
// ascending order to keep the write pattern deterministic. The transaction
// must not be used afterwards.
func (tx *StorageTransaction) Commit() {
	tx.assertLive()
	keys := make([]string, 0, len(tx.ops))
	for k := range tx.ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		op := tx.ops[k]
		if op.delete {
			tx.base.Delete([]byte(k))
		} else {
			tx.base.Set([]byte(k), op.value)
		}
	}
	tx.settled = true
	tx.ops = nil
}

// Discard drops all buffered writes. The transaction must not be used
// afterwards.
func (tx *StorageTransaction) Discard() {
	tx.settled = true
	tx.ops = nil
}

// Pending returns the number of buffered writes.
func (tx *StorageTransaction) Pending() int {
	return len(tx.ops)
}

func (tx *StorageTransaction) assertLive() {
	if tx.settled {
		panic("use of storage transaction after commit or discard")
	}
}

// Iterator merges buffered writes with the base store's range.
func (tx *StorageTransaction) Iterator(start, end []byte) types.Iterator {
	return tx.newIterator(start, end, false)
}

func (tx *StorageTransaction) ReverseIterator(start, end []byte) types.Iterator {
	return tx.newIterator(start, end, true)
}

func (tx *StorageTransaction) newIterator(start, end []byte, reverse bool) types.Iterator {
	// Merge by materializing: overlay the buffered ops onto the base range,
	// then walk the merged snapshot. Buffered deletions shadow base entries.
	merged := make(map[string][]byte)

	var baseIt types.Iterator
	if reverse {
		baseIt = tx.base.ReverseIterator(start, end)
	} else {
		baseIt = tx.base.Iterator(start, end)
	}
	for ; baseIt.Valid(); baseIt.Next() {
		merged[string(baseIt.Key())] = baseIt.Value()
	}
	_ = baseIt.Close()

	for k, op := range tx.ops {
		key := []byte(k)
		if !inDomain(key, start, end) {
			continue
		}
		if op.delete {
			delete(merged, k)
		} else {
			merged[k] = op.value
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	items := make([]item, len(keys))
	for i, k := range keys {
		items[i] = item{key: []byte(k), value: merged[k]}
	}
	return &sliceIterator{start: start, end: end, items: items}
}

func inDomain(key, start, end []byte) bool {
	if start != nil && bytes.Compare(key, start) < 0 {
		return false
	}
	if end != nil && bytes.Compare(key, end) >= 0 {
		return false
	}
	return true
}
