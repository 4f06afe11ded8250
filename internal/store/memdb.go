// Package store provides in-memory storage backends for contract state:
// a btree-based KVStore and a write-buffering transaction overlay.
package store

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/cosmwasgo/wasmvm/types"
)

const bTreeDegree = 32

type item struct {
	key   []byte
	value []byte
}

func byKeys(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// MemDB is an in-memory KVStore backed by a btree. It is safe for concurrent
// use. Iterators operate on a snapshot of the keys taken at creation time, so
// writes during iteration do not invalidate them.
type MemDB struct {
	mtx  sync.RWMutex
	tree *btree.BTreeG[item]
}

var _ types.KVStore = (*MemDB)(nil)

func NewMemDB() *MemDB {
	return &MemDB{
		tree: btree.NewG(bTreeDegree, byKeys),
	}
}

// Get returns nil iff key doesn't exist. Empty values round-trip as empty
// non-nil slices.
func (db *MemDB) Get(key []byte) []byte {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	it, found := db.tree.Get(item{key: key})
	if !found {
		return nil
	}
	if it.value == nil {
		return []byte{}
	}
	return append([]byte(nil), it.value...)
}

func (db *MemDB) Set(key, value []byte) {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	db.tree.ReplaceOrInsert(item{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

func (db *MemDB) Delete(key []byte) {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	db.tree.Delete(item{key: key})
}

// Len returns the number of stored entries.
func (db *MemDB) Len() int {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	return db.tree.Len()
}

// Iterator iterates in ascending order over [start, end).
// A nil start or end means unbounded on that side.
func (db *MemDB) Iterator(start, end []byte) types.Iterator {
	return db.newIterator(start, end, false)
}

// ReverseIterator iterates in descending order over [start, end).
func (db *MemDB) ReverseIterator(start, end []byte) types.Iterator {
	return db.newIterator(start, end, true)
}

func (db *MemDB) newIterator(start, end []byte, reverse bool) types.Iterator {
	db.mtx.RLock()
	defer db.mtx.RUnlock()

	// Snapshot the range up front. Contract calls iterate over modest
	// domains, and a snapshot keeps iterator semantics independent of
	// later writes.
	var items []item
	collect := func(it item) bool {
		items = append(items, it)
		return true
	}
	switch {
	case start == nil && end == nil:
		db.tree.Ascend(collect)
	case start == nil:
		db.tree.AscendLessThan(item{key: end}, collect)
	case end == nil:
		db.tree.AscendGreaterOrEqual(item{key: start}, collect)
	default:
		if bytes.Compare(start, end) >= 0 {
			break
		}
		db.tree.AscendRange(item{key: start}, item{key: end}, collect)
	}
	if reverse {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	return &sliceIterator{
		start: start,
		end:   end,
		items: items,
	}
}

// sliceIterator walks a pre-collected snapshot of items.
type sliceIterator struct {
	start []byte
	end   []byte
	items []item
	pos   int
}

var _ types.Iterator = (*sliceIterator)(nil)

func (it *sliceIterator) Domain() (start, end []byte) {
	return it.start, it.end
}

func (it *sliceIterator) Valid() bool {
	return it.pos < len(it.items)
}

func (it *sliceIterator) Next() {
	it.assertValid()
	it.pos++
}

func (it *sliceIterator) Key() []byte {
	it.assertValid()
	return it.items[it.pos].key
}

func (it *sliceIterator) Value() []byte {
	it.assertValid()
	v := it.items[it.pos].value
	if v == nil {
		return []byte{}
	}
	return v
}

func (it *sliceIterator) Error() error {
	return nil
}

func (it *sliceIterator) Close() error {
	it.items = nil
	it.pos = 0
	return nil
}

func (it *sliceIterator) assertValid() {
	if !it.Valid() {
		panic("iterator is invalid")
	}
}
