package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmwasgo/wasmvm/types"
)

type closeCountingIterator struct {
	types.Iterator
	closed int
}

func (c *closeCountingIterator) Close() error {
	c.closed++
	return nil
}

func TestIteratorTableHandles(t *testing.T) {
	var table iteratorTable

	a := &closeCountingIterator{}
	b := &closeCountingIterator{}
	idA := table.add(a)
	idB := table.add(b)

	// handles start at 1 and are issued in order
	require.Equal(t, uint32(1), idA)
	require.Equal(t, uint32(2), idB)

	assert.Same(t, types.Iterator(a), table.get(idA))
	assert.Same(t, types.Iterator(b), table.get(idB))
}

func TestIteratorTableUnknownHandle(t *testing.T) {
	var table iteratorTable
	table.add(&closeCountingIterator{})

	assert.Nil(t, table.get(0))
	assert.Nil(t, table.get(2))
	assert.Nil(t, table.get(99))
}

func TestIteratorTableCloseAll(t *testing.T) {
	var table iteratorTable
	a := &closeCountingIterator{}
	b := &closeCountingIterator{}
	table.add(a)
	table.add(b)

	table.closeAll()
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
	assert.Nil(t, table.get(1))
	assert.Nil(t, table.get(2))

	// idempotent
	table.closeAll()
	assert.Equal(t, 1, a.closed)
}
