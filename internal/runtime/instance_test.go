package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmwasgo/wasmvm/internal/store"
	"github.com/cosmwasgo/wasmvm/types"
)

func newTestInstance(limit uint64) (*Instance, *GasState) {
	gas := NewGasState(limit)
	env := NewEnvironment(store.NewMemDB(), testAPI(), &recordingQuerier{}, gas, nil)
	return NewInstance(nil, validContract(), env), gas
}

func TestInstanceGasIntrospection(t *testing.T) {
	inst, gas := newTestInstance(10_000)

	// fresh instance: full limit remaining, nothing consumed
	assert.Equal(t, uint64(10_000), inst.GasLeft())
	assert.Equal(t, types.EmptyGasReport(10_000), inst.GasReport())

	require.NoError(t, gas.Consume(1_200, "db_write"))
	require.NoError(t, gas.ConsumeExternal(300, "api"))

	assert.Equal(t, uint64(8_500), inst.GasLeft())
	report := inst.GasReport()
	assert.Equal(t, uint64(10_000), report.Limit)
	assert.Equal(t, uint64(8_500), report.Remaining)
	assert.Equal(t, uint64(300), report.UsedExternally)
	assert.Equal(t, uint64(1_200), report.UsedInternally)

	// the meter view reports total consumption
	var meter types.GasMeter = gas
	assert.Equal(t, types.Gas(1_500), meter.GasConsumed())
}

func TestInstanceMemorySize(t *testing.T) {
	inst, _ := newTestInstance(10_000)

	// no call has run yet
	assert.Equal(t, uint64(0), inst.MemorySize())
}

func TestInstanceReadOnlyToggle(t *testing.T) {
	inst, _ := newTestInstance(10_000)

	inst.ReadOnly(true)
	assert.True(t, inst.env.ReadOnly)
	inst.ReadOnly(false)
	assert.False(t, inst.env.ReadOnly)
}

func TestInstanceDestroyedRejectsCalls(t *testing.T) {
	inst, _ := newTestInstance(10_000)
	inst.Destroy()

	_, err := inst.Call(context.Background(), "execute")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destroyed")
}
