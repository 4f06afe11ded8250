package runtime

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/cosmwasgo/wasmvm/types"
)

// instance lifecycle states
const (
	stateReady int32 = iota
	stateExecuting
	stateDestroyed
)

// Instance binds a compiled module to the backend of one contract call
// series: a storage handle, the host API, a querier and a gas meter.
//
// An instance runs at most one call at a time. Host functions may not call
// back into the same instance, so re-entrant and concurrent calls are
// rejected with InstanceBusyError instead of deadlocking.
type Instance struct {
	rt       *Runtime
	compiled wazero.CompiledModule
	env      *Environment

	state atomic.Int32

	// lastMemorySize is the linear memory size observed at the end of the
	// most recent call, in bytes.
	lastMemorySize uint64
}

func NewInstance(rt *Runtime, compiled wazero.CompiledModule, env *Environment) *Instance {
	return &Instance{
		rt:       rt,
		compiled: compiled,
		env:      env,
	}
}

// Call invokes the named export with the given region arguments and returns
// the data of the result region. Each argument is marshaled into a fresh
// guest allocation; the export receives one region pointer per argument.
func (i *Instance) Call(ctx context.Context, export string, args ...[]byte) ([]byte, error) {
	if !i.state.CompareAndSwap(stateReady, stateExecuting) {
		if i.state.Load() == stateDestroyed {
			return nil, fmt.Errorf("instance already destroyed")
		}
		return nil, types.InstanceBusyError{}
	}
	defer i.state.CompareAndSwap(stateExecuting, stateReady)

	ctx, cancel := withEnvironment(ctx, i.env)
	defer cancel()
	defer i.env.iterators.closeAll()

	module, err := i.rt.wz.InstantiateModule(ctx, i.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("cannot instantiate contract: %w", err)
	}
	defer module.Close(ctx)

	fn := module.ExportedFunction(export)
	if fn == nil {
		return nil, types.UninitializedContractError{Export: export}
	}

	// Moving the arguments into the sandbox is charged per byte, like any
	// other boundary crossing.
	params := make([]uint64, len(args))
	for n, arg := range args {
		if err := i.env.Gas.Consume(gasCostPerByte*uint64(len(arg)), "input marshaling"); err != nil {
			return nil, err
		}
		ptr, err := allocateFor(ctx, module, arg)
		if err != nil {
			return nil, fmt.Errorf("cannot pass argument %d: %w", n, err)
		}
		params[n] = uint64(ptr)
	}

	results, callErr := i.safeCall(ctx, fn, params)
	i.lastMemorySize = uint64(module.Memory().Size())

	// A host-side failure recorded during the call outranks the trap wazero
	// reports for the forced termination.
	if envErr := i.env.Err(); envErr != nil {
		return nil, envErr
	}
	if callErr != nil {
		return nil, fmt.Errorf("contract execution failed: %w", callErr)
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("export %q returned %d results, expected 1", export, len(results))
	}
	resultPtr := uint32(results[0])
	if resultPtr == 0 {
		return nil, fmt.Errorf("export %q returned a null result region", export)
	}
	data, err := readRegionData(module.Memory(), resultPtr, maxLengthResult)
	if err != nil {
		return nil, fmt.Errorf("cannot read result of %q: %w", export, err)
	}
	if err := i.env.Gas.Consume(gasCostPerByte*uint64(len(data)), "result marshaling"); err != nil {
		return nil, err
	}
	if deallocate := module.ExportedFunction("deallocate"); deallocate != nil {
		_, _ = deallocate.Call(ctx, uint64(resultPtr))
	}
	return data, nil
}

// safeCall wraps the wasm invocation so that a panic escaping a host
// function surfaces as an error on this call instead of tearing down the
// process.
func (i *Instance) safeCall(ctx context.Context, fn api.Function, params []uint64) (results []uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("contract call panicked: %v", r)
		}
	}()
	return fn.Call(ctx, params...)
}

// GasReport returns the gas consumption of this instance so far.
func (i *Instance) GasReport() types.GasReport {
	return i.env.Gas.Report()
}

// GasLeft returns the remaining gas.
func (i *Instance) GasLeft() uint64 {
	return i.env.Gas.Remaining()
}

// MemorySize returns the linear memory size observed after the most recent
// call, in bytes. Zero before the first call.
func (i *Instance) MemorySize() uint64 {
	return i.lastMemorySize
}

// ReadOnly marks subsequent calls on this instance as read-only.
func (i *Instance) ReadOnly(ro bool) {
	i.env.ReadOnly = ro
}

// Destroy retires the instance. Further calls fail. The compiled module is
// owned by the cache and stays usable for other instances.
func (i *Instance) Destroy() {
	i.state.Store(stateDestroyed)
}
