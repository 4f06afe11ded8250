// Package wasmvm provides a sandboxed execution engine for Wasm smart
// contracts: code storage addressed by checksum, compiled module caching,
// metered execution and the host call surface contracts are built against.
package wasmvm

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/cosmwasgo/wasmvm/internal/cache"
	"github.com/cosmwasgo/wasmvm/internal/runtime"
	"github.com/cosmwasgo/wasmvm/types"
)

// compileCostPerByte is the deterministic gas charged per byte of Wasm code
// during StoreCode. Compilation time itself varies per machine and must not
// leak into gas accounting.
const compileCostPerByte uint64 = 3 * 140_000

// VM is the main entry point to this library.
// You should create an instance with its own subdirectory to manage state
// inside, and call it for all code storage and execution.
type VM struct {
	runtime *runtime.Runtime
	cache   *cache.Cache
	logger  *zap.Logger
}

// NewVM creates a new VM with a cache in config.Cache.BaseDir.
func NewVM(ctx context.Context, config types.VMConfig) (*VM, error) {
	return NewVMWithLogger(ctx, config, zap.NewNop())
}

// NewVMWithLogger is NewVM with a custom logger for host-side diagnostics
// and contract debug output.
func NewVMWithLogger(ctx context.Context, config types.VMConfig, logger *zap.Logger) (*VM, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt, err := runtime.NewRuntime(ctx, config.Cache.InstanceMemoryLimit)
	if err != nil {
		return nil, err
	}
	c, err := cache.New(config.Cache, rt, logger)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return &VM{
		runtime: rt,
		cache:   c,
		logger:  logger,
	}, nil
}

// Cleanup must be called when no longer using this instance. It frees the
// compiled modules and releases the cache directory lock.
func (vm *VM) Cleanup(ctx context.Context) {
	if err := vm.cache.Close(ctx); err != nil {
		vm.logger.Warn("cache close failed", zap.Error(err))
	}
	if err := vm.runtime.Close(ctx); err != nil {
		vm.logger.Warn("runtime close failed", zap.Error(err))
	}
}

// StoreCode will compile the Wasm code, and store the resulting compiled
// module as well as the original code. Both can be referenced later via
// Checksum. This must be done one time for given code, after that it can be
// instantiated many times.
//
// Gas is charged per byte of code at a fixed rate, independent of how long
// compilation actually takes.
func (vm *VM) StoreCode(ctx context.Context, code []byte, gasLimit uint64) (types.Checksum, uint64, error) {
	gasCost := compileCostPerByte * uint64(len(code))
	if gasCost > gasLimit {
		return types.Checksum{}, gasCost, types.OutOfGasError{Descriptor: "store code"}
	}
	checksum, err := vm.cache.StoreCode(ctx, code)
	if err != nil {
		return types.Checksum{}, gasCost, err
	}
	return checksum, gasCost, nil
}

// StoreCodeUnchecked is StoreCode without the static checks, for code that
// was validated when it was first stored on chain (e.g. during state sync).
func (vm *VM) StoreCodeUnchecked(ctx context.Context, code []byte) (types.Checksum, error) {
	return vm.cache.StoreCodeUnchecked(ctx, code)
}

// GetCode will load the original Wasm code for the given checksum.
// This will only succeed if that checksum was previously stored.
func (vm *VM) GetCode(checksum types.Checksum) ([]byte, error) {
	return vm.cache.GetCode(checksum)
}

// RemoveCode removes the code and its compiled module from the VM.
// Pinned code must be unpinned first.
func (vm *VM) RemoveCode(ctx context.Context, checksum types.Checksum) error {
	return vm.cache.RemoveCode(ctx, checksum)
}

// Pin locks the compiled module for the checksum into memory so it is never
// evicted and never needs recompilation.
func (vm *VM) Pin(ctx context.Context, checksum types.Checksum) error {
	return vm.cache.Pin(ctx, checksum)
}

// Unpin reverses Pin; the module becomes a regular cache entry again.
func (vm *VM) Unpin(ctx context.Context, checksum types.Checksum) error {
	return vm.cache.Unpin(ctx, checksum)
}

// AnalyzeCode reports the entry points the stored contract exports. The set
// is resolved once when the code enters the cache.
func (vm *VM) AnalyzeCode(ctx context.Context, checksum types.Checksum) (*types.AnalysisReport, error) {
	module, err := vm.cache.Load(ctx, checksum)
	if err != nil {
		return nil, err
	}
	report := module.Analysis
	return &report, nil
}

// GetMetrics returns some internal metrics of the module cache.
func (vm *VM) GetMetrics() (*types.Metrics, error) {
	m := vm.cache.Metrics()
	return &m, nil
}

// GetPinnedMetrics returns per-module metrics of the pinned modules.
func (vm *VM) GetPinnedMetrics() (*types.PinnedMetrics, error) {
	m := vm.cache.PinnedMetrics()
	return &m, nil
}

// Instantiate calls the init entry point of the given contract with the
// given message and returns the contract's response. State written through
// store is the contract's own storage.
func (vm *VM) Instantiate(
	ctx context.Context,
	checksum types.Checksum,
	env types.Env,
	info types.MessageInfo,
	initMsg []byte,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
) (*types.Response, uint64, error) {
	return vm.callWithInfo(ctx, checksum, "init", env, info, initMsg, store, goapi, querier, gasLimit)
}

// Execute calls the execute entry point with the given message on an
// already instantiated contract.
func (vm *VM) Execute(
	ctx context.Context,
	checksum types.Checksum,
	env types.Env,
	info types.MessageInfo,
	executeMsg []byte,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
) (*types.Response, uint64, error) {
	return vm.callWithInfo(ctx, checksum, "execute", env, info, executeMsg, store, goapi, querier, gasLimit)
}

func (vm *VM) callWithInfo(
	ctx context.Context,
	checksum types.Checksum,
	export string,
	env types.Env,
	info types.MessageInfo,
	msg []byte,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
) (*types.Response, uint64, error) {
	envBin, err := json.Marshal(env)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot serialize env: %w", err)
	}
	infoBin, err := json.Marshal(info)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot serialize info: %w", err)
	}
	data, gasUsed, err := vm.call(ctx, checksum, export, store, goapi, querier, gasLimit, false, envBin, infoBin, msg)
	if err != nil {
		return nil, gasUsed, err
	}
	return unmarshalResponse(data, gasUsed)
}

// Query calls the query entry point. The call is read-only: any attempt of
// the contract to write storage aborts it.
func (vm *VM) Query(
	ctx context.Context,
	checksum types.Checksum,
	env types.Env,
	queryMsg []byte,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
) ([]byte, uint64, error) {
	envBin, err := json.Marshal(env)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot serialize env: %w", err)
	}
	data, gasUsed, err := vm.call(ctx, checksum, "query", store, goapi, querier, gasLimit, true, envBin, queryMsg)
	if err != nil {
		return nil, gasUsed, err
	}
	out, err := unmarshalQueryResult(data, "query result")
	return out, gasUsed, err
}

// unmarshalQueryResult decodes a byte-result envelope from the contract.
// An envelope with neither ok nor error set is malformed contract output
// and is rejected rather than treated as an empty success.
func unmarshalQueryResult(data []byte, what string) ([]byte, error) {
	var result types.QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("cannot deserialize %s: %w", what, err)
	}
	if result.Err != "" {
		return nil, fmt.Errorf("%s", result.Err)
	}
	if result.Ok == nil {
		return nil, fmt.Errorf("invalid %s: neither ok nor error is set", what)
	}
	return result.Ok, nil
}

// Migrate calls the migrate entry point, if the contract exports one.
func (vm *VM) Migrate(
	ctx context.Context,
	checksum types.Checksum,
	env types.Env,
	migrateMsg []byte,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
) (*types.Response, uint64, error) {
	return vm.callWithEnv(ctx, checksum, "migrate", env, migrateMsg, store, goapi, querier, gasLimit)
}

// Sudo calls the sudo entry point: privileged operations only the chain
// itself may trigger, never external accounts.
func (vm *VM) Sudo(
	ctx context.Context,
	checksum types.Checksum,
	env types.Env,
	sudoMsg []byte,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
) (*types.Response, uint64, error) {
	return vm.callWithEnv(ctx, checksum, "sudo", env, sudoMsg, store, goapi, querier, gasLimit)
}

// Reply delivers the result of a dispatched sub-message back to the
// contract that emitted it.
func (vm *VM) Reply(
	ctx context.Context,
	checksum types.Checksum,
	env types.Env,
	reply types.Reply,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
) (*types.Response, uint64, error) {
	replyBin, err := json.Marshal(reply)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot serialize reply: %w", err)
	}
	return vm.callWithEnv(ctx, checksum, "reply", env, replyBin, store, goapi, querier, gasLimit)
}

func (vm *VM) callWithEnv(
	ctx context.Context,
	checksum types.Checksum,
	export string,
	env types.Env,
	msg []byte,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
) (*types.Response, uint64, error) {
	envBin, err := json.Marshal(env)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot serialize env: %w", err)
	}
	data, gasUsed, err := vm.call(ctx, checksum, export, store, goapi, querier, gasLimit, false, envBin, msg)
	if err != nil {
		return nil, gasUsed, err
	}
	return unmarshalResponse(data, gasUsed)
}

// call runs one contract export with a fresh instance and returns the raw
// result region data.
func (vm *VM) call(
	ctx context.Context,
	checksum types.Checksum,
	export string,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
	readOnly bool,
	args ...[]byte,
) ([]byte, uint64, error) {
	module, err := vm.cache.Load(ctx, checksum)
	if err != nil {
		return nil, 0, err
	}
	if !module.Analysis.HasEntrypoint(export) {
		return nil, 0, types.UninitializedContractError{Export: export}
	}

	gasState := runtime.NewGasState(gasLimit)
	callEnv := runtime.NewEnvironment(store, goapi, querier, gasState, vm.logger)
	instance := runtime.NewInstance(vm.runtime, module.Compiled, callEnv)
	defer instance.Destroy()
	instance.ReadOnly(readOnly)

	data, err := instance.Call(ctx, export, args...)
	vm.logger.Debug("contract call finished",
		zap.String("export", export),
		zap.Uint64("gas_used", gasState.Used()),
		zap.Uint64("gas_left", instance.GasLeft()),
		zap.Uint64("memory_size", instance.MemorySize()))
	return data, gasState.Used(), err
}

func unmarshalResponse(data []byte, gasUsed uint64) (*types.Response, uint64, error) {
	var result types.ContractResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, gasUsed, fmt.Errorf("cannot deserialize contract result: %w", err)
	}
	if result.Err != "" {
		return nil, gasUsed, fmt.Errorf("%s", result.Err)
	}
	if result.Ok == nil {
		return nil, gasUsed, fmt.Errorf("contract result has neither ok nor error set")
	}
	return result.Ok, gasUsed, nil
}
