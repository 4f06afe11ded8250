package runtime

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"

	"github.com/cosmwasgo/wasmvm/types"
)

const wasmPageSize = 65536

// Runtime wraps a wazero runtime with the host module pre-registered.
// One Runtime serves all contracts of a VM; compiled modules and host
// functions are shared, per-call state travels through the context.
type Runtime struct {
	wz wazero.Runtime
}

// NewRuntime creates a sandbox runtime. memoryLimit caps the linear memory
// any single instance may grow to; zero means the wazero default.
//
// Close on context done is what turns a cancelled call context into
// termination of running contract code, which is how out-of-gas and host
// errors abort execution mid-call.
func NewRuntime(ctx context.Context, memoryLimit types.Size) (*Runtime, error) {
	cfg := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true)
	if memoryLimit.Bytes() > 0 {
		pages := memoryLimit.Bytes() / wasmPageSize
		if pages == 0 {
			pages = 1
		}
		cfg = cfg.WithMemoryLimitPages(uint32(pages))
	}
	wz := wazero.NewRuntimeWithConfig(ctx, cfg)
	if err := RegisterHostFunctions(ctx, wz); err != nil {
		_ = wz.Close(ctx)
		return nil, fmt.Errorf("cannot register host module: %w", err)
	}
	return &Runtime{wz: wz}, nil
}

// Compile validates and compiles Wasm bytecode into an executable module.
func (r *Runtime) Compile(ctx context.Context, wasm []byte) (wazero.CompiledModule, error) {
	compiled, err := r.wz.CompileModule(ctx, wasm)
	if err != nil {
		return nil, types.ValidationError{Msg: err.Error()}
	}
	if err := ValidateModule(compiled); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}
	return compiled, nil
}

// CompileUnchecked compiles without the static contract checks. Used for
// code that was already validated when it was first stored.
func (r *Runtime) CompileUnchecked(ctx context.Context, wasm []byte) (wazero.CompiledModule, error) {
	compiled, err := r.wz.CompileModule(ctx, wasm)
	if err != nil {
		return nil, types.ValidationError{Msg: err.Error()}
	}
	return compiled, nil
}

// Close releases the runtime and everything compiled on it.
func (r *Runtime) Close(ctx context.Context) error {
	return r.wz.Close(ctx)
}
