package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/cosmwasgo/wasmvm/types"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

var envKey contextKey

// Environment is the per-call state the host functions operate on. One value
// is created for each contract call and travels through the call's context;
// the host module itself is registered once per runtime and shared.
type Environment struct {
	Store   types.KVStore
	API     types.GoAPI
	Querier types.Querier
	Gas     *GasState

	// ReadOnly forbids db_write, db_remove and sub-message dispatch.
	// Set for query and acknowledgement-encoding calls.
	ReadOnly bool

	iterators iteratorTable

	// callErr records the first host-side failure of the call. Once set,
	// the context is cancelled and execution unwinds; the recorded error
	// takes precedence over whatever wazero reports for the termination.
	callErr error
	cancel  context.CancelFunc

	logger *zap.Logger
}

func NewEnvironment(store types.KVStore, api types.GoAPI, querier types.Querier, gas *GasState, logger *zap.Logger) *Environment {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Environment{
		Store:   store,
		API:     api,
		Querier: querier,
		Gas:     gas,
		logger:  logger,
	}
}

// withEnvironment returns a cancellable context carrying env. The cancel
// function tears down contract execution when a host function fails.
func withEnvironment(ctx context.Context, env *Environment) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	env.cancel = cancel
	return context.WithValue(ctx, envKey, env), cancel
}

// environmentFromContext returns the call's Environment. Host functions are
// only ever invoked from contexts created by withEnvironment, so a miss is a
// wiring bug and panics.
func environmentFromContext(ctx context.Context) *Environment {
	env, ok := ctx.Value(envKey).(*Environment)
	if !ok {
		panic("no call environment in context")
	}
	return env
}

// fail records err as the call result and cancels execution. The first
// error wins; later ones during unwinding are dropped.
func (e *Environment) fail(err error) {
	if e.callErr == nil {
		e.callErr = err
	}
	if e.cancel != nil {
		e.cancel()
	}
}

// Err returns the recorded host-side failure, if any.
func (e *Environment) Err() error {
	return e.callErr
}
