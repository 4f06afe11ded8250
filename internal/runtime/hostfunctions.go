package runtime

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/cosmwasgo/wasmvm/types"
)

// Result codes returned to the contract from host functions. Zero means
// success (or the documented sentinel), positive codes are errors the
// contract caused with its input, negative codes are host and region errors.
const (
	errCodeSuccess int32 = 0

	// the input could not be processed (e.g. an invalid address)
	errCodeInvalidInput int32 = 1

	// writing into a caller-provided region failed
	errCodeRegionWriteUnknown int32 = -1_000_001
	// the caller-provided region is too small for the result
	errCodeRegionTooSmall int32 = -1_000_002
	// reading a caller-provided region failed
	errCodeRegionReadUnknown int32 = -1_000_101
	// the caller-provided region exceeds the length limit for this input
	errCodeRegionReadTooBig int32 = -1_000_102

	// db_scan got an order that is neither Ascending nor Descending
	errCodeInvalidOrder int32 = -2_000_001
	// db_next got a handle that was never issued in this call
	errCodeInvalidIterator int32 = -2_000_002
)

func asReturnCode(code int32) uint32 {
	return uint32(code)
}

// readErrorCode maps a region read failure to its return code.
func readErrorCode(err error) uint32 {
	if _, ok := err.(types.RegionLengthTooBigError); ok {
		return asReturnCode(errCodeRegionReadTooBig)
	}
	return asReturnCode(errCodeRegionReadUnknown)
}

// writeErrorCode maps a region write failure to its return code.
func writeErrorCode(err error) uint32 {
	if _, ok := err.(types.RegionTooSmallError); ok {
		return asReturnCode(errCodeRegionTooSmall)
	}
	return asReturnCode(errCodeRegionWriteUnknown)
}

// RegisterHostFunctions builds and instantiates the "env" host module on the
// given runtime. It is registered once; each call's state is looked up from
// the context, so all live instances share the same host module safely.
func RegisterHostFunctions(ctx context.Context, r wazero.Runtime) error {
	builder := r.NewHostModuleBuilder("env")

	builder.NewFunctionBuilder().
		WithFunc(hostDBRead).
		WithParameterNames("key_ptr").
		WithResultNames("value_region_ptr").
		Export("db_read")

	builder.NewFunctionBuilder().
		WithFunc(hostDBWrite).
		WithParameterNames("key_ptr", "value_ptr").
		Export("db_write")

	builder.NewFunctionBuilder().
		WithFunc(hostDBRemove).
		WithParameterNames("key_ptr").
		Export("db_remove")

	builder.NewFunctionBuilder().
		WithFunc(hostDBScan).
		WithParameterNames("start_ptr", "end_ptr", "order").
		WithResultNames("iterator_id").
		Export("db_scan")

	builder.NewFunctionBuilder().
		WithFunc(hostDBNext).
		WithParameterNames("iterator_id").
		WithResultNames("kv_region_ptr").
		Export("db_next")

	builder.NewFunctionBuilder().
		WithFunc(hostCanonicalizeAddress).
		WithParameterNames("human_ptr", "canonical_ptr").
		WithResultNames("result").
		Export("canonicalize_address")

	builder.NewFunctionBuilder().
		WithFunc(hostHumanizeAddress).
		WithParameterNames("canonical_ptr", "human_ptr").
		WithResultNames("result").
		Export("humanize_address")

	builder.NewFunctionBuilder().
		WithFunc(hostQueryChain).
		WithParameterNames("request_ptr").
		WithResultNames("response_region_ptr").
		Export("query_chain")

	builder.NewFunctionBuilder().
		WithFunc(hostDebug).
		WithParameterNames("message_ptr").
		Export("debug")

	builder.NewFunctionBuilder().
		WithFunc(hostAbort).
		WithParameterNames("message_ptr").
		Export("abort")

	_, err := builder.Instantiate(ctx)
	return err
}

// hostDBRead serves db_read: look up the key the region points at and return
// a freshly allocated region holding the value. Returns 0 if the key does not
// exist; an empty region (not 0) if it exists with an empty value.
func hostDBRead(ctx context.Context, m api.Module, keyPtr uint32) uint32 {
	env := environmentFromContext(ctx)

	key, err := readRegionData(m.Memory(), keyPtr, maxLengthDBKey)
	if err != nil {
		return readErrorCode(err)
	}
	if err := env.Gas.Consume(gasCostRead+gasCostPerByte*uint64(len(key)), "db_read"); err != nil {
		env.fail(err)
		return 0
	}

	value := env.Store.Get(key)
	if value == nil {
		return 0
	}
	if err := env.Gas.Consume(gasCostPerByte*uint64(len(value)), "db_read value"); err != nil {
		env.fail(err)
		return 0
	}
	ptr, err := allocateFor(ctx, m, value)
	if err != nil {
		env.fail(fmt.Errorf("db_read: %w", err))
		return 0
	}
	return ptr
}

func hostDBWrite(ctx context.Context, m api.Module, keyPtr, valuePtr uint32) {
	env := environmentFromContext(ctx)

	if env.ReadOnly {
		env.fail(types.ReadOnlyContextError{})
		return
	}
	key, err := readRegionData(m.Memory(), keyPtr, maxLengthDBKey)
	if err != nil {
		env.fail(fmt.Errorf("db_write key: %w", err))
		return
	}
	value, err := readRegionData(m.Memory(), valuePtr, maxLengthDBValue)
	if err != nil {
		env.fail(fmt.Errorf("db_write value: %w", err))
		return
	}
	cost := gasCostWrite + gasCostPerByte*uint64(len(key)+len(value))
	if err := env.Gas.Consume(cost, "db_write"); err != nil {
		env.fail(err)
		return
	}
	env.Store.Set(key, value)
}

func hostDBRemove(ctx context.Context, m api.Module, keyPtr uint32) {
	env := environmentFromContext(ctx)

	if env.ReadOnly {
		env.fail(types.ReadOnlyContextError{})
		return
	}
	key, err := readRegionData(m.Memory(), keyPtr, maxLengthDBKey)
	if err != nil {
		env.fail(fmt.Errorf("db_remove key: %w", err))
		return
	}
	if err := env.Gas.Consume(gasCostWrite+gasCostPerByte*uint64(len(key)), "db_remove"); err != nil {
		env.fail(err)
		return
	}
	env.Store.Delete(key)
}

// hostDBScan serves db_scan: open an iterator over [start, end) in the given
// order and return its handle. A zero region pointer means unbounded on that
// side.
func hostDBScan(ctx context.Context, m api.Module, startPtr, endPtr, order uint32) uint32 {
	env := environmentFromContext(ctx)

	var start, end []byte
	var err error
	if startPtr != 0 {
		start, err = readRegionData(m.Memory(), startPtr, maxLengthDBKey)
		if err != nil {
			return readErrorCode(err)
		}
	}
	if endPtr != 0 {
		end, err = readRegionData(m.Memory(), endPtr, maxLengthDBKey)
		if err != nil {
			return readErrorCode(err)
		}
	}
	cost := gasCostIteratorCreate + gasCostPerByte*uint64(len(start)+len(end))
	if err := env.Gas.Consume(cost, "db_scan"); err != nil {
		env.fail(err)
		return 0
	}

	var iter types.Iterator
	switch types.Order(order) {
	case types.Ascending:
		iter = env.Store.Iterator(start, end)
	case types.Descending:
		iter = env.Store.ReverseIterator(start, end)
	default:
		return asReturnCode(errCodeInvalidOrder)
	}
	return env.iterators.add(iter)
}

// hostDBNext serves db_next: advance the iterator and return a region with
// the key and value concatenated, each prefixed by its big-endian u32 length.
// Returns 0 when the iterator is exhausted.
func hostDBNext(ctx context.Context, m api.Module, iteratorID uint32) uint32 {
	env := environmentFromContext(ctx)

	iter := env.iterators.get(iteratorID)
	if iter == nil {
		return asReturnCode(errCodeInvalidIterator)
	}
	if err := env.Gas.Consume(gasCostIteratorNext, "db_next"); err != nil {
		env.fail(err)
		return 0
	}
	if !iter.Valid() {
		if err := iter.Error(); err != nil {
			env.fail(fmt.Errorf("iterator failed: %w", err))
		}
		return 0
	}
	key := iter.Key()
	value := iter.Value()
	iter.Next()

	if err := env.Gas.Consume(gasCostPerByte*uint64(len(key)+len(value)), "db_next data"); err != nil {
		env.fail(err)
		return 0
	}

	out := make([]byte, 0, 8+len(key)+len(value))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(key)))
	out = append(out, lenBuf[:]...)
	out = append(out, key...)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(value)))
	out = append(out, lenBuf[:]...)
	out = append(out, value...)

	ptr, err := allocateFor(ctx, m, out)
	if err != nil {
		env.fail(fmt.Errorf("db_next: %w", err))
		return 0
	}
	return ptr
}

// hostCanonicalizeAddress converts a human address into its canonical form
// and writes it into the caller-provided output region.
func hostCanonicalizeAddress(ctx context.Context, m api.Module, humanPtr, canonicalPtr uint32) uint32 {
	env := environmentFromContext(ctx)

	human, err := readRegionData(m.Memory(), humanPtr, maxLengthAddress)
	if err != nil {
		return readErrorCode(err)
	}
	if err := env.Gas.Consume(gasCostCanonicalize, "canonicalize_address"); err != nil {
		env.fail(err)
		return 0
	}
	canonical, gasUsed, err := env.API.CanonicalizeAddress(string(human))
	if gasErr := env.Gas.ConsumeExternal(gasUsed, "canonicalize_address api"); gasErr != nil {
		env.fail(gasErr)
		return 0
	}
	if err != nil {
		return asReturnCode(errCodeInvalidInput)
	}
	if err := writeToRegion(m.Memory(), canonicalPtr, canonical); err != nil {
		return writeErrorCode(err)
	}
	return asReturnCode(errCodeSuccess)
}

// hostHumanizeAddress converts a canonical address into its human form and
// writes it into the caller-provided output region.
func hostHumanizeAddress(ctx context.Context, m api.Module, canonicalPtr, humanPtr uint32) uint32 {
	env := environmentFromContext(ctx)

	canonical, err := readRegionData(m.Memory(), canonicalPtr, maxLengthAddress)
	if err != nil {
		return readErrorCode(err)
	}
	if err := env.Gas.Consume(gasCostHumanize, "humanize_address"); err != nil {
		env.fail(err)
		return 0
	}
	human, gasUsed, err := env.API.HumanizeAddress(canonical)
	if gasErr := env.Gas.ConsumeExternal(gasUsed, "humanize_address api"); gasErr != nil {
		env.fail(gasErr)
		return 0
	}
	if err != nil {
		return asReturnCode(errCodeInvalidInput)
	}
	if err := writeToRegion(m.Memory(), humanPtr, []byte(human)); err != nil {
		return writeErrorCode(err)
	}
	return asReturnCode(errCodeSuccess)
}

// hostQueryChain serves query_chain. The response is always a serialized
// QuerierResult envelope: querier failures travel inside it, not as traps,
// so the contract can handle them.
func hostQueryChain(ctx context.Context, m api.Module, requestPtr uint32) uint32 {
	env := environmentFromContext(ctx)

	request, err := readRegionData(m.Memory(), requestPtr, maxLengthQueryChain)
	if err != nil {
		return readErrorCode(err)
	}
	if err := env.Gas.Consume(gasCostQuery+gasCostPerByte*uint64(len(request)), "query_chain"); err != nil {
		env.fail(err)
		return 0
	}

	var req types.QueryRequest
	var result types.QuerierResult
	if err := json.Unmarshal(request, &req); err != nil {
		result = types.QuerierResult{
			Err: &types.SystemError{
				InvalidRequest: &types.InvalidRequest{Err: err.Error(), Request: request},
			},
		}
	} else {
		gasBefore := env.Querier.GasConsumed()
		response, qerr := env.Querier.Query(req, env.Gas.Remaining())
		gasSpent := env.Querier.GasConsumed() - gasBefore
		if gasErr := env.Gas.ConsumeExternal(gasSpent, "query_chain querier"); gasErr != nil {
			env.fail(gasErr)
			return 0
		}
		result = types.ToQuerierResult(response, qerr)
	}

	serialized, err := json.Marshal(result)
	if err != nil {
		env.fail(fmt.Errorf("cannot serialize query result: %w", err))
		return 0
	}
	if err := env.Gas.Consume(gasCostPerByte*uint64(len(serialized)), "query_chain response"); err != nil {
		env.fail(err)
		return 0
	}
	ptr, err := allocateFor(ctx, m, serialized)
	if err != nil {
		env.fail(fmt.Errorf("query_chain: %w", err))
		return 0
	}
	return ptr
}

// hostDebug logs a contract debug message. No gas is charged; the message is
// only read up to a fixed limit.
func hostDebug(ctx context.Context, m api.Module, messagePtr uint32) {
	env := environmentFromContext(ctx)

	message, err := readRegionData(m.Memory(), messagePtr, maxLengthDebug)
	if err != nil {
		return
	}
	env.logger.Debug("contract debug", zap.ByteString("message", message))
}

// hostAbort terminates execution with the contract's abort message.
func hostAbort(ctx context.Context, m api.Module, messagePtr uint32) {
	env := environmentFromContext(ctx)

	message, err := readRegionData(m.Memory(), messagePtr, maxLengthDebug)
	if err != nil {
		message = []byte("(unreadable abort message)")
	}
	env.fail(fmt.Errorf("contract aborted: %s", message))
}
