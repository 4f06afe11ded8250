package wasmvm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cosmwasgo/wasmvm/types"
)

// IBCChannelOpen calls the contract's handshake handler for ChanOpenInit and
// ChanOpenTry. The response carries the version the contract accepts; a nil
// response accepts the proposed version unchanged.
func (vm *VM) IBCChannelOpen(
	ctx context.Context,
	checksum types.Checksum,
	env types.Env,
	msg types.IBCChannelOpenMsg,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
) (*types.IBC3ChannelOpenResponse, uint64, error) {
	data, gasUsed, err := vm.callIBC(ctx, checksum, "ibc_channel_open", env, msg, store, goapi, querier, gasLimit, false)
	if err != nil {
		return nil, gasUsed, err
	}
	var result types.IBCChannelOpenResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, gasUsed, fmt.Errorf("cannot deserialize channel open result: %w", err)
	}
	if result.Err != "" {
		return nil, gasUsed, fmt.Errorf("%s", result.Err)
	}
	return result.Ok, gasUsed, nil
}

// IBCChannelConnect calls the contract's handler for ChanOpenAck and
// ChanOpenConfirm, the point where the channel becomes usable.
func (vm *VM) IBCChannelConnect(
	ctx context.Context,
	checksum types.Checksum,
	env types.Env,
	msg types.IBCChannelConnectMsg,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
) (*types.IBCBasicResponse, uint64, error) {
	data, gasUsed, err := vm.callIBC(ctx, checksum, "ibc_channel_connect", env, msg, store, goapi, querier, gasLimit, false)
	if err != nil {
		return nil, gasUsed, err
	}
	return unmarshalIBCBasic(data, gasUsed)
}

// IBCChannelClose calls the contract's handler for channel closure.
func (vm *VM) IBCChannelClose(
	ctx context.Context,
	checksum types.Checksum,
	env types.Env,
	msg types.IBCChannelCloseMsg,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
) (*types.IBCBasicResponse, uint64, error) {
	data, gasUsed, err := vm.callIBC(ctx, checksum, "ibc_channel_close", env, msg, store, goapi, querier, gasLimit, false)
	if err != nil {
		return nil, gasUsed, err
	}
	return unmarshalIBCBasic(data, gasUsed)
}

// IBCPacketReceive delivers an incoming packet to the contract.
//
// Unlike the other handlers the whole result is returned: a contract-level
// Err is meaningful to the caller, who must roll back state and acknowledge
// the error instead of failing the transaction.
func (vm *VM) IBCPacketReceive(
	ctx context.Context,
	checksum types.Checksum,
	env types.Env,
	msg types.IBCPacketReceiveMsg,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
) (*types.IBCReceiveResult, uint64, error) {
	data, gasUsed, err := vm.callIBC(ctx, checksum, "ibc_packet_receive", env, msg, store, goapi, querier, gasLimit, false)
	if err != nil {
		return nil, gasUsed, err
	}
	var result types.IBCReceiveResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, gasUsed, fmt.Errorf("cannot deserialize packet receive result: %w", err)
	}
	return &result, gasUsed, nil
}

// IBCPacketAck delivers the acknowledgement for a packet this contract sent.
func (vm *VM) IBCPacketAck(
	ctx context.Context,
	checksum types.Checksum,
	env types.Env,
	msg types.IBCPacketAckMsg,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
) (*types.IBCBasicResponse, uint64, error) {
	data, gasUsed, err := vm.callIBC(ctx, checksum, "ibc_packet_ack", env, msg, store, goapi, querier, gasLimit, false)
	if err != nil {
		return nil, gasUsed, err
	}
	return unmarshalIBCBasic(data, gasUsed)
}

// IBCPacketTimeout notifies the contract that a packet it sent will never be
// delivered.
func (vm *VM) IBCPacketTimeout(
	ctx context.Context,
	checksum types.Checksum,
	env types.Env,
	msg types.IBCPacketTimeoutMsg,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
) (*types.IBCBasicResponse, uint64, error) {
	data, gasUsed, err := vm.callIBC(ctx, checksum, "ibc_packet_timeout", env, msg, store, goapi, querier, gasLimit, false)
	if err != nil {
		return nil, gasUsed, err
	}
	return unmarshalIBCBasic(data, gasUsed)
}

// IBCEncodeAcknowledgement asks the contract to turn an application-level
// receive result into acknowledgement bytes. The call is read-only; the
// encoding must depend on the result and pre-receive state only.
func (vm *VM) IBCEncodeAcknowledgement(
	ctx context.Context,
	checksum types.Checksum,
	env types.Env,
	msg types.IBCEncodeAcknowledgementMsg,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
) ([]byte, uint64, error) {
	data, gasUsed, err := vm.callIBC(ctx, checksum, "ibc_encode_acknowledgement", env, msg, store, goapi, querier, gasLimit, true)
	if err != nil {
		return nil, gasUsed, err
	}
	out, err := unmarshalQueryResult(data, "acknowledgement encoding result")
	return out, gasUsed, err
}

func (vm *VM) callIBC(
	ctx context.Context,
	checksum types.Checksum,
	export string,
	env types.Env,
	msg any,
	store types.KVStore,
	goapi types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	envBin, err := json.Marshal(env)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot serialize env: %w", err)
	}
	msgBin, err := json.Marshal(msg)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot serialize message: %w", err)
	}
	return vm.call(ctx, checksum, export, store, goapi, querier, gasLimit, readOnly, envBin, msgBin)
}

func unmarshalIBCBasic(data []byte, gasUsed uint64) (*types.IBCBasicResponse, uint64, error) {
	var result types.IBCBasicResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, gasUsed, fmt.Errorf("cannot deserialize result: %w", err)
	}
	if result.Err != "" {
		return nil, gasUsed, fmt.Errorf("%s", result.Err)
	}
	if result.Ok == nil {
		return nil, gasUsed, fmt.Errorf("result has neither ok nor error set")
	}
	return result.Ok, gasUsed, nil
}
