// Package relay drives a contract's IBC surface: the channel handshake,
// atomic packet receipt with acknowledgements, packet lifecycle on the
// sending side, and ordered dispatch of contract sub-messages.
package relay

import (
	"context"

	"github.com/cosmwasgo/wasmvm/types"
)

// Engine is the contract execution surface the relay depends on. It is
// satisfied by *wasmvm.VM; tests substitute fakes so scenarios run without
// compiled contracts.
type Engine interface {
	AnalyzeCode(ctx context.Context, checksum types.Checksum) (*types.AnalysisReport, error)

	Reply(
		ctx context.Context,
		checksum types.Checksum,
		env types.Env,
		reply types.Reply,
		store types.KVStore,
		goapi types.GoAPI,
		querier types.Querier,
		gasLimit uint64,
	) (*types.Response, uint64, error)

	IBCChannelOpen(
		ctx context.Context,
		checksum types.Checksum,
		env types.Env,
		msg types.IBCChannelOpenMsg,
		store types.KVStore,
		goapi types.GoAPI,
		querier types.Querier,
		gasLimit uint64,
	) (*types.IBC3ChannelOpenResponse, uint64, error)

	IBCChannelConnect(
		ctx context.Context,
		checksum types.Checksum,
		env types.Env,
		msg types.IBCChannelConnectMsg,
		store types.KVStore,
		goapi types.GoAPI,
		querier types.Querier,
		gasLimit uint64,
	) (*types.IBCBasicResponse, uint64, error)

	IBCChannelClose(
		ctx context.Context,
		checksum types.Checksum,
		env types.Env,
		msg types.IBCChannelCloseMsg,
		store types.KVStore,
		goapi types.GoAPI,
		querier types.Querier,
		gasLimit uint64,
	) (*types.IBCBasicResponse, uint64, error)

	IBCPacketReceive(
		ctx context.Context,
		checksum types.Checksum,
		env types.Env,
		msg types.IBCPacketReceiveMsg,
		store types.KVStore,
		goapi types.GoAPI,
		querier types.Querier,
		gasLimit uint64,
	) (*types.IBCReceiveResult, uint64, error)

	IBCPacketAck(
		ctx context.Context,
		checksum types.Checksum,
		env types.Env,
		msg types.IBCPacketAckMsg,
		store types.KVStore,
		goapi types.GoAPI,
		querier types.Querier,
		gasLimit uint64,
	) (*types.IBCBasicResponse, uint64, error)

	IBCPacketTimeout(
		ctx context.Context,
		checksum types.Checksum,
		env types.Env,
		msg types.IBCPacketTimeoutMsg,
		store types.KVStore,
		goapi types.GoAPI,
		querier types.Querier,
		gasLimit uint64,
	) (*types.IBCBasicResponse, uint64, error)

	IBCEncodeAcknowledgement(
		ctx context.Context,
		checksum types.Checksum,
		env types.Env,
		msg types.IBCEncodeAcknowledgementMsg,
		store types.KVStore,
		goapi types.GoAPI,
		querier types.Querier,
		gasLimit uint64,
	) ([]byte, uint64, error)
}
