package relay

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cosmwasgo/wasmvm/internal/store"
	"github.com/cosmwasgo/wasmvm/types"
)

// MessageHandler executes one message a contract asked the chain to run.
// It operates on the store the current transaction exposes and returns the
// events and optional data of the execution.
type MessageHandler func(ctx context.Context, msg types.CosmosMsg, st types.KVStore) ([]types.Event, []byte, error)

// Dispatcher owns the IBC lifecycle of a single contract: its channels, its
// packets in flight and the dispatch of its sub-messages.
type Dispatcher struct {
	engine   Engine
	checksum types.Checksum
	store    types.KVStore
	goapi    types.GoAPI
	querier  types.Querier
	gasLimit uint64
	handler  MessageHandler
	logger   *zap.Logger

	// encodesAcks caches whether the contract exports its own
	// acknowledgement encoder, resolved once from the analysis report.
	encodesAcks bool

	channels map[string]*channelState
}

type DispatcherConfig struct {
	Engine   Engine
	Checksum types.Checksum
	// Store is the contract's storage; packet handling runs against
	// transactions layered over it.
	Store    types.KVStore
	API      types.GoAPI
	Querier  types.Querier
	GasLimit uint64
	// Handler runs the contract's sub-messages. Nil rejects all of them.
	Handler MessageHandler
	Logger  *zap.Logger
}

func NewDispatcher(ctx context.Context, cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := cfg.Handler
	if handler == nil {
		handler = func(context.Context, types.CosmosMsg, types.KVStore) ([]types.Event, []byte, error) {
			return nil, nil, fmt.Errorf("no message handler configured")
		}
	}
	report, err := cfg.Engine.AnalyzeCode(ctx, cfg.Checksum)
	if err != nil {
		return nil, fmt.Errorf("cannot analyze contract: %w", err)
	}
	if !report.HasIBCEntryPoints {
		return nil, fmt.Errorf("contract does not implement the channel and packet handlers")
	}
	return &Dispatcher{
		engine:      cfg.Engine,
		checksum:    cfg.Checksum,
		store:       cfg.Store,
		goapi:       cfg.API,
		querier:     cfg.Querier,
		gasLimit:    cfg.GasLimit,
		handler:     handler,
		logger:      logger,
		encodesAcks: report.HasEntrypoint("ibc_encode_acknowledgement"),
		channels:    make(map[string]*channelState),
	}, nil
}

// Channel returns the tracked channel, or ErrUnknownChannel.
func (d *Dispatcher) channelFor(id string) (*channelState, error) {
	ch, ok := d.channels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, id)
	}
	return ch, nil
}

// ChannelStatus reports the tracked status of a channel.
func (d *Dispatcher) ChannelStatus(id string) (ChannelStatus, error) {
	ch, err := d.channelFor(id)
	if err != nil {
		return "", err
	}
	return ch.status, nil
}

// ChannelVersion reports the negotiated version of a channel.
func (d *Dispatcher) ChannelVersion(id string) (string, error) {
	ch, err := d.channelFor(id)
	if err != nil {
		return "", err
	}
	return ch.version, nil
}

// OpenChannel runs the first handshake step. The contract may reject the
// channel (no state is recorded then) or accept it, possibly proposing a
// different version. The negotiated version is returned.
func (d *Dispatcher) OpenChannel(ctx context.Context, env types.Env, msg types.IBCChannelOpenMsg) (string, error) {
	channel := msg.GetChannel()
	id := channel.Endpoint.ChannelID
	if _, ok := d.channels[id]; ok {
		return "", fmt.Errorf("%w: %s", ErrChannelExists, id)
	}

	tx := store.NewStorageTransaction(d.store)
	resp, _, err := d.engine.IBCChannelOpen(ctx, d.checksum, env, msg, tx, d.goapi, d.querier, d.gasLimit)
	if err != nil {
		// the contract rejected the handshake, nothing is recorded
		tx.Discard()
		return "", err
	}
	tx.Commit()

	version := channel.Version
	if resp != nil && resp.Version != "" {
		version = resp.Version
	}
	d.channels[id] = newChannelState(channel, version)
	d.logger.Debug("channel opened",
		zap.String("channel", id),
		zap.String("version", version))
	return version, nil
}

// ConnectChannel runs the second handshake step. The counterparty version,
// when present, must match what this side negotiated during open. On success
// the channel becomes usable and the contract's sub-messages are dispatched.
func (d *Dispatcher) ConnectChannel(ctx context.Context, env types.Env, msg types.IBCChannelConnectMsg) error {
	channel := msg.GetChannel()
	ch, err := d.channelFor(channel.Endpoint.ChannelID)
	if err != nil {
		return err
	}
	if ch.status != StatusInit {
		return fmt.Errorf("channel %s is %s, expected %s", channel.Endpoint.ChannelID, ch.status, StatusInit)
	}
	if counter, ok := msg.GetCounterVersion(); ok && counter != ch.version {
		return fmt.Errorf("%w: got %q, negotiated %q", ErrVersionMismatch, counter, ch.version)
	}

	tx := store.NewStorageTransaction(d.store)
	resp, _, err := d.engine.IBCChannelConnect(ctx, d.checksum, env, msg, tx, d.goapi, d.querier, d.gasLimit)
	if err != nil {
		tx.Discard()
		return err
	}
	if err := d.dispatchSubMessages(ctx, env, resp.Messages, tx); err != nil {
		tx.Discard()
		return err
	}
	tx.Commit()
	ch.status = StatusOpen
	return nil
}

// CloseChannel closes the channel on this side. Closed is terminal.
func (d *Dispatcher) CloseChannel(ctx context.Context, env types.Env, msg types.IBCChannelCloseMsg) error {
	channel := msg.GetChannel()
	ch, err := d.channelFor(channel.Endpoint.ChannelID)
	if err != nil {
		return err
	}
	if ch.status == StatusClosed {
		return nil
	}

	tx := store.NewStorageTransaction(d.store)
	resp, _, err := d.engine.IBCChannelClose(ctx, d.checksum, env, msg, tx, d.goapi, d.querier, d.gasLimit)
	if err != nil {
		tx.Discard()
		return err
	}
	if err := d.dispatchSubMessages(ctx, env, resp.Messages, tx); err != nil {
		tx.Discard()
		return err
	}
	tx.Commit()
	ch.status = StatusClosed
	return nil
}

// dispatchSubMessages runs the contract's sub-messages in order, each inside
// its own transaction over parent. A failing message rolls back its own
// writes; whether it stops the batch depends on its reply mode.
func (d *Dispatcher) dispatchSubMessages(ctx context.Context, env types.Env, msgs []types.SubMsg, parent types.KVStore) error {
	for _, sub := range msgs {
		subTx := store.NewStorageTransaction(parent)
		events, data, err := d.handler(ctx, sub.Msg, subTx)
		if err != nil {
			subTx.Discard()
			if sub.ReplyOn == types.ReplyError || sub.ReplyOn == types.ReplyAlways {
				if replyErr := d.reply(ctx, env, parent, types.Reply{
					ID:     sub.ID,
					Result: types.SubMsgResult{Err: err.Error()},
				}); replyErr != nil {
					return replyErr
				}
				continue
			}
			return fmt.Errorf("sub-message %d failed: %w", sub.ID, err)
		}
		subTx.Commit()
		if sub.ReplyOn == types.ReplySuccess || sub.ReplyOn == types.ReplyAlways {
			if err := d.reply(ctx, env, parent, types.Reply{
				ID: sub.ID,
				Result: types.SubMsgResult{
					Ok: &types.SubMsgResponse{Events: events, Data: data},
				},
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// reply feeds a sub-message result back into the contract. The contract's
// own sub-messages from the reply are dispatched recursively.
func (d *Dispatcher) reply(ctx context.Context, env types.Env, parent types.KVStore, reply types.Reply) error {
	tx := store.NewStorageTransaction(parent)
	resp, _, err := d.engine.Reply(ctx, d.checksum, env, reply, tx, d.goapi, d.querier, d.gasLimit)
	if err != nil {
		tx.Discard()
		return fmt.Errorf("reply for sub-message %d failed: %w", reply.ID, err)
	}
	if err := d.dispatchSubMessages(ctx, env, resp.Messages, tx); err != nil {
		tx.Discard()
		return err
	}
	tx.Commit()
	return nil
}
