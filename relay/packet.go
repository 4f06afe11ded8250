package relay

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cosmwasgo/wasmvm/internal/store"
	"github.com/cosmwasgo/wasmvm/types"
)

// SendPacket records an outgoing packet on an open channel and returns it
// with the assigned sequence. The packet stays pending until it settles as
// acknowledged or timed out, never both.
func (d *Dispatcher) SendPacket(channelID string, data []byte, timeout types.IBCTimeout) (types.IBCPacket, error) {
	ch, err := d.channelFor(channelID)
	if err != nil {
		return types.IBCPacket{}, err
	}
	if ch.status != StatusOpen {
		return types.IBCPacket{}, ErrChannelNotOpen
	}
	packet := types.IBCPacket{
		Data:     data,
		Src:      ch.channel.Endpoint,
		Dest:     ch.channel.CounterpartyEndpoint,
		Sequence: ch.nextSequence,
		Timeout:  timeout,
	}
	ch.sent[packet.Sequence] = &sentPacket{packet: packet}
	ch.nextSequence++
	return packet, nil
}

// RecvPacket delivers an incoming packet to the contract and returns the
// acknowledgement to write for it.
//
// The whole receive is atomic: the contract runs against a transaction over
// the contract store, its sub-messages included. On a contract-level error
// everything is rolled back and an error acknowledgement is returned in
// place of a success one; the packet still counts as received. Only a
// host-level failure (or a failing acknowledgement encoder) produces no
// acknowledgement at all, leaving the packet undelivered.
func (d *Dispatcher) RecvPacket(ctx context.Context, env types.Env, msg types.IBCPacketReceiveMsg) ([]byte, error) {
	ch, err := d.channelFor(msg.Packet.Dest.ChannelID)
	if err != nil {
		return nil, err
	}
	if err := ch.canReceive(msg.Packet.Sequence); err != nil {
		return nil, err
	}

	tx := store.NewStorageTransaction(d.store)
	result, _, err := d.engine.IBCPacketReceive(ctx, d.checksum, env, msg, tx, d.goapi, d.querier, d.gasLimit)
	if err != nil {
		// host-level failure: no state change, no acknowledgement
		tx.Discard()
		return nil, err
	}

	if result.Err == "" && result.Ok == nil {
		tx.Discard()
		return nil, fmt.Errorf("packet receive result has neither ok nor error set")
	}

	ackResult := types.IBCAckResult{}
	switch {
	case result.Err != "":
		tx.Discard()
		ackResult.Err = result.Err
	default:
		if err := d.dispatchSubMessages(ctx, env, result.Ok.Messages, tx); err != nil {
			// a failing sub-message poisons the whole receive
			tx.Discard()
			ackResult.Err = err.Error()
		} else {
			ackResult.Ok = result.Ok.Acknowledgement
			if ackResult.Ok == nil {
				ackResult.Ok = []byte{}
			}
		}
	}

	success := ackResult.Err == ""

	// The encoder sees pre-receive state: on the error path the overlay is
	// already discarded, on the success path it is not yet committed and
	// the encoder runs against the base store.
	ack, err := d.encodeAcknowledgement(ctx, env, ackResult)
	if err != nil {
		if success {
			tx.Discard()
		}
		return nil, fmt.Errorf("cannot encode acknowledgement: %w", err)
	}

	if success {
		tx.Commit()
	}
	ch.markReceived(msg.Packet.Sequence)
	d.logger.Debug("packet received",
		zap.String("channel", msg.Packet.Dest.ChannelID),
		zap.Uint64("sequence", msg.Packet.Sequence),
		zap.Bool("success", ackResult.Err == ""))
	return ack, nil
}

// encodeAcknowledgement renders the acknowledgement bytes for a receive
// result, delegating to the contract's own encoder when it exports one.
func (d *Dispatcher) encodeAcknowledgement(ctx context.Context, env types.Env, result types.IBCAckResult) ([]byte, error) {
	if !d.encodesAcks {
		return EncodeAcknowledgement(result)
	}
	ack, _, err := d.engine.IBCEncodeAcknowledgement(
		ctx, d.checksum, env,
		types.IBCEncodeAcknowledgementMsg{Result: result},
		d.store, d.goapi, d.querier, d.gasLimit,
	)
	if err != nil {
		return nil, err
	}
	if len(ack) == 0 {
		return nil, fmt.Errorf("contract encoder returned an empty acknowledgement")
	}
	return ack, nil
}

// AckPacket settles an outgoing packet as acknowledged and delivers the
// counterparty's acknowledgement to the contract. A packet that already
// settled (acknowledged or timed out) is refused.
func (d *Dispatcher) AckPacket(ctx context.Context, env types.Env, msg types.IBCPacketAckMsg) error {
	ch, err := d.channelFor(msg.OriginalPacket.Src.ChannelID)
	if err != nil {
		return err
	}
	sent, ok := ch.sent[msg.OriginalPacket.Sequence]
	if !ok {
		return fmt.Errorf("%w: sequence %d", ErrUnknownPacket, msg.OriginalPacket.Sequence)
	}
	if sent.outcome != outcomePending {
		return ErrPacketSettled
	}
	ack, err := DecodeAcknowledgement(msg.Acknowledgement.Data)
	if err != nil {
		return err
	}

	tx := store.NewStorageTransaction(d.store)
	resp, _, err := d.engine.IBCPacketAck(ctx, d.checksum, env, msg, tx, d.goapi, d.querier, d.gasLimit)
	if err != nil {
		tx.Discard()
		return err
	}
	if err := d.dispatchSubMessages(ctx, env, resp.Messages, tx); err != nil {
		tx.Discard()
		return err
	}
	tx.Commit()
	sent.outcome = outcomeAcknowledged
	sent.ack = ack
	return nil
}

// TimeoutPacket settles an outgoing packet as timed out. The timeout must
// actually have elapsed relative to the current block, and a packet that
// already settled is refused.
func (d *Dispatcher) TimeoutPacket(ctx context.Context, env types.Env, msg types.IBCPacketTimeoutMsg) error {
	ch, err := d.channelFor(msg.Packet.Src.ChannelID)
	if err != nil {
		return err
	}
	sent, ok := ch.sent[msg.Packet.Sequence]
	if !ok {
		return fmt.Errorf("%w: sequence %d", ErrUnknownPacket, msg.Packet.Sequence)
	}
	if sent.outcome != outcomePending {
		return ErrPacketSettled
	}
	if !timeoutElapsed(sent.packet.Timeout, env.Block) {
		return ErrTimeoutNotElapsed
	}

	tx := store.NewStorageTransaction(d.store)
	resp, _, err := d.engine.IBCPacketTimeout(ctx, d.checksum, env, msg, tx, d.goapi, d.querier, d.gasLimit)
	if err != nil {
		tx.Discard()
		return err
	}
	if err := d.dispatchSubMessages(ctx, env, resp.Messages, tx); err != nil {
		tx.Discard()
		return err
	}
	tx.Commit()
	sent.outcome = outcomeTimedOut
	return nil
}

// PacketAcknowledgement returns the acknowledgement an outgoing packet
// settled with.
func (d *Dispatcher) PacketAcknowledgement(channelID string, sequence uint64) (Acknowledgement, error) {
	ch, err := d.channelFor(channelID)
	if err != nil {
		return Acknowledgement{}, err
	}
	sent, ok := ch.sent[sequence]
	if !ok {
		return Acknowledgement{}, fmt.Errorf("%w: sequence %d", ErrUnknownPacket, sequence)
	}
	if sent.outcome != outcomeAcknowledged {
		return Acknowledgement{}, fmt.Errorf("packet %d is not acknowledged", sequence)
	}
	return sent.ack, nil
}

// timeoutElapsed reports whether the packet timeout has passed at the given
// block. Either bound elapsing is enough.
func timeoutElapsed(timeout types.IBCTimeout, block types.BlockInfo) bool {
	if timeout.Block != nil && block.Height >= timeout.Block.Height {
		return true
	}
	if timeout.Timestamp > 0 && uint64(block.Time) >= uint64(timeout.Timestamp) {
		return true
	}
	return false
}
