package relay

import (
	"errors"
	"fmt"

	"github.com/cosmwasgo/wasmvm/types"
)

// ChannelStatus is the lifecycle state of a channel as tracked on this side.
type ChannelStatus string

const (
	// StatusInit: the open handshake step ran, the contract accepted
	StatusInit ChannelStatus = "INIT"
	// StatusOpen: the connect step completed, packets may flow
	StatusOpen ChannelStatus = "OPEN"
	// StatusClosed: terminal, no further packets in either direction
	StatusClosed ChannelStatus = "CLOSED"
)

var (
	ErrUnknownChannel    = errors.New("unknown channel")
	ErrChannelExists     = errors.New("channel already exists")
	ErrChannelNotOpen    = errors.New("channel is not open")
	ErrVersionMismatch   = errors.New("counterparty version does not match")
	ErrWrongSequence     = errors.New("packet out of sequence on ordered channel")
	ErrDuplicatePacket   = errors.New("packet already received")
	ErrPacketSettled     = errors.New("packet already has a terminal state")
	ErrUnknownPacket     = errors.New("unknown packet")
	ErrTimeoutNotElapsed = errors.New("packet timeout has not elapsed")
)

// packetOutcome is the terminal state of a packet this side sent.
// A packet reaches exactly one of them, never both.
type packetOutcome int

const (
	outcomePending packetOutcome = iota
	outcomeAcknowledged
	outcomeTimedOut
)

// sentPacket tracks one outgoing packet until it settles.
type sentPacket struct {
	packet  types.IBCPacket
	outcome packetOutcome
	// ack holds the envelope the counterparty returned, once acknowledged
	ack Acknowledgement
}

// channelState is this side's bookkeeping for one channel.
type channelState struct {
	channel types.IBCChannel
	status  ChannelStatus
	// version is the negotiated version after the open step
	version string

	// receive-side dedup state. Ordered channels track the last delivered
	// sequence, unordered ones the set of delivered sequences.
	lastReceived uint64
	received     map[uint64]struct{}

	// send-side state
	nextSequence uint64
	sent         map[uint64]*sentPacket
}

func newChannelState(channel types.IBCChannel, version string) *channelState {
	return &channelState{
		channel:      channel,
		status:       StatusInit,
		version:      version,
		received:     make(map[uint64]struct{}),
		nextSequence: 1,
		sent:         make(map[uint64]*sentPacket),
	}
}

// markReceived records delivery of the sequence, enforcing the channel's
// ordering rules first.
func (c *channelState) canReceive(sequence uint64) error {
	if c.status != StatusOpen {
		return ErrChannelNotOpen
	}
	switch c.channel.Order {
	case types.Ordered:
		if sequence <= c.lastReceived {
			return ErrDuplicatePacket
		}
		if sequence != c.lastReceived+1 {
			return fmt.Errorf("%w: got %d, expected %d", ErrWrongSequence, sequence, c.lastReceived+1)
		}
	default:
		if _, ok := c.received[sequence]; ok {
			return ErrDuplicatePacket
		}
	}
	return nil
}

func (c *channelState) markReceived(sequence uint64) {
	if c.channel.Order == types.Ordered {
		c.lastReceived = sequence
	} else {
		c.received[sequence] = struct{}{}
	}
}
