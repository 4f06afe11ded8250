package types

type IBCEndpoint struct {
	PortID    string `json:"port_id"`
	ChannelID string `json:"channel_id"`
}

type IBCChannel struct {
	Endpoint             IBCEndpoint `json:"endpoint"`
	CounterpartyEndpoint IBCEndpoint `json:"counterparty_endpoint"`
	Order                IBCOrder    `json:"order"`
	Version              string      `json:"version"`
	ConnectionID         string      `json:"connection_id"`
}

type IBCChannelOpenMsg struct {
	OpenInit *IBCOpenInit `json:"open_init,omitempty"`
	OpenTry  *IBCOpenTry  `json:"open_try,omitempty"`
}

// GetChannel returns the IBCChannel in this message.
func (msg IBCChannelOpenMsg) GetChannel() IBCChannel {
	if msg.OpenInit != nil {
		return msg.OpenInit.Channel
	}
	return msg.OpenTry.Channel
}

// GetCounterVersion checks if the message has a counterparty version and
// returns it if so.
func (msg IBCChannelOpenMsg) GetCounterVersion() (ver string, ok bool) {
	if msg.OpenTry != nil {
		return msg.OpenTry.CounterpartyVersion, true
	}
	return "", false
}

type IBCOpenInit struct {
	Channel IBCChannel `json:"channel"`
}

func (m *IBCOpenInit) ToMsg() IBCChannelOpenMsg {
	return IBCChannelOpenMsg{OpenInit: m}
}

type IBCOpenTry struct {
	Channel             IBCChannel `json:"channel"`
	CounterpartyVersion string     `json:"counterparty_version"`
}

func (m *IBCOpenTry) ToMsg() IBCChannelOpenMsg {
	return IBCChannelOpenMsg{OpenTry: m}
}

type IBCChannelConnectMsg struct {
	OpenAck     *IBCOpenAck     `json:"open_ack,omitempty"`
	OpenConfirm *IBCOpenConfirm `json:"open_confirm,omitempty"`
}

// GetChannel returns the IBCChannel in this message.
func (msg IBCChannelConnectMsg) GetChannel() IBCChannel {
	if msg.OpenAck != nil {
		return msg.OpenAck.Channel
	}
	return msg.OpenConfirm.Channel
}

// GetCounterVersion checks if the message has a counterparty version and
// returns it if so.
func (msg IBCChannelConnectMsg) GetCounterVersion() (ver string, ok bool) {
	if msg.OpenAck != nil {
		return msg.OpenAck.CounterpartyVersion, true
	}
	return "", false
}

type IBCOpenAck struct {
	Channel             IBCChannel `json:"channel"`
	CounterpartyVersion string     `json:"counterparty_version"`
}

func (m *IBCOpenAck) ToMsg() IBCChannelConnectMsg {
	return IBCChannelConnectMsg{OpenAck: m}
}

type IBCOpenConfirm struct {
	Channel IBCChannel `json:"channel"`
}

func (m *IBCOpenConfirm) ToMsg() IBCChannelConnectMsg {
	return IBCChannelConnectMsg{OpenConfirm: m}
}

type IBCChannelCloseMsg struct {
	CloseInit    *IBCCloseInit    `json:"close_init,omitempty"`
	CloseConfirm *IBCCloseConfirm `json:"close_confirm,omitempty"`
}

// GetChannel returns the IBCChannel in this message.
func (msg IBCChannelCloseMsg) GetChannel() IBCChannel {
	if msg.CloseInit != nil {
		return msg.CloseInit.Channel
	}
	return msg.CloseConfirm.Channel
}

type IBCCloseInit struct {
	Channel IBCChannel `json:"channel"`
}

func (m *IBCCloseInit) ToMsg() IBCChannelCloseMsg {
	return IBCChannelCloseMsg{CloseInit: m}
}

type IBCCloseConfirm struct {
	Channel IBCChannel `json:"channel"`
}

func (m *IBCCloseConfirm) ToMsg() IBCChannelCloseMsg {
	return IBCChannelCloseMsg{CloseConfirm: m}
}

type IBCPacketReceiveMsg struct {
	Packet  IBCPacket    `json:"packet"`
	Relayer HumanAddress `json:"relayer"`
}

type IBCPacketAckMsg struct {
	Acknowledgement IBCAcknowledgement `json:"acknowledgement"`
	OriginalPacket  IBCPacket          `json:"original_packet"`
	Relayer         HumanAddress       `json:"relayer"`
}

type IBCPacketTimeoutMsg struct {
	Packet  IBCPacket    `json:"packet"`
	Relayer HumanAddress `json:"relayer"`
}

// IBCEncodeAcknowledgementMsg is passed to the optional acknowledgement
// encoder export. It carries the application-level receive result to be
// turned into acknowledgement bytes.
type IBCEncodeAcknowledgementMsg struct {
	Result IBCAckResult `json:"result"`
}

// IBCAckResult is the application-level outcome of receiving a packet.
// Exactly one of the fields is set.
type IBCAckResult struct {
	Ok  []byte `json:"ok,omitempty"`
	Err string `json:"error,omitempty"`
}

// IBCOrder distinguishes between ordered channels (packets delivered exactly
// in the sequence they were sent) and unordered channels (any order, each
// packet at most once).
type IBCOrder = string

// These are the only two valid values for IBCOrder
const (
	Unordered = "ORDER_UNORDERED"
	Ordered   = "ORDER_ORDERED"
)

// IBCTimeoutBlock is a height on the destination chain after which the packet
// can no longer be received. Ordering is (revision, height).
type IBCTimeoutBlock struct {
	// the version that the client is currently on
	// (eg. after resetting the chain this could increment 1 as height drops to 0)
	Revision uint64 `json:"revision"`
	// block height after which the packet times out.
	// the height within the given revision
	Height uint64 `json:"height"`
}

func (t IBCTimeoutBlock) IsZero() bool {
	return t.Revision == 0 && t.Height == 0
}

// IBCTimeout is the timeout for an IBC packet. At least one of block and
// timestamp is required.
type IBCTimeout struct {
	Block *IBCTimeoutBlock `json:"block,omitempty"`
	// Nanoseconds since UNIX epoch
	Timestamp Uint64 `json:"timestamp,omitempty"`
}

type IBCAcknowledgement struct {
	Data []byte `json:"data"`
}

type IBCPacket struct {
	Data     []byte      `json:"data"`
	Src      IBCEndpoint `json:"src"`
	Dest     IBCEndpoint `json:"dest"`
	Sequence uint64      `json:"sequence"`
	Timeout  IBCTimeout  `json:"timeout"`
}

// IBCChannelOpenResult is the raw response from the channel open call.
// Ok carries the version the contract accepts for the channel.
type IBCChannelOpenResult struct {
	Ok  *IBC3ChannelOpenResponse `json:"ok,omitempty"`
	Err string                   `json:"error,omitempty"`
}

// IBC3ChannelOpenResponse is version negotiation data for the handshake.
// An empty version means the contract accepts the proposed one.
type IBC3ChannelOpenResponse struct {
	Version string `json:"version"`
}

// IBCBasicResult is the raw response for the IBC handlers that can dispatch
// messages and emit events but have no meaningful data to return
// (connect, close, ack, timeout).
type IBCBasicResult struct {
	Ok  *IBCBasicResponse `json:"ok,omitempty"`
	Err string            `json:"error,omitempty"`
}

// SubMessages returns the sub-messages of the result if it is a success.
func (r *IBCBasicResult) SubMessages() []SubMsg {
	if r.Ok != nil {
		return r.Ok.Messages
	}
	return nil
}

// IBCBasicResponse defines the return value on a successful processing.
type IBCBasicResponse struct {
	// Messages comes directly from the contract and is its request for action.
	// If the ReplyOn value matches the result, the runtime will invoke this
	// contract's reply entry point after execution. Otherwise, this is all
	// "fire and forget".
	Messages Array[SubMsg] `json:"messages"`
	// attributes for a log event to return over abci interface
	Attributes Array[EventAttribute] `json:"attributes"`
	// custom events (separate from the main one that contains the attributes above)
	Events Array[Event] `json:"events"`
}

// IBCReceiveResult is the raw response from the packet receive call.
//
// A contract-level error here is NOT a normal outcome: it means the packet
// state change must be rolled back and an error acknowledgement written
// in its place. Compare IBCBasicResult, where Err simply aborts.
type IBCReceiveResult struct {
	Ok  *IBCReceiveResponse `json:"ok,omitempty"`
	Err string              `json:"error,omitempty"`
}

// SubMessages returns the sub-messages of the result if it is a success.
func (r *IBCReceiveResult) SubMessages() []SubMsg {
	if r.Ok != nil {
		return r.Ok.Messages
	}
	return nil
}

// IBCReceiveResponse defines the success value on packet processing.
type IBCReceiveResponse struct {
	// Acknowledgement is the application payload to acknowledge with. It is
	// encoded into the acknowledgement envelope before being committed.
	Acknowledgement []byte `json:"acknowledgement"`
	// Messages comes directly from the contract and is its request for action
	Messages Array[SubMsg] `json:"messages"`
	// attributes for a log event to return over abci interface
	Attributes Array[EventAttribute] `json:"attributes"`
	// custom events (separate from the main one that contains the attributes above)
	Events Array[Event] `json:"events"`
}
