package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmwasgo/wasmvm/internal/store"
	"github.com/cosmwasgo/wasmvm/types"
)

// fakeEngine scripts contract behavior per entry point so scenarios run
// without compiled contracts.
type fakeEngine struct {
	entrypoints []string

	openFn    func(msg types.IBCChannelOpenMsg, st types.KVStore) (*types.IBC3ChannelOpenResponse, error)
	connectFn func(msg types.IBCChannelConnectMsg, st types.KVStore) (*types.IBCBasicResponse, error)
	closeFn   func(msg types.IBCChannelCloseMsg, st types.KVStore) (*types.IBCBasicResponse, error)
	receiveFn func(msg types.IBCPacketReceiveMsg, st types.KVStore) (*types.IBCReceiveResult, error)
	ackFn     func(msg types.IBCPacketAckMsg, st types.KVStore) (*types.IBCBasicResponse, error)
	timeoutFn func(msg types.IBCPacketTimeoutMsg, st types.KVStore) (*types.IBCBasicResponse, error)
	encodeFn  func(msg types.IBCEncodeAcknowledgementMsg, st types.KVStore) ([]byte, error)
	replyFn   func(reply types.Reply, st types.KVStore) (*types.Response, error)

	replies []types.Reply
}

var _ Engine = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		entrypoints: []string{
			"init", "execute",
			"ibc_channel_open", "ibc_channel_connect", "ibc_channel_close",
			"ibc_packet_receive", "ibc_packet_ack", "ibc_packet_timeout",
		},
	}
}

func (f *fakeEngine) AnalyzeCode(context.Context, types.Checksum) (*types.AnalysisReport, error) {
	report := types.AnalysisReport{Entrypoints: f.entrypoints}
	report.HasIBCEntryPoints = report.HasEntrypoint("ibc_packet_receive")
	return &report, nil
}

func (f *fakeEngine) Reply(_ context.Context, _ types.Checksum, _ types.Env, reply types.Reply, st types.KVStore, _ types.GoAPI, _ types.Querier, _ uint64) (*types.Response, uint64, error) {
	f.replies = append(f.replies, reply)
	if f.replyFn != nil {
		resp, err := f.replyFn(reply, st)
		return resp, 0, err
	}
	return &types.Response{}, 0, nil
}

func (f *fakeEngine) IBCChannelOpen(_ context.Context, _ types.Checksum, _ types.Env, msg types.IBCChannelOpenMsg, st types.KVStore, _ types.GoAPI, _ types.Querier, _ uint64) (*types.IBC3ChannelOpenResponse, uint64, error) {
	if f.openFn != nil {
		resp, err := f.openFn(msg, st)
		return resp, 0, err
	}
	return nil, 0, nil
}

func (f *fakeEngine) IBCChannelConnect(_ context.Context, _ types.Checksum, _ types.Env, msg types.IBCChannelConnectMsg, st types.KVStore, _ types.GoAPI, _ types.Querier, _ uint64) (*types.IBCBasicResponse, uint64, error) {
	if f.connectFn != nil {
		resp, err := f.connectFn(msg, st)
		return resp, 0, err
	}
	return &types.IBCBasicResponse{}, 0, nil
}

func (f *fakeEngine) IBCChannelClose(_ context.Context, _ types.Checksum, _ types.Env, msg types.IBCChannelCloseMsg, st types.KVStore, _ types.GoAPI, _ types.Querier, _ uint64) (*types.IBCBasicResponse, uint64, error) {
	if f.closeFn != nil {
		resp, err := f.closeFn(msg, st)
		return resp, 0, err
	}
	return &types.IBCBasicResponse{}, 0, nil
}

func (f *fakeEngine) IBCPacketReceive(_ context.Context, _ types.Checksum, _ types.Env, msg types.IBCPacketReceiveMsg, st types.KVStore, _ types.GoAPI, _ types.Querier, _ uint64) (*types.IBCReceiveResult, uint64, error) {
	if f.receiveFn != nil {
		result, err := f.receiveFn(msg, st)
		return result, 0, err
	}
	return &types.IBCReceiveResult{Ok: &types.IBCReceiveResponse{Acknowledgement: []byte("ok")}}, 0, nil
}

func (f *fakeEngine) IBCPacketAck(_ context.Context, _ types.Checksum, _ types.Env, msg types.IBCPacketAckMsg, st types.KVStore, _ types.GoAPI, _ types.Querier, _ uint64) (*types.IBCBasicResponse, uint64, error) {
	if f.ackFn != nil {
		resp, err := f.ackFn(msg, st)
		return resp, 0, err
	}
	return &types.IBCBasicResponse{}, 0, nil
}

func (f *fakeEngine) IBCPacketTimeout(_ context.Context, _ types.Checksum, _ types.Env, msg types.IBCPacketTimeoutMsg, st types.KVStore, _ types.GoAPI, _ types.Querier, _ uint64) (*types.IBCBasicResponse, uint64, error) {
	if f.timeoutFn != nil {
		resp, err := f.timeoutFn(msg, st)
		return resp, 0, err
	}
	return &types.IBCBasicResponse{}, 0, nil
}

func (f *fakeEngine) IBCEncodeAcknowledgement(_ context.Context, _ types.Checksum, _ types.Env, msg types.IBCEncodeAcknowledgementMsg, st types.KVStore, _ types.GoAPI, _ types.Querier, _ uint64) ([]byte, uint64, error) {
	if f.encodeFn != nil {
		ack, err := f.encodeFn(msg, st)
		return ack, 0, err
	}
	ack, err := EncodeAcknowledgement(msg.Result)
	return ack, 0, err
}

func mustEncodeAck(result types.IBCAckResult) []byte {
	data, _ := EncodeAcknowledgement(result)
	return data
}

func testEnv() types.Env {
	return types.Env{
		Block:    types.BlockInfo{Height: 100, Time: types.Uint64(1_700_000_000_000_000_000), ChainID: "test-1"},
		Contract: types.ContractInfo{Address: "cosmos1contract"},
	}
}

func testChannel(id string, order types.IBCOrder) types.IBCChannel {
	return types.IBCChannel{
		Endpoint:             types.IBCEndpoint{PortID: "wasm.cosmos1contract", ChannelID: id},
		CounterpartyEndpoint: types.IBCEndpoint{PortID: "transfer", ChannelID: "channel-9"},
		Order:                order,
		Version:              "ics20-1",
		ConnectionID:         "connection-0",
	}
}

type dispatcherOpts struct {
	engine  *fakeEngine
	handler MessageHandler
}

func newTestDispatcher(t *testing.T, opts dispatcherOpts) (*Dispatcher, *store.MemDB, *fakeEngine) {
	t.Helper()
	engine := opts.engine
	if engine == nil {
		engine = newFakeEngine()
	}
	db := store.NewMemDB()
	d, err := NewDispatcher(context.Background(), DispatcherConfig{
		Engine:   engine,
		Checksum: types.CalculateChecksum([]byte("test contract")),
		Store:    db,
		GasLimit: 1_000_000,
		Handler:  opts.handler,
	})
	require.NoError(t, err)
	return d, db, engine
}

// openAndConnect runs the full handshake so packet tests start from an open
// channel.
func openAndConnect(t *testing.T, d *Dispatcher, channel types.IBCChannel) {
	t.Helper()
	version, err := d.OpenChannel(context.Background(), testEnv(), (&types.IBCOpenInit{Channel: channel}).ToMsg())
	require.NoError(t, err)
	require.NoError(t, d.ConnectChannel(context.Background(), testEnv(), (&types.IBCOpenAck{
		Channel:             channel,
		CounterpartyVersion: version,
	}).ToMsg()))
}

func recvMsg(channel types.IBCChannel, sequence uint64, data []byte) types.IBCPacketReceiveMsg {
	return types.IBCPacketReceiveMsg{
		Packet: types.IBCPacket{
			Data:     data,
			Src:      channel.CounterpartyEndpoint,
			Dest:     channel.Endpoint,
			Sequence: sequence,
			Timeout:  types.IBCTimeout{Timestamp: types.Uint64(2_000_000_000_000_000_000)},
		},
		Relayer: "cosmos1relayer",
	}
}

func TestDispatcherRequiresIBCContract(t *testing.T) {
	engine := newFakeEngine()
	engine.entrypoints = []string{"init", "execute"}

	_, err := NewDispatcher(context.Background(), DispatcherConfig{
		Engine:   engine,
		Checksum: types.CalculateChecksum([]byte("plain contract")),
		Store:    store.NewMemDB(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handlers")
}

func TestHandshake(t *testing.T) {
	d, _, _ := newTestDispatcher(t, dispatcherOpts{})
	channel := testChannel("channel-3", types.Unordered)

	version, err := d.OpenChannel(context.Background(), testEnv(), (&types.IBCOpenInit{Channel: channel}).ToMsg())
	require.NoError(t, err)
	assert.Equal(t, "ics20-1", version)

	status, err := d.ChannelStatus("channel-3")
	require.NoError(t, err)
	assert.Equal(t, StatusInit, status)

	require.NoError(t, d.ConnectChannel(context.Background(), testEnv(), (&types.IBCOpenAck{
		Channel:             channel,
		CounterpartyVersion: "ics20-1",
	}).ToMsg()))

	status, err = d.ChannelStatus("channel-3")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, status)
}

func TestHandshakeVersionNegotiation(t *testing.T) {
	engine := newFakeEngine()
	engine.openFn = func(types.IBCChannelOpenMsg, types.KVStore) (*types.IBC3ChannelOpenResponse, error) {
		return &types.IBC3ChannelOpenResponse{Version: "my-protocol-7"}, nil
	}
	d, _, _ := newTestDispatcher(t, dispatcherOpts{engine: engine})
	channel := testChannel("channel-3", types.Unordered)

	version, err := d.OpenChannel(context.Background(), testEnv(), (&types.IBCOpenInit{Channel: channel}).ToMsg())
	require.NoError(t, err)
	assert.Equal(t, "my-protocol-7", version)

	// connecting with the proposed version instead of the negotiated one fails
	err = d.ConnectChannel(context.Background(), testEnv(), (&types.IBCOpenAck{
		Channel:             channel,
		CounterpartyVersion: "ics20-1",
	}).ToMsg())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	// the channel stays in INIT and can still be connected correctly
	status, err := d.ChannelStatus("channel-3")
	require.NoError(t, err)
	assert.Equal(t, StatusInit, status)
	require.NoError(t, d.ConnectChannel(context.Background(), testEnv(), (&types.IBCOpenAck{
		Channel:             channel,
		CounterpartyVersion: "my-protocol-7",
	}).ToMsg()))
}

func TestHandshakeContractRejects(t *testing.T) {
	engine := newFakeEngine()
	engine.openFn = func(types.IBCChannelOpenMsg, types.KVStore) (*types.IBC3ChannelOpenResponse, error) {
		return nil, errors.New("unsupported channel ordering")
	}
	d, _, _ := newTestDispatcher(t, dispatcherOpts{engine: engine})

	_, err := d.OpenChannel(context.Background(), testEnv(), (&types.IBCOpenInit{
		Channel: testChannel("channel-3", types.Ordered),
	}).ToMsg())
	require.Error(t, err)

	// nothing was recorded, the channel does not exist
	_, err = d.ChannelStatus("channel-3")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestHandshakeDuplicateChannel(t *testing.T) {
	d, _, _ := newTestDispatcher(t, dispatcherOpts{})
	channel := testChannel("channel-3", types.Unordered)

	_, err := d.OpenChannel(context.Background(), testEnv(), (&types.IBCOpenInit{Channel: channel}).ToMsg())
	require.NoError(t, err)
	_, err = d.OpenChannel(context.Background(), testEnv(), (&types.IBCOpenInit{Channel: channel}).ToMsg())
	assert.ErrorIs(t, err, ErrChannelExists)
}

func TestCloseChannelIsTerminal(t *testing.T) {
	d, _, _ := newTestDispatcher(t, dispatcherOpts{})
	channel := testChannel("channel-3", types.Unordered)
	openAndConnect(t, d, channel)

	require.NoError(t, d.CloseChannel(context.Background(), testEnv(), (&types.IBCCloseInit{Channel: channel}).ToMsg()))
	status, err := d.ChannelStatus("channel-3")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, status)

	// no packets on a closed channel
	_, err = d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 1, []byte("late")))
	assert.ErrorIs(t, err, ErrChannelNotOpen)
	_, err = d.SendPacket("channel-3", []byte("out"), types.IBCTimeout{Timestamp: 1})
	assert.ErrorIs(t, err, ErrChannelNotOpen)
}

func TestRecvPacketSuccess(t *testing.T) {
	engine := newFakeEngine()
	engine.receiveFn = func(msg types.IBCPacketReceiveMsg, st types.KVStore) (*types.IBCReceiveResult, error) {
		st.Set([]byte("last_packet"), msg.Packet.Data)
		return &types.IBCReceiveResult{
			Ok: &types.IBCReceiveResponse{Acknowledgement: []byte(`{"count":1}`)},
		}, nil
	}
	d, db, _ := newTestDispatcher(t, dispatcherOpts{engine: engine})
	channel := testChannel("channel-3", types.Unordered)
	openAndConnect(t, d, channel)

	ack, err := d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 1, []byte("hello")))
	require.NoError(t, err)

	decoded, err := DecodeAcknowledgement(ack)
	require.NoError(t, err)
	assert.True(t, decoded.Success())
	assert.Equal(t, []byte(`{"count":1}`), decoded.Result)

	// the contract's write was committed
	assert.Equal(t, []byte("hello"), db.Get([]byte("last_packet")))

	// redelivery is refused
	_, err = d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 1, []byte("hello")))
	assert.ErrorIs(t, err, ErrDuplicatePacket)
}

func TestRecvPacketContractErrorRollsBack(t *testing.T) {
	engine := newFakeEngine()
	engine.receiveFn = func(msg types.IBCPacketReceiveMsg, st types.KVStore) (*types.IBCReceiveResult, error) {
		st.Set([]byte("partial"), []byte("state"))
		return &types.IBCReceiveResult{Err: "invalid packet payload"}, nil
	}
	d, db, _ := newTestDispatcher(t, dispatcherOpts{engine: engine})
	channel := testChannel("channel-3", types.Unordered)
	openAndConnect(t, d, channel)

	ack, err := d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 1, []byte("bad")))
	require.NoError(t, err, "a contract-level error still yields an acknowledgement")

	decoded, err := DecodeAcknowledgement(ack)
	require.NoError(t, err)
	assert.False(t, decoded.Success())
	assert.Equal(t, "invalid packet payload", decoded.Error)

	// every write of the failed receive was rolled back
	assert.Nil(t, db.Get([]byte("partial")))

	// the packet still counts as received
	_, err = d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 1, []byte("bad")))
	assert.ErrorIs(t, err, ErrDuplicatePacket)
}

func TestRecvPacketHostErrorLeavesPacketUndelivered(t *testing.T) {
	engine := newFakeEngine()
	failing := true
	engine.receiveFn = func(msg types.IBCPacketReceiveMsg, st types.KVStore) (*types.IBCReceiveResult, error) {
		if failing {
			return nil, errors.New("out of gas")
		}
		return &types.IBCReceiveResult{Ok: &types.IBCReceiveResponse{Acknowledgement: []byte("ok")}}, nil
	}
	d, _, _ := newTestDispatcher(t, dispatcherOpts{engine: engine})
	channel := testChannel("channel-3", types.Unordered)
	openAndConnect(t, d, channel)

	_, err := d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 1, []byte("x")))
	require.Error(t, err)

	// not marked received, the relayer may retry
	failing = false
	_, err = d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 1, []byte("x")))
	require.NoError(t, err)
}

func TestRecvPacketOrderedSequence(t *testing.T) {
	d, _, _ := newTestDispatcher(t, dispatcherOpts{})
	channel := testChannel("channel-3", types.Ordered)
	openAndConnect(t, d, channel)

	// sequence 2 before 1 is refused
	_, err := d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 2, []byte("b")))
	assert.ErrorIs(t, err, ErrWrongSequence)

	_, err = d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 1, []byte("a")))
	require.NoError(t, err)
	_, err = d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 2, []byte("b")))
	require.NoError(t, err)

	// going backwards is a duplicate
	_, err = d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 1, []byte("a")))
	assert.ErrorIs(t, err, ErrDuplicatePacket)
}

func TestRecvPacketUnorderedAnyOrder(t *testing.T) {
	d, _, _ := newTestDispatcher(t, dispatcherOpts{})
	channel := testChannel("channel-3", types.Unordered)
	openAndConnect(t, d, channel)

	for _, seq := range []uint64{5, 2, 9} {
		_, err := d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, seq, []byte("x")))
		require.NoError(t, err)
	}
	_, err := d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 5, []byte("x")))
	assert.ErrorIs(t, err, ErrDuplicatePacket)
}

func TestRecvPacketSubMessages(t *testing.T) {
	var handled []uint64
	handler := func(_ context.Context, msg types.CosmosMsg, st types.KVStore) ([]types.Event, []byte, error) {
		var sub struct {
			ID uint64 `json:"id"`
		}
		_ = json.Unmarshal(msg.Custom, &sub)
		handled = append(handled, sub.ID)
		if sub.ID == 2 {
			return nil, nil, errors.New("bank says no")
		}
		st.Set([]byte(fmt.Sprintf("submsg-%d", sub.ID)), []byte("done"))
		return nil, nil, nil
	}

	engine := newFakeEngine()
	engine.receiveFn = func(msg types.IBCPacketReceiveMsg, st types.KVStore) (*types.IBCReceiveResult, error) {
		st.Set([]byte("received"), msg.Packet.Data)
		return &types.IBCReceiveResult{
			Ok: &types.IBCReceiveResponse{
				Acknowledgement: []byte("ok"),
				Messages: []types.SubMsg{
					{ID: 1, Msg: types.CosmosMsg{Custom: []byte(`{"id":1}`)}, ReplyOn: types.ReplyNever},
					{ID: 2, Msg: types.CosmosMsg{Custom: []byte(`{"id":2}`)}, ReplyOn: types.ReplyNever},
					{ID: 3, Msg: types.CosmosMsg{Custom: []byte(`{"id":3}`)}, ReplyOn: types.ReplyNever},
				},
			},
		}, nil
	}
	d, db, _ := newTestDispatcher(t, dispatcherOpts{engine: engine, handler: handler})
	channel := testChannel("channel-3", types.Unordered)
	openAndConnect(t, d, channel)

	ack, err := d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 1, []byte("payload")))
	require.NoError(t, err)

	// messages ran in order and stopped at the failure
	assert.Equal(t, []uint64{1, 2}, handled)

	// the failing sub-message turned the whole receive into an error ack
	decoded, err := DecodeAcknowledgement(ack)
	require.NoError(t, err)
	assert.False(t, decoded.Success())
	assert.Contains(t, decoded.Error, "bank says no")

	// nothing was committed, not even the first sub-message or the receive
	assert.Nil(t, db.Get([]byte("received")))
	assert.Nil(t, db.Get([]byte("submsg-1")))
}

func TestSubMessageReplies(t *testing.T) {
	handler := func(_ context.Context, msg types.CosmosMsg, st types.KVStore) ([]types.Event, []byte, error) {
		if string(msg.Custom) == `"fail"` {
			return nil, nil, errors.New("handler failure")
		}
		return []types.Event{{Type: "wasm"}}, []byte("result data"), nil
	}
	engine := newFakeEngine()
	engine.receiveFn = func(msg types.IBCPacketReceiveMsg, st types.KVStore) (*types.IBCReceiveResult, error) {
		return &types.IBCReceiveResult{
			Ok: &types.IBCReceiveResponse{
				Acknowledgement: []byte("ok"),
				Messages: []types.SubMsg{
					{ID: 10, Msg: types.CosmosMsg{Custom: []byte(`"work"`)}, ReplyOn: types.ReplySuccess},
					{ID: 11, Msg: types.CosmosMsg{Custom: []byte(`"fail"`)}, ReplyOn: types.ReplyError},
					{ID: 12, Msg: types.CosmosMsg{Custom: []byte(`"work"`)}, ReplyOn: types.ReplyNever},
				},
			},
		}, nil
	}
	d, _, fe := newTestDispatcher(t, dispatcherOpts{engine: engine, handler: handler})
	channel := testChannel("channel-3", types.Unordered)
	openAndConnect(t, d, channel)

	ack, err := d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 1, []byte("x")))
	require.NoError(t, err)
	decoded, err := DecodeAcknowledgement(ack)
	require.NoError(t, err)
	assert.True(t, decoded.Success())

	// one reply per matching mode, none for ReplyNever
	require.Len(t, fe.replies, 2)
	assert.Equal(t, uint64(10), fe.replies[0].ID)
	require.NotNil(t, fe.replies[0].Result.Ok)
	assert.Equal(t, []byte("result data"), fe.replies[0].Result.Ok.Data)
	assert.Equal(t, uint64(11), fe.replies[1].ID)
	assert.Equal(t, "handler failure", fe.replies[1].Result.Err)
}

func TestAckTimeoutExclusive(t *testing.T) {
	d, _, _ := newTestDispatcher(t, dispatcherOpts{})
	channel := testChannel("channel-3", types.Unordered)
	openAndConnect(t, d, channel)

	packet, err := d.SendPacket("channel-3", []byte("ping"), types.IBCTimeout{
		Block: &types.IBCTimeoutBlock{Revision: 1, Height: 50},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), packet.Sequence)

	ackMsg := types.IBCPacketAckMsg{
		Acknowledgement: types.IBCAcknowledgement{Data: mustEncodeAck(types.IBCAckResult{Ok: []byte("pong")})},
		OriginalPacket:  packet,
		Relayer:         "cosmos1relayer",
	}
	require.NoError(t, d.AckPacket(context.Background(), testEnv(), ackMsg))

	// a second acknowledgement is refused
	assert.ErrorIs(t, d.AckPacket(context.Background(), testEnv(), ackMsg), ErrPacketSettled)

	// and so is a timeout after the acknowledgement, even though it elapsed
	err = d.TimeoutPacket(context.Background(), testEnv(), types.IBCPacketTimeoutMsg{
		Packet:  packet,
		Relayer: "cosmos1relayer",
	})
	assert.ErrorIs(t, err, ErrPacketSettled)

	stored, err := d.PacketAcknowledgement("channel-3", 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), stored.Result)
}

func TestTimeoutRequiresElapsed(t *testing.T) {
	d, _, _ := newTestDispatcher(t, dispatcherOpts{})
	channel := testChannel("channel-3", types.Unordered)
	openAndConnect(t, d, channel)

	// testEnv is at height 100; a packet timing out at height 500 is alive
	packet, err := d.SendPacket("channel-3", []byte("ping"), types.IBCTimeout{
		Block: &types.IBCTimeoutBlock{Revision: 1, Height: 500},
	})
	require.NoError(t, err)

	timeoutMsg := types.IBCPacketTimeoutMsg{Packet: packet, Relayer: "cosmos1relayer"}
	assert.ErrorIs(t, d.TimeoutPacket(context.Background(), testEnv(), timeoutMsg), ErrTimeoutNotElapsed)

	// at height 500 the timeout has elapsed
	lateEnv := testEnv()
	lateEnv.Block.Height = 500
	require.NoError(t, d.TimeoutPacket(context.Background(), lateEnv, timeoutMsg))

	// the packet settled as timed out, acknowledging is refused now
	err = d.AckPacket(context.Background(), lateEnv, types.IBCPacketAckMsg{
		Acknowledgement: types.IBCAcknowledgement{Data: mustEncodeAck(types.IBCAckResult{Ok: []byte("late")})},
		OriginalPacket:  packet,
		Relayer:         "cosmos1relayer",
	})
	assert.ErrorIs(t, err, ErrPacketSettled)
}

func TestAckPacketRejectsMalformedEnvelope(t *testing.T) {
	d, _, _ := newTestDispatcher(t, dispatcherOpts{})
	channel := testChannel("channel-3", types.Unordered)
	openAndConnect(t, d, channel)

	packet, err := d.SendPacket("channel-3", []byte("ping"), types.IBCTimeout{Timestamp: 1})
	require.NoError(t, err)

	for name, data := range map[string][]byte{
		"not json":    []byte("garbage"),
		"both set":    []byte(`{"result":"ew==","error":"boom"}`),
		"neither set": []byte(`{}`),
		"empty error": []byte(`{"error":""}`),
	} {
		t.Run(name, func(t *testing.T) {
			err := d.AckPacket(context.Background(), testEnv(), types.IBCPacketAckMsg{
				Acknowledgement: types.IBCAcknowledgement{Data: data},
				OriginalPacket:  packet,
				Relayer:         "cosmos1relayer",
			})
			assert.Error(t, err)
		})
	}

	// the packet is still pending after the rejected envelopes
	require.NoError(t, d.AckPacket(context.Background(), testEnv(), types.IBCPacketAckMsg{
		Acknowledgement: types.IBCAcknowledgement{Data: mustEncodeAck(types.IBCAckResult{Ok: []byte("fine")})},
		OriginalPacket:  packet,
		Relayer:         "cosmos1relayer",
	}))
}

func TestContractAcknowledgementEncoder(t *testing.T) {
	engine := newFakeEngine()
	engine.entrypoints = append(engine.entrypoints, "ibc_encode_acknowledgement")
	engine.receiveFn = func(msg types.IBCPacketReceiveMsg, st types.KVStore) (*types.IBCReceiveResult, error) {
		st.Set([]byte("marker"), []byte("new"))
		return &types.IBCReceiveResult{Ok: &types.IBCReceiveResponse{Acknowledgement: []byte("payload")}}, nil
	}
	var encoderSawMarker []byte
	engine.encodeFn = func(msg types.IBCEncodeAcknowledgementMsg, st types.KVStore) ([]byte, error) {
		// the encoder must observe pre-receive state
		encoderSawMarker = st.Get([]byte("marker"))
		return append([]byte("custom:"), msg.Result.Ok...), nil
	}
	d, db, _ := newTestDispatcher(t, dispatcherOpts{engine: engine})
	channel := testChannel("channel-3", types.Unordered)
	openAndConnect(t, d, channel)

	ack, err := d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 1, []byte("x")))
	require.NoError(t, err)
	assert.Equal(t, []byte("custom:payload"), ack)
	assert.Nil(t, encoderSawMarker, "encoder must not see writes of the receive being acknowledged")

	// after the receive committed, the marker is visible
	assert.Equal(t, []byte("new"), db.Get([]byte("marker")))
}

func TestEncoderFailureAbortsReceive(t *testing.T) {
	engine := newFakeEngine()
	engine.entrypoints = append(engine.entrypoints, "ibc_encode_acknowledgement")
	engine.receiveFn = func(msg types.IBCPacketReceiveMsg, st types.KVStore) (*types.IBCReceiveResult, error) {
		st.Set([]byte("marker"), []byte("new"))
		return &types.IBCReceiveResult{Ok: &types.IBCReceiveResponse{Acknowledgement: []byte("payload")}}, nil
	}
	engine.encodeFn = func(types.IBCEncodeAcknowledgementMsg, types.KVStore) ([]byte, error) {
		return nil, errors.New("encoder broken")
	}
	d, db, _ := newTestDispatcher(t, dispatcherOpts{engine: engine})
	channel := testChannel("channel-3", types.Unordered)
	openAndConnect(t, d, channel)

	_, err := d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 1, []byte("x")))
	require.Error(t, err)

	// no state change, no received marker: the relayer may redeliver
	assert.Nil(t, db.Get([]byte("marker")))
	_, err = d.RecvPacket(context.Background(), testEnv(), recvMsg(channel, 1, []byte("x")))
	require.Error(t, err, "still failing, but as the same encoder error, not a duplicate")
	assert.NotErrorIs(t, err, ErrDuplicatePacket)
}
