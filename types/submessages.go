package types

import (
	"encoding/json"
	"fmt"
)

// replyOn is a flag on a sub-message to control when the contract's reply
// entry point is invoked with the sub-message's result.
type replyOn int

const (
	ReplyAlways replyOn = iota
	ReplySuccess
	ReplyError
	ReplyNever
)

var fromReplyOn = map[replyOn]string{
	ReplyAlways:  "always",
	ReplySuccess: "success",
	ReplyError:   "error",
	ReplyNever:   "never",
}

var toReplyOn = map[string]replyOn{
	"always":  ReplyAlways,
	"success": ReplySuccess,
	"error":   ReplyError,
	"never":   ReplyNever,
}

func (r replyOn) String() string {
	return fromReplyOn[r]
}

func (r replyOn) MarshalJSON() ([]byte, error) {
	s, ok := fromReplyOn[r]
	if !ok {
		return nil, fmt.Errorf("invalid reply_on value: %v", int(r))
	}
	return json.Marshal(s)
}

func (r *replyOn) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, ok := toReplyOn[s]
	if !ok {
		return fmt.Errorf("invalid reply_on value: %q", s)
	}
	*r = v
	return nil
}

// SubMsg wraps a CosmosMsg with some metadata for handling replies (ID) and
// optionally limiting the gas usage (GasLimit)
type SubMsg struct {
	// ID is an arbitrary identifier set by the contract. It is returned in
	// the Reply so the contract can correlate results with requests.
	ID       uint64    `json:"id"`
	Msg      CosmosMsg `json:"msg"`
	GasLimit *uint64   `json:"gas_limit,omitempty"`
	ReplyOn  replyOn   `json:"reply_on"`
}

// Reply is what the reply entry point receives after a sub-message completes.
type Reply struct {
	ID     uint64       `json:"id"`
	Result SubMsgResult `json:"result"`
}

// SubMsgResult is the result of a sub-message dispatch.
// Exactly one of its fields is set.
type SubMsgResult struct {
	Ok  *SubMsgResponse `json:"ok,omitempty"`
	Err string          `json:"error,omitempty"`
}

// SubMsgResponse carries the events and data of a successful sub-message.
type SubMsgResponse struct {
	Events Array[Event] `json:"events"`
	Data   []byte       `json:"data,omitempty"`
}
