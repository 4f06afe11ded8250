package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmwasgo/wasmvm/types"
)

func TestAcknowledgementEnvelope(t *testing.T) {
	success, err := EncodeAcknowledgement(types.IBCAckResult{Ok: []byte(`{"ok":true}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":"eyJvayI6dHJ1ZX0="}`, string(success))

	failure, err := EncodeAcknowledgement(types.IBCAckResult{Err: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"boom"}`, string(failure))
}

func TestAcknowledgementEmptySuccessKeepsResultKey(t *testing.T) {
	data, err := json.Marshal(Acknowledgement{})
	require.NoError(t, err)
	assert.Equal(t, `{"result":""}`, string(data))

	decoded, err := DecodeAcknowledgement(data)
	require.NoError(t, err)
	assert.True(t, decoded.Success())
	assert.Empty(t, decoded.Result)
}

func TestDecodeAcknowledgementRoundTrip(t *testing.T) {
	encoded, err := EncodeAcknowledgement(types.IBCAckResult{Ok: []byte("payload")})
	require.NoError(t, err)

	decoded, err := DecodeAcknowledgement(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.Success())
	assert.Equal(t, []byte("payload"), decoded.Result)
}

func TestDecodeAcknowledgementRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"not json":   `result: ok`,
		"both keys":  `{"result":"AA==","error":"x"}`,
		"no keys":    `{}`,
		"only empty": `{"error":""}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeAcknowledgement([]byte(data))
			assert.Error(t, err)
		})
	}
}
