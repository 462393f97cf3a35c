package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refreshMessage struct {
	Reason string `json:"reason"`
}

func TestDecodeJSON(t *testing.T) {
	msg, err := DecodeJSON[refreshMessage]([]byte(`{"reason":"nightly import"}`))
	require.NoError(t, err)
	assert.Equal(t, "nightly import", msg.Reason)

	_, err = DecodeJSON[refreshMessage]([]byte(`not json`))
	assert.Error(t, err)
}

func TestBuildMessage(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg, err := buildMessage(Event{
		Key:   "index-fitted",
		Type:  "index_fitted",
		Value: map[string]any{"version": 3},
	}, at)
	require.NoError(t, err)

	assert.Equal(t, "index-fitted", string(msg.Key))
	assert.JSONEq(t, `{"version":3}`, string(msg.Value))
	assert.Equal(t, at, msg.Time)

	headers := make(map[string]string)
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "application/json", headers[HeaderContentType])
	assert.Equal(t, "index_fitted", headers[HeaderEventType])
}

func TestBuildMessageRejectsUnencodableValue(t *testing.T) {
	_, err := buildMessage(Event{Type: "bad", Value: make(chan int)}, time.Now())
	assert.Error(t, err)
}
