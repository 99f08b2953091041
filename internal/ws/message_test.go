package ws

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPollID = "6f1f57ec-8e4a-4c27-9f1d-2a27a25f1f10"

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantKind MessageKind
		wantPoll string
		wantErr  string
	}{
		{
			name:     "valid subscribe",
			payload:  `{"type":"subscribe","poll_id":"` + testPollID + `"}`,
			wantKind: KindSubscribe,
			wantPoll: testPollID,
		},
		{
			name:     "valid unsubscribe",
			payload:  `{"type":"unsubscribe"}`,
			wantKind: KindUnsubscribe,
		},
		{
			name:     "valid ping",
			payload:  `{"type":"ping"}`,
			wantKind: KindPing,
		},
		{
			name:    "not JSON",
			payload: `subscribe please`,
			wantErr: "malformed JSON frame",
		},
		{
			name:    "missing type",
			payload: `{"poll_id":"` + testPollID + `"}`,
			wantErr: "invalid message type",
		},
		{
			name:    "type outside lexical bound",
			payload: `{"type":"subscribe; DROP TABLE votes"}`,
			wantErr: "invalid message type",
		},
		{
			name:    "unknown type",
			payload: `{"type":"resubscribe"}`,
			wantErr: "unknown message type",
		},
		{
			name:    "subscribe without poll id",
			payload: `{"type":"subscribe"}`,
			wantErr: "valid poll_id",
		},
		{
			name:    "subscribe with non-uuid poll id",
			payload: `{"type":"subscribe","poll_id":"../etc/passwd"}`,
			wantErr: "valid poll_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseInbound([]byte(tt.payload))

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, msg.Kind)
			assert.Equal(t, tt.wantPoll, msg.PollID)
		})
	}
}

func TestParseInboundOversized(t *testing.T) {
	// A structurally valid frame that blows the size bound must be
	// rejected before parsing
	padding := bytes.Repeat([]byte("x"), maxMessageSize)
	payload, err := json.Marshal(map[string]string{
		"type":    "ping",
		"padding": string(padding),
	})
	require.NoError(t, err)

	_, err = ParseInbound(payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestVoteUpdateFrameShape(t *testing.T) {
	frame := NewVoteUpdateFrame(testPollID, map[string]int{"opt-a": 2}, 2, false)

	data, err := json.Marshal(frame)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "vote_update", decoded["type"])
	assert.Equal(t, testPollID, decoded["poll_id"])
	assert.EqualValues(t, 2, decoded["total_votes"])
	assert.Equal(t, false, decoded["is_expired"])
}
