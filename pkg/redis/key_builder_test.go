package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyBuilderEnvironmentPrefix(t *testing.T) {
	tests := []struct {
		environment string
		wantPrefix  string
	}{
		{"development", "staging"},
		{"staging", "staging"},
		{"test", "staging"},
		{"production", "prod"},
		{"", "prod"},
	}

	for _, tt := range tests {
		t.Run(tt.environment, func(t *testing.T) {
			kb := NewKeyBuilder(tt.environment)
			assert.Equal(t, tt.wantPrefix, kb.GetPrefix())
		})
	}
}

func TestKeyBuilderKeys(t *testing.T) {
	kb := NewKeyBuilder("production")

	assert.Equal(t, "prod:poll:p1:results", kb.KeyPollResults("p1"))
	assert.Equal(t, "prod:poll:p1", kb.KeyPoll("p1"))
	assert.Equal(t, "prod:ratelimit:vote_poll:voter-1:p1", kb.KeyRateWindow("vote_poll", "voter-1:p1"))
	assert.Equal(t, "prod:custom:42", kb.KeyCustom("custom:%d", 42))
}
