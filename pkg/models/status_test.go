package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLState_String(t *testing.T) {
	tests := []struct {
		state URLState
		want  string
	}{
		{URLStateUnseen, "unseen"},
		{URLStateFetching, "fetching"},
		{URLStateExtracting, "extracting"},
		{URLStateDone, "done"},
		{URLStateFailed, "failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestURLState_IsTerminal(t *testing.T) {
	assert.True(t, URLStateDone.IsTerminal())
	assert.True(t, URLStateFailed.IsTerminal())
	assert.False(t, URLStateUnseen.IsTerminal())
	assert.False(t, URLStateFetching.IsTerminal())
	assert.False(t, URLStateExtracting.IsTerminal())
}

func TestURLState_CanTransition(t *testing.T) {
	tests := []struct {
		from, to URLState
		want     bool
	}{
		{URLStateUnseen, URLStateFetching, true},
		{URLStateUnseen, URLStateDone, false},
		{URLStateFetching, URLStateExtracting, true},
		{URLStateFetching, URLStateDone, true},
		{URLStateFetching, URLStateFailed, true},
		{URLStateFetching, URLStateFetching, false},
		{URLStateExtracting, URLStateDone, true},
		{URLStateExtracting, URLStateFailed, true},
		{URLStateExtracting, URLStateFetching, false},
		{URLStateDone, URLStateFailed, false},
		{URLStateFailed, URLStateDone, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}
