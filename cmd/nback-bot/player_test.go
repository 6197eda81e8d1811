package main

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/NBackTrainer/server/internal/events"
	"github.com/MRamiBalles/NBackTrainer/server/internal/nback"
)

func TestPerfectPlayerPressesOnlyOnMatches(t *testing.T) {
	p := newPlayer(rand.New(rand.NewSource(1)), 1)
	p.reset(2)

	var pressed []int
	for i, v := range []int{3, 7, 3, 9, 1, 7, 2, 3, 9, 1} {
		if p.observe(i+1, v) {
			pressed = append(pressed, i+1)
		}
	}
	assert.Equal(t, []int{3}, pressed)
	assert.Equal(t, 1, p.correct)
}

func TestWrongPlayerPressesOnEveryMiss(t *testing.T) {
	p := newPlayer(rand.New(rand.NewSource(1)), 0)
	p.reset(1)

	assert.False(t, p.observe(1, 5))
	assert.True(t, p.observe(2, 6))
	assert.False(t, p.observe(3, 6))
	assert.Equal(t, 0, p.correct)
}

func TestResetForgetsPreviousGame(t *testing.T) {
	p := newPlayer(rand.New(rand.NewSource(1)), 1)
	p.reset(1)
	p.observe(1, 4)
	p.reset(1)
	assert.False(t, p.observe(1, 4))
}

func TestDecodePayloadFromWire(t *testing.T) {
	raw := []byte(`{"type":"STIMULUS_SHOWN","actor_id":"SYSTEM","payload":{"index":4,"value":9,"letter":"I","spoken":false}}`)
	var e events.GameEvent
	require.NoError(t, json.Unmarshal(raw, &e))

	var stim nback.StimulusPayload
	require.NoError(t, decodePayload(&e, &stim))
	assert.Equal(t, 4, stim.Index)
	assert.Equal(t, 9, stim.Value)
}
