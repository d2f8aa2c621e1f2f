package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGameCodeFormat(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		code := newGameCode()
		assert.Regexp(t, `^[0-9]{6}$`, code)
		seen[code] = true
	}

	// Not a randomness test, just a sanity check against a constant
	// generator.
	assert.Greater(t, len(seen), 1)
}

func TestDirectoryLifecycle(t *testing.T) {
	d := newGameDirectory(testConfig())

	code := d.createSession(singleChoiceQuiz())
	require.Regexp(t, `^[0-9]{6}$`, code)

	s, ok := d.lookup(code)
	require.True(t, ok)
	assert.Equal(t, code, s.code)
	assert.True(t, s.probe())

	_, ok = d.lookup("000000")
	if code != "000000" {
		assert.False(t, ok)
	}

	d.reap(code)
	_, ok = d.lookup(code)
	assert.False(t, ok)

	// Reaping twice is harmless.
	d.reap(code)
}

func TestProbeReflectsState(t *testing.T) {
	d := newGameDirectory(testConfig())

	code := d.createSession(singleChoiceQuiz())
	s, ok := d.lookup(code)
	require.True(t, ok)

	host := newTestClient()
	require.NoError(t, s.handleHostJoin(host))
	drainFrames(host)
	joinPlayer(t, s, "Alice")
	drainFrames(host)

	require.True(t, s.probe())
	require.NoError(t, s.handleStartGame(host))
	assert.False(t, s.probe())
}
