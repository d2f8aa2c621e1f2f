/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"sync"

	"github.com/google/uuid"
)

// GameDirectory maps 6-digit game codes to live sessions. It is the sole
// owner of session objects: connections carry codes, not references, so
// nothing dangles after a session is reaped.
type GameDirectory struct {
	mu       sync.Mutex
	cfg      *Config
	sessions map[string]*session
}

func newGameDirectory(cfg *Config) *GameDirectory {
	return &GameDirectory{
		cfg:      cfg,
		sessions: make(map[string]*session),
	}
}

// newGameCode generates a crypto-random 6-digit code.
func newGameCode() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}

	out := make([]byte, 6)
	for i := range out {
		out[i] = '0' + buf[i]%10
	}

	return string(out)
}

func newParticipantID() string {
	return uuid.NewString()
}

// createSession allocates a new lobby for an already-sanitized quiz and
// registers it under a fresh code, retrying on the (unlikely) collision.
func (d *GameDirectory) createSession(quiz *Quiz) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var code string
	for {
		code = newGameCode()
		if _, exists := d.sessions[code]; !exists {
			break
		}
	}

	d.sessions[code] = newSession(d.cfg, code, quiz, func() {
		d.reap(code)
	})

	logf(d.cfg, "GAMES: Created game %s for quiz %q", code, quiz.Title)

	return code
}

func (d *GameDirectory) lookup(code string) (*session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[code]

	return s, ok
}

// reap removes a session unconditionally. Connections bound to the code
// keep their underlying websockets, but no further messages reach a game.
func (d *GameDirectory) reap(code string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[code]; !ok {
		return
	}

	delete(d.sessions, code)

	logf(d.cfg, "GAMES: Reaped game %s", code)
}
