package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

type clientRole int

const (
	roleNone clientRole = iota
	roleHost
	rolePlayer
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection plus its binding: which game it
// belongs to, whether it is the host or a player, and (for players) the
// participant id. The binding is set by the first accepted join message
// and never changes for the life of the connection.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	code     string
	role     clientRole
	playerID string
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, 16),
	}
}

// trySend enqueues a pre-serialized frame without blocking. A slow reader
// with a full buffer loses the frame; the transport will eventually close
// the connection on its own.
func (c *Client) trySend(data []byte) {
	if data == nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump reads frames until the connection dies, dispatching each to the
// bound session. On exit it delivers the disconnect to the session before
// closing the send channel, so no session handler can write to a closed
// channel.
func (c *Client) readPump(cfg *Config, d *GameDirectory) {
	// Hard transport cap well above the protocol frame limit; frames
	// between the two limits get a polite error instead of a close.
	c.conn.SetReadLimit(64 * 1024)

	defer func() {
		_ = c.conn.Close()
		if c.code != "" {
			if s, ok := d.lookup(c.code); ok {
				s.handleDisconnect(c)
			}
		}
		close(c.send)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		if len(data) > maxFrameBytes {
			c.sendJSON(errorFrame("Message too large."))
			continue
		}

		msg, ok := decodeClientMessage(data)
		if !ok {
			continue
		}

		c.dispatch(cfg, d, msg)
	}
}

// dispatch routes one decoded frame. Unbound connections may only join;
// everything else needs the role the message calls for. Frames that do not
// fit are dropped without a reply.
func (c *Client) dispatch(cfg *Config, d *GameDirectory, msg ClientMessage) {
	if c.role == roleNone {
		switch msg.Type {
		case "host_join":
			s, ok := d.lookup(msg.Pin)
			if !ok {
				c.sendJSON(errorFrame(errSessionNotFound.Error()))
				return
			}
			if err := s.handleHostJoin(c); err != nil {
				c.sendJSON(errorFrame(err.Error()))
				return
			}
			c.code = msg.Pin
			c.role = roleHost

		case "player_join":
			s, ok := d.lookup(msg.Pin)
			if !ok {
				c.sendJSON(errorFrame(errSessionNotFound.Error()))
				return
			}
			playerID, err := s.handlePlayerJoin(c, msg.Name)
			if err != nil {
				c.sendJSON(errorFrame(err.Error()))
				return
			}
			c.code = msg.Pin
			c.role = rolePlayer
			c.playerID = playerID
		}

		return
	}

	s, ok := d.lookup(c.code)
	if !ok {
		return
	}

	switch c.role {
	case roleHost:
		switch msg.Type {
		case "start_game":
			if err := s.handleStartGame(c); err != nil {
				c.sendJSON(errorFrame(err.Error()))
			}
		case "next_question":
			s.handleNextQuestion(c)
		case "end_game":
			s.handleEndGame(c)
		}

	case rolePlayer:
		if msg.Type == "answer" {
			s.handleAnswer(c, msg)
		}
	}
}

// serveWS upgrades the connection and runs the pumps. The connection joins
// a game with its first message, not via the URL.
func serveWS(cfg *Config, d *GameDirectory) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: websocket upgrade from %s: %v", realIP(r), err)
			return
		}

		client := newClient(conn)

		go client.writePump()
		client.readPump(cfg, d)
	}
}

// qrHandler renders a PNG QR code pointing players at the join page for
// one game.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	pin := ps.ByName("pin")
	if !pinPattern.MatchString(pin) {
		http.Error(w, "invalid game code", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}
