package main

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsTestServer(t *testing.T) (*httptest.Server, *GameDirectory) {
	t.Helper()

	cfg := testConfig()
	d := newGameDirectory(cfg)

	mux := httprouter.New()
	mux.GET("/ws", serveWS(cfg, d))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server, d
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	frame := map[string]any{}
	require.NoError(t, json.Unmarshal(data, &frame))

	return frame
}

func expectFrame(t *testing.T, conn *websocket.Conn, frameType string) map[string]any {
	t.Helper()

	frame := readFrame(t, conn)
	require.Equal(t, frameType, frame["type"], "frame: %v", frame)

	return frame
}

// Full happy path over real websockets: host and player join by code, the
// host starts the game, the player answers instantly for full points, the
// early-finish timer reveals the result, and the host ends the game.
func TestGameOverWebsocket(t *testing.T) {
	server, d := wsTestServer(t)
	code := d.createSession(singleChoiceQuiz())

	host := dialWS(t, server)
	writeFrame(t, host, map[string]any{"type": "host_join", "pin": code})
	expectFrame(t, host, "host_joined")

	player := dialWS(t, server)
	writeFrame(t, player, map[string]any{"type": "player_join", "pin": code, "name": "Alice"})

	joined := expectFrame(t, player, "joined")
	assert.Equal(t, "Alice", joined["name"])
	assert.NotEmpty(t, joined["playerId"])

	playerJoined := expectFrame(t, host, "player_joined")
	assert.Equal(t, float64(1), playerJoined["count"])

	writeFrame(t, host, map[string]any{"type": "start_game"})

	hostQuestion := expectFrame(t, host, "question")
	assert.Equal(t, float64(1), hostQuestion["correct"])
	playerQuestion := expectFrame(t, player, "question")
	assert.Equal(t, "2+2?", playerQuestion["question"])
	assert.NotContains(t, playerQuestion, "correct")

	writeFrame(t, player, map[string]any{"type": "answer", "answer": 1})

	received := expectFrame(t, player, "answer_received")
	assert.Equal(t, true, received["correct"])
	assert.Equal(t, float64(1000), received["points"])

	count := expectFrame(t, host, "answer_count")
	assert.Equal(t, float64(1), count["count"])
	assert.Equal(t, float64(1), count["total"])

	// All live players submitted; the reveal arrives about a second
	// later on both connections.
	hostResult := expectFrame(t, host, "question_result")
	assert.NotNil(t, hostResult["answerCounts"])
	playerResult := expectFrame(t, player, "question_result")
	assert.NotContains(t, playerResult, "answerCounts")
	assert.Equal(t, true, playerResult["isLast"])

	writeFrame(t, host, map[string]any{"type": "end_game"})

	over := expectFrame(t, player, "game_over")
	leaderboard := over["leaderboard"].([]any)
	require.Len(t, leaderboard, 1)
	first := leaderboard[0].(map[string]any)
	assert.Equal(t, "Alice", first["name"])
	assert.Equal(t, float64(1000), first["score"])
	expectFrame(t, host, "game_over")
}

func TestJoinErrorsOverWebsocket(t *testing.T) {
	server, d := wsTestServer(t)
	code := d.createSession(singleChoiceQuiz())

	missing := "000000"
	if missing == code {
		missing = "000001"
	}

	conn := dialWS(t, server)
	writeFrame(t, conn, map[string]any{"type": "player_join", "pin": missing, "name": "Alice"})
	frame := expectFrame(t, conn, "error")
	assert.Equal(t, errSessionNotFound.Error(), frame["message"])

	// Duplicate names are rejected case-insensitively.
	writeFrame(t, conn, map[string]any{"type": "player_join", "pin": code, "name": "Alice"})
	expectFrame(t, conn, "joined")

	other := dialWS(t, server)
	writeFrame(t, other, map[string]any{"type": "player_join", "pin": code, "name": "ALICE"})
	frame = expectFrame(t, other, "error")
	assert.Equal(t, errDuplicateName.Error(), frame["message"])
}

func TestOversizedFrameGetsError(t *testing.T) {
	server, _ := wsTestServer(t)

	conn := dialWS(t, server)
	writeFrame(t, conn, map[string]any{
		"type": "player_join",
		"pin":  "123456",
		"name": strings.Repeat("a", maxFrameBytes),
	})

	frame := expectFrame(t, conn, "error")
	assert.Equal(t, "Message too large.", frame["message"])

	// The connection survives the oversized frame.
	writeFrame(t, conn, map[string]any{"type": "host_join", "pin": "123456"})
	frame = expectFrame(t, conn, "error")
	assert.Equal(t, errSessionNotFound.Error(), frame["message"])
}
