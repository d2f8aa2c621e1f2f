package main

import (
	"encoding/json"
	"regexp"
)

// Inbound frames larger than this are answered with an error frame and
// otherwise ignored.
const maxFrameBytes = 4096

var pinPattern = regexp.MustCompile(`^[0-9]{6}$`)

// ClientMessage is the single envelope for all frames coming from clients.
type ClientMessage struct {
	Type   string          `json:"type"`             // "host_join", "player_join", "start_game", "next_question", "end_game", "answer"
	Pin    string          `json:"pin,omitempty"`    // 6-digit game code
	Name   string          `json:"name,omitempty"`   // player_join
	Answer json.RawMessage `json:"answer,omitempty"` // answer: single index or array of indices
	Final  bool            `json:"final,omitempty"`  // answer: submit a multi-choice selection
}

// decodeClientMessage parses one inbound frame. The second return is false
// for malformed frames and for pin fields that are not exactly six digits;
// both are dropped silently by the caller.
func decodeClientMessage(data []byte) (ClientMessage, bool) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, false
	}
	if msg.Type == "" {
		return ClientMessage{}, false
	}
	if msg.Pin != "" && !pinPattern.MatchString(msg.Pin) {
		return ClientMessage{}, false
	}
	return msg, true
}

// parseSelection accepts the answer payload as either a bare index or an
// array of indices.
func parseSelection(raw json.RawMessage) ([]int, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	var single int
	if err := json.Unmarshal(raw, &single); err == nil {
		return []int{single}, true
	}

	var multiple []int
	if err := json.Unmarshal(raw, &multiple); err == nil {
		return multiple, true
	}

	return nil, false
}

// Messages sent to clients

type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

func errorFrame(message string) ErrorMessage {
	return ErrorMessage{Type: "error", Message: message}
}

// HostJoinedMessage acks a host_join.
type HostJoinedMessage struct {
	Type string `json:"type"` // "host_joined"
	Pin  string `json:"pin"`
}

// JoinedMessage acks a player_join with the player's assigned id.
type JoinedMessage struct {
	Type     string `json:"type"` // "joined"
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

// PlayerJoinedMessage informs the host of a new player.
type PlayerJoinedMessage struct {
	Type  string `json:"type"` // "player_joined"
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// PlayerLeftMessage informs the host that a player disconnected.
type PlayerLeftMessage struct {
	Type  string `json:"type"` // "player_left"
	Count int    `json:"count"`
}

// HostLeftMessage informs players that the host disconnected.
type HostLeftMessage struct {
	Type string `json:"type"` // "host_left"
}

// QuestionMessage presents the current question. The host variant carries
// the correct answer; the player variant omits it.
type QuestionMessage struct {
	Type         string   `json:"type"` // "question"
	Index        int      `json:"index"`
	Total        int      `json:"total"`
	Question     string   `json:"question"`
	Answers      []string `json:"answers"`
	Time         int      `json:"time"`
	QuestionType string   `json:"questionType"`
	Image        string   `json:"image,omitempty"`
	Correct      any      `json:"correct,omitempty"`
}

// AnswerReceivedMessage is sent privately to a submitter.
type AnswerReceivedMessage struct {
	Type    string `json:"type"` // "answer_received"
	Correct bool   `json:"correct"`
	Points  int    `json:"points"`
}

// AnswerCountMessage updates the host on submission progress.
type AnswerCountMessage struct {
	Type  string `json:"type"` // "answer_count"
	Count int    `json:"count"`
	Total int    `json:"total"`
}

// LeaderboardEntry is one ranked row; ranks run 1..N in descending score,
// ties broken by join order.
type LeaderboardEntry struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// QuestionResultMessage reveals the answer. The host variant additionally
// carries per-choice answer counts.
type QuestionResultMessage struct {
	Type         string             `json:"type"` // "question_result"
	Correct      any                `json:"correct"`
	Leaderboard  []LeaderboardEntry `json:"leaderboard"`
	QuestionType string             `json:"questionType"`
	IsLast       bool               `json:"isLast"`
	AnswerCounts []int              `json:"answerCounts,omitempty"`
}

// GameOverMessage carries the final leaderboard.
type GameOverMessage struct {
	Type        string             `json:"type"` // "game_over"
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}
