// Quizbox game sessions
//
// Each session is a host-driven quiz joined by a 6-digit code. The host
// starts the game and paces it; the server times every question, scores
// submissions authoritatively, and pushes synchronized state to all
// connections over websockets.
//
// A session is a state machine: lobby → question → q_result, repeated per
// question, ending in final. Transitions come from three places: host
// messages, per-question timers, and connection closes. All of them are
// serialized through the session mutex, and timer callbacks re-check state
// after acquiring it, so a timer that lost the race to a host message
// becomes a no-op.

package main

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	maxParticipants = 100
	maxNameLength   = 20

	// Delay between the last live submission and the reveal.
	earlyRevealDelay = 1 * time.Second
	// Delay between the reveal and the automatic advance to the next
	// question (or to game over).
	advanceDelay = 5 * time.Second
)

type sessionState int

const (
	stateLobby sessionState = iota
	stateQuestion
	stateResult
	stateFinal
)

// Participant stays in the join-order list for the whole game, even after
// disconnecting; a nil client is the tombstone and the score stays on the
// leaderboard.
type Participant struct {
	id     string
	name   string
	score  int
	client *Client
}

// pendingAnswer tracks one participant's selection for the current
// question. Once submitted it is immutable until the next question resets
// the answers map.
type pendingAnswer struct {
	selection []int
	submitted bool
	correct   bool
	points    int
}

type session struct {
	code string
	quiz *Quiz
	cfg  *Config

	// reap removes this session from the directory; scheduled once,
	// when the game ends.
	reap func()

	mu            sync.Mutex
	host          *Client
	participants  []*Participant
	state         sessionState
	current       int
	answers       map[string]*pendingAnswer
	questionStart time.Time
	questionTimer *time.Timer
	autoTimer     *time.Timer
}

func newSession(cfg *Config, code string, quiz *Quiz, reap func()) *session {
	return &session{
		code:    code,
		quiz:    quiz,
		cfg:     cfg,
		reap:    reap,
		state:   stateLobby,
		current: -1,
		answers: make(map[string]*pendingAnswer),
	}
}

// Fan-out helpers. Payloads are marshalled once per call; sends to closed
// or tombstoned connections are skipped, and a full send buffer drops the
// frame rather than blocking the session.

func encodeFrame(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func (s *session) broadcastToPlayers(v any) {
	data := encodeFrame(v)
	if data == nil {
		return
	}
	for _, p := range s.participants {
		if p.client != nil {
			p.client.trySend(data)
		}
	}
}

func (s *session) sendToHost(v any) {
	if s.host == nil {
		return
	}
	data := encodeFrame(v)
	if data == nil {
		return
	}
	s.host.trySend(data)
}

// handleHostJoin binds c as the session's host. A second live host is not
// allowed; a host that disconnected can be replaced by a fresh connection.
func (s *session) handleHostJoin(c *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.host != nil {
		return nil // silently ignored; the session already has a host
	}
	s.host = c

	c.trySend(encodeFrame(HostJoinedMessage{Type: "host_joined", Pin: s.code}))

	return nil
}

// sanitizeName trims whitespace and strips angle brackets from a requested
// display name.
func sanitizeName(name string) string {
	name = strings.NewReplacer("<", "", ">", "").Replace(name)
	name = strings.TrimSpace(name)

	runes := []rune(name)
	if len(runes) > maxNameLength {
		name = string(runes[:maxNameLength])
	}

	return name
}

// handlePlayerJoin registers a new participant. Only possible in the
// lobby; names are case-insensitively unique for the life of the session,
// including names held by disconnected participants.
func (s *session) handlePlayerJoin(c *Client, requestedName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateLobby {
		return "", errAlreadyStarted
	}

	if len(s.participants) >= maxParticipants {
		return "", errSessionFull
	}

	name := sanitizeName(requestedName)
	if name == "" {
		return "", errInvalidName
	}

	for _, p := range s.participants {
		if strings.EqualFold(p.name, name) {
			return "", errDuplicateName
		}
	}

	p := &Participant{
		id:     newParticipantID(),
		name:   name,
		client: c,
	}
	s.participants = append(s.participants, p)

	c.trySend(encodeFrame(JoinedMessage{Type: "joined", PlayerID: p.id, Name: p.name}))
	s.sendToHost(PlayerJoinedMessage{Type: "player_joined", Name: p.name, Count: s.liveCountLocked()})

	logf(s.cfg, "GAMES: Player %q joined %s", p.name, s.code)

	return p.id, nil
}

// handleStartGame moves the session from lobby to the first question.
// Strictly guarded on the lobby state, so a duplicate start_game cannot
// advance the game twice.
func (s *session) handleStartGame(c *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.host == nil || c != s.host || s.state != stateLobby {
		return nil
	}

	if len(s.participants) == 0 {
		return errNoPlayers
	}

	logf(s.cfg, "GAMES: Game %s started with %d players", s.code, len(s.participants))

	s.startQuestionLocked(0)

	return nil
}

// handleNextQuestion lets the host short-circuit the post-reveal wait.
// Only honored in q_result.
func (s *session) handleNextQuestion(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.host == nil || c != s.host || s.state != stateResult {
		return
	}

	if s.current >= len(s.quiz.Questions)-1 {
		s.endGameLocked()
		return
	}

	s.startQuestionLocked(s.current + 1)
}

// handleEndGame ends the game from any state. An active question's result
// is not revealed; play skips straight to game_over.
func (s *session) handleEndGame(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.host == nil || c != s.host {
		return
	}

	s.endGameLocked()
}

// handleAnswer records a participant's selection for the current question.
// Single-choice answers submit on receipt; multi-choice selections stay
// provisional until a final=true frame arrives. Once submitted, further
// frames from the same participant are ignored for this question.
func (s *session) handleAnswer(c *Client, msg ClientMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateQuestion {
		return
	}

	p := s.participantForLocked(c)
	if p == nil {
		return
	}

	selection, ok := parseSelection(msg.Answer)
	if !ok {
		return
	}

	q := &s.quiz.Questions[s.current]
	for _, idx := range selection {
		if idx < 0 || idx >= len(q.Answers) {
			return
		}
	}

	pa := s.answers[p.id]
	if pa == nil {
		pa = &pendingAnswer{}
		s.answers[p.id] = pa
	}
	if pa.submitted {
		return
	}

	pa.selection = selection

	if q.Kind == kindMultiple && !msg.Final {
		return // provisional selection, retained but not submitted
	}

	pa.submitted = true
	pa.correct, pa.points = scoreAnswer(q, selection, time.Since(s.questionStart))
	p.score += pa.points

	c.trySend(encodeFrame(AnswerReceivedMessage{
		Type:    "answer_received",
		Correct: pa.correct,
		Points:  pa.points,
	}))

	s.sendToHost(AnswerCountMessage{
		Type:  "answer_count",
		Count: s.submittedCountLocked(),
		Total: s.liveCountLocked(),
	})

	s.maybeScheduleRevealLocked()
}

// handleDisconnect processes a closed connection. Participants are
// tombstoned, never removed; the host slot is vacated so a new connection
// can claim it. A disconnect can complete the current round if everyone
// still connected has already submitted.
func (s *session) handleDisconnect(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c == s.host {
		s.host = nil
		s.broadcastToPlayers(HostLeftMessage{Type: "host_left"})
		logf(s.cfg, "GAMES: Host left %s", s.code)
		return
	}

	p := s.participantForLocked(c)
	if p == nil {
		return
	}
	p.client = nil

	s.sendToHost(PlayerLeftMessage{Type: "player_left", Count: s.liveCountLocked()})
	logf(s.cfg, "GAMES: Player %q left %s", p.name, s.code)

	if s.state == stateQuestion {
		s.maybeScheduleRevealLocked()
	}
}

// probe reports whether the session is still accepting players.
func (s *session) probe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state == stateLobby
}

func (s *session) participantForLocked(c *Client) *Participant {
	for _, p := range s.participants {
		if p.client == c && p.client != nil {
			return p
		}
	}
	return nil
}

func (s *session) liveCountLocked() int {
	count := 0
	for _, p := range s.participants {
		if p.client != nil {
			count++
		}
	}
	return count
}

func (s *session) submittedCountLocked() int {
	count := 0
	for _, pa := range s.answers {
		if pa.submitted {
			count++
		}
	}
	return count
}

func (s *session) stopQuestionTimerLocked() {
	if s.questionTimer != nil {
		s.questionTimer.Stop()
		s.questionTimer = nil
	}
}

func (s *session) stopTimersLocked() {
	s.stopQuestionTimerLocked()
	if s.autoTimer != nil {
		s.autoTimer.Stop()
		s.autoTimer = nil
	}
}

// wireCorrect is the correct-answer payload in host and reveal frames: a
// bare index for single-choice questions, an index array for multi-choice.
func wireCorrect(q *Question) any {
	if q.Kind == kindMultiple {
		return q.CorrectSet
	}
	return q.Correct
}

// startQuestionLocked enters question(i): resets the answers map, stamps
// the question start time, presents the question (the host variant carries
// the correct answer), and arms the deadline timer.
func (s *session) startQuestionLocked(i int) {
	s.stopTimersLocked()

	s.state = stateQuestion
	s.current = i
	s.answers = make(map[string]*pendingAnswer)
	s.questionStart = time.Now()

	q := &s.quiz.Questions[i]

	msg := QuestionMessage{
		Type:         "question",
		Index:        i,
		Total:        len(s.quiz.Questions),
		Question:     q.Prompt,
		Answers:      q.Answers,
		Time:         q.Time,
		QuestionType: q.Kind,
		Image:        q.Image,
	}
	s.broadcastToPlayers(msg)

	msg.Correct = wireCorrect(q)
	s.sendToHost(msg)

	s.questionTimer = time.AfterFunc(time.Duration(q.Time)*time.Second, s.revealExpired)
}

// maybeScheduleRevealLocked arms the short reveal timer once every
// participant with a live connection has submitted. The question deadline
// is cancelled so the short timer wins.
func (s *session) maybeScheduleRevealLocked() {
	live, submittedLive := 0, 0
	for _, p := range s.participants {
		if p.client == nil {
			continue
		}
		live++
		if pa := s.answers[p.id]; pa != nil && pa.submitted {
			submittedLive++
		}
	}

	if live == 0 || submittedLive < live {
		return
	}

	s.stopQuestionTimerLocked()

	if s.autoTimer == nil {
		s.autoTimer = time.AfterFunc(earlyRevealDelay, s.revealExpired)
	}
}

// revealExpired is the timer entry point into reveal; it takes the session
// lock before acting, like every other transition source.
func (s *session) revealExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revealLocked()
}

// revealLocked moves question → q_result. Idempotent: both the deadline
// timer and the early-finish timer can race a host command here, so a call
// in any other state only clears the stale question deadline and returns.
func (s *session) revealLocked() {
	if s.state != stateQuestion {
		s.stopQuestionTimerLocked()
		return
	}

	s.stopTimersLocked()
	s.state = stateResult

	q := &s.quiz.Questions[s.current]

	counts := make([]int, len(q.Answers))
	for _, pa := range s.answers {
		if !pa.submitted {
			continue
		}
		for _, idx := range pa.selection {
			counts[idx]++
		}
	}

	isLast := s.current >= len(s.quiz.Questions)-1

	msg := QuestionResultMessage{
		Type:         "question_result",
		Correct:      wireCorrect(q),
		Leaderboard:  s.leaderboardLocked(),
		QuestionType: q.Kind,
		IsLast:       isLast,
	}
	s.broadcastToPlayers(msg)

	msg.AnswerCounts = counts
	s.sendToHost(msg)

	s.autoTimer = time.AfterFunc(advanceDelay, s.advanceExpired)
}

// advanceExpired fires after the post-reveal delay, unless the host
// advanced the game first.
func (s *session) advanceExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateResult {
		return
	}

	if s.current >= len(s.quiz.Questions)-1 {
		s.endGameLocked()
		return
	}

	s.startQuestionLocked(s.current + 1)
}

// endGameLocked moves the session to final, publishes the final
// leaderboard, and schedules the directory reap. The reap is fixed and
// not cancellable.
func (s *session) endGameLocked() {
	if s.state == stateFinal {
		return
	}

	s.stopTimersLocked()
	s.state = stateFinal

	msg := GameOverMessage{
		Type:        "game_over",
		Leaderboard: s.leaderboardLocked(),
	}
	s.broadcastToPlayers(msg)
	s.sendToHost(msg)

	logf(s.cfg, "GAMES: Game %s over", s.code)

	if s.reap != nil {
		time.AfterFunc(s.cfg.reapTimeout, s.reap)
	}
}

// leaderboardLocked ranks all participants, tombstoned ones included, by
// descending score. Ties keep join order, so re-serializing an unchanged
// leaderboard is order-preserving.
func (s *session) leaderboardLocked() []LeaderboardEntry {
	ranked := make([]*Participant, len(s.participants))
	copy(ranked, s.participants)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	entries := make([]LeaderboardEntry, len(ranked))
	for i, p := range ranked {
		entries[i] = LeaderboardEntry{
			Rank:  i + 1,
			Name:  p.name,
			Score: p.score,
		}
	}

	return entries
}
