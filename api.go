package main

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/time/rate"
)

// Per-IP token buckets for the REST facade. The websocket channel is not
// limited; once a game is running, message pacing is the session's job.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(limit rate.Limit, burst int) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
	}

	go rl.cleanupLoop()

	return rl
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()

	return v.limiter.Allow()
}

func (rl *rateLimiter) cleanupLoop() {
	for range time.Tick(5 * time.Minute) {
		cutoff := time.Now().Add(-10 * time.Minute)

		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func limited(rl *rateLimiter, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ip, _, err := net.SplitHostPort(realIP(r))
		if err != nil {
			ip = realIP(r)
		}

		if !rl.allow(ip) {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rateLimited"})
			return
		}

		next(w, r, ps)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// serveCreateGame loads a stored quiz and opens a lobby for it, returning
// the 6-digit join code.
func serveCreateGame(cfg *Config, d *GameDirectory, store *QuizStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var req struct {
			Quiz string `json:"quiz"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxFrameBytes)).Decode(&req); err != nil || req.Quiz == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "badRequest"})
			return
		}

		quiz, err := store.loadQuiz(req.Quiz)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "notFound"})
			return
		}

		code := d.createSession(quiz)

		writeJSON(w, http.StatusCreated, map[string]string{"code": code})

		logf(cfg, "SERVE: Created game %s for %s in %s",
			code,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// serveProbeGame tells a joining client whether a code still points at an
// open lobby.
func serveProbeGame(d *GameDirectory) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		pin := ps.ByName("pin")
		if !pinPattern.MatchString(pin) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "notFound"})
			return
		}

		s, ok := d.lookup(pin)
		switch {
		case !ok:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "notFound"})
		case !s.probe():
			writeJSON(w, http.StatusConflict, map[string]string{"error": "alreadyStarted"})
		default:
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		}
	}
}

func serveListQuizzes(store *QuizStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		summaries, err := store.listQuizzes()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storeError"})
			return
		}

		writeJSON(w, http.StatusOK, summaries)
	}
}

func serveGetQuiz(store *QuizStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		quiz, err := store.loadQuiz(ps.ByName("id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "notFound"})
			return
		}

		writeJSON(w, http.StatusOK, quiz)
	}
}

func serveSaveQuiz(cfg *Config, store *QuizStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		quiz := &Quiz{}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(quiz); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "badRequest"})
			return
		}

		if err := store.saveQuiz(quiz); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"id": quiz.ID})

		logf(cfg, "SERVE: Saved quiz %s (%q)", quiz.ID, quiz.Title)
	}
}

func serveDeleteQuiz(cfg *Config, store *QuizStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := ps.ByName("id")

		if err := store.deleteQuiz(id); err != nil {
			if errors.Is(err, errQuizNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "notFound"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storeError"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})

		logf(cfg, "SERVE: Deleted quiz %s", id)
	}
}
