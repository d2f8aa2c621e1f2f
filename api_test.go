package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T) (*httprouter.Router, *GameDirectory, *QuizStore) {
	t.Helper()

	cfg := testConfig()

	store, err := newQuizStore(afero.NewMemMapFs())
	require.NoError(t, err)

	d := newGameDirectory(cfg)

	mux := httprouter.New()
	mux.POST("/api/games", serveCreateGame(cfg, d, store))
	mux.GET("/api/games/:pin", serveProbeGame(d))
	mux.GET("/api/quizzes", serveListQuizzes(store))
	mux.POST("/api/quizzes", serveSaveQuiz(cfg, store))
	mux.GET("/api/quizzes/:id", serveGetQuiz(store))
	mux.DELETE("/api/quizzes/:id", serveDeleteQuiz(cfg, store))

	return mux, d, store
}

func doJSON(t *testing.T, mux *httprouter.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	return w
}

func TestQuizAPICrud(t *testing.T) {
	mux, _, _ := testRouter(t)

	w := doJSON(t, mux, http.MethodPost, "/api/quizzes",
		`{"title":"Arithmetic","questions":[{"question":"2+2?","answers":["3","4"],"correct":1}]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"id"`)

	var id string
	{
		body := w.Body.String()
		start := strings.Index(body, `"id":"`) + len(`"id":"`)
		id = body[start : start+strings.Index(body[start:], `"`)]
	}

	w = doJSON(t, mux, http.MethodGet, "/api/quizzes/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Arithmetic"`)

	w = doJSON(t, mux, http.MethodGet, "/api/quizzes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id)

	w = doJSON(t, mux, http.MethodDelete, "/api/quizzes/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, mux, http.MethodGet, "/api/quizzes/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Invalid definitions are rejected at ingestion.
	w = doJSON(t, mux, http.MethodPost, "/api/quizzes", `{"title":"Empty","questions":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAndProbeGame(t *testing.T) {
	mux, d, store := testRouter(t)

	quiz := validQuiz()
	require.NoError(t, store.saveQuiz(quiz))

	w := doJSON(t, mux, http.MethodPost, "/api/games", `{"quiz":"`+quiz.ID+`"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	body := w.Body.String()
	start := strings.Index(body, `"code":"`) + len(`"code":"`)
	code := body[start : start+6]

	w = doJSON(t, mux, http.MethodGet, "/api/games/"+code, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":true`)

	// Unknown and malformed codes both probe as not found.
	probe := "999999"
	if probe == code {
		probe = "999998"
	}
	w = doJSON(t, mux, http.MethodGet, "/api/games/"+probe, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, mux, http.MethodGet, "/api/games/abc", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// A started game probes as a conflict.
	s, ok := d.lookup(code)
	require.True(t, ok)
	host := newTestClient()
	require.NoError(t, s.handleHostJoin(host))
	drainFrames(host)
	joinPlayer(t, s, "Alice")
	require.NoError(t, s.handleStartGame(host))

	w = doJSON(t, mux, http.MethodGet, "/api/games/"+code, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "alreadyStarted")
}

func TestCreateGameUnknownQuiz(t *testing.T) {
	mux, _, _ := testRouter(t)

	w := doJSON(t, mux, http.MethodPost, "/api/games", `{"quiz":"nope"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, mux, http.MethodPost, "/api/games", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		limit:    1,
		burst:    2,
	}

	assert.True(t, rl.allow("192.0.2.1"))
	assert.True(t, rl.allow("192.0.2.1"))
	assert.False(t, rl.allow("192.0.2.1"))

	// Buckets are per-address.
	assert.True(t, rl.allow("192.0.2.2"))

	handler := limited(rl, func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5678"
	w := httptest.NewRecorder()
	handler(w, req, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
