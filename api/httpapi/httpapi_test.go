package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberquest/analytics"
	"cyberquest/core"
	"cyberquest/engine"
	"cyberquest/game"
	"cyberquest/leaderboard"
)

type downBackend struct{}

func (downBackend) Insert(context.Context, core.Entry) (string, error) {
	return "", errors.New("connection refused")
}
func (downBackend) Top(context.Context, int) ([]core.Entry, error) {
	return nil, errors.New("connection refused")
}
func (downBackend) Ping(context.Context) error { return errors.New("connection refused") }

// sizingBackend preallocates whatever it is asked for.
type sizingBackend struct {
	mu        sync.Mutex
	lastLimit int
}

func (b *sizingBackend) Insert(context.Context, core.Entry) (string, error) { return "x", nil }
func (b *sizingBackend) Top(_ context.Context, limit int) ([]core.Entry, error) {
	b.mu.Lock()
	b.lastLimit = limit
	b.mu.Unlock()
	return make([]core.Entry, 0, limit), nil
}
func (b *sizingBackend) Ping(context.Context) error { return nil }

func newTestService(t *testing.T, opts ...game.Option) *engine.Service {
	t.Helper()
	svc := game.New(append([]game.Option{game.WithDispatchMode(engine.DispatchSync)}, opts...)...)
	t.Cleanup(svc.Close)
	return svc
}

func newHandler(t *testing.T, opts Options, gameOpts ...game.Option) http.Handler {
	t.Helper()
	if opts.PathPrefix == "" {
		opts.PathPrefix = "/api"
	}
	return NewRouter(newTestService(t, gameOpts...), nil, nil, opts)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func startSession(t *testing.T, h http.Handler, name string) core.SessionState {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/sessions", map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[core.SessionState](t, rec)
}

func TestHealthzReportsLeaderboard(t *testing.T) {
	h := newHandler(t, Options{})
	rec := do(t, h, http.MethodGet, "/api/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])

	h = newHandler(t, Options{}, game.WithBackend(downBackend{}))
	rec = do(t, h, http.MethodGet, "/api/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody[map[string]any](t, rec)
	assert.Equal(t, "degraded", body["status"])
}

func TestCatalog(t *testing.T) {
	h := newHandler(t, Options{})
	rec := do(t, h, http.MethodGet, "/api/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		Levels []core.LevelSpec `json:"levels"`
	}](t, rec)
	assert.Len(t, body.Levels, 4)
}

func TestSessionLifecycle(t *testing.T) {
	h := newHandler(t, Options{})
	st := startSession(t, h, "Rina")
	assert.Equal(t, "Rina", st.Player.Name)
	assert.Equal(t, core.DefaultAvatar, st.Player.Avatar)
	base := "/api/sessions/" + string(st.ID)

	rec := do(t, h, http.MethodPost, base+"/scores", map[string]any{"category": core.CategoryDigitalLiteracy, "delta": 20})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scores := decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(20), scores["total"])
	assert.Equal(t, float64(20), scores["categoryTotal"])

	rec = do(t, h, http.MethodPost, base+"/levels/1/complete", map[string]int{"stars": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decodeBody[struct {
		UnlockedNext bool              `json:"unlockedNext"`
		Session      core.SessionState `json:"session"`
	}](t, rec)
	assert.True(t, done.UnlockedNext)
	assert.True(t, done.Session.Levels[1].Unlocked)

	rec = do(t, h, http.MethodGet, base+"/levels/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lvl := decodeBody[core.Level](t, rec)
	assert.True(t, lvl.Unlocked)
	assert.False(t, lvl.Completed)

	rec = do(t, h, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(20), decodeBody[core.SessionState](t, rec).Total)

	rec = do(t, h, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reset := decodeBody[core.SessionState](t, rec)
	assert.Zero(t, reset.Total)
	assert.Equal(t, "Rina", reset.Player.Name)

	rec = do(t, h, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", decodeBody[apiError](t, rec).Code)
}

func TestSetPlayer(t *testing.T) {
	h := newHandler(t, Options{})
	st := startSession(t, h, "")
	rec := do(t, h, http.MethodPut, "/api/sessions/"+string(st.ID)+"/player", map[string]string{"name": "ThisNameIsWayTooLong", "avatar": "hero_female"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, core.Player{Name: "ThisNameIs", Avatar: "hero_female"}, decodeBody[core.SessionState](t, rec).Player)
}

func TestValidationErrors(t *testing.T) {
	h := newHandler(t, Options{})
	st := startSession(t, h, "Rina")
	base := "/api/sessions/" + string(st.ID)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown category", http.MethodPost, base + "/scores", map[string]any{"category": "unknownCategory", "delta": 5}, http.StatusBadRequest, "invalid_input"},
		{"missing delta", http.MethodPost, base + "/scores", map[string]any{"category": core.CategoryProblemSolving}, http.StatusBadRequest, "invalid_input"},
		{"negative stars", http.MethodPost, base + "/levels/1/complete", map[string]int{"stars": -1}, http.StatusBadRequest, "invalid_input"},
		{"too many stars", http.MethodPost, base + "/levels/1/complete", map[string]int{"stars": 4}, http.StatusBadRequest, "invalid_input"},
		{"missing stars", http.MethodPost, base + "/levels/1/complete", map[string]int{}, http.StatusBadRequest, "invalid_input"},
		{"unknown level", http.MethodGet, base + "/levels/42", nil, http.StatusNotFound, "level_not_found"},
		{"bad level id", http.MethodGet, base + "/levels/two", nil, http.StatusBadRequest, "invalid_level"},
		{"blank leaderboard name", http.MethodPost, "/api/leaderboard", map[string]any{"name": "   ", "score": 10}, http.StatusBadRequest, "invalid_input"},
		{"missing score", http.MethodPost, "/api/leaderboard", map[string]any{"name": "Rina"}, http.StatusBadRequest, "invalid_input"},
		{"negative score", http.MethodPost, "/api/leaderboard", map[string]any{"name": "Rina", "score": -5}, http.StatusBadRequest, "invalid_input"},
		{"unknown session", http.MethodPost, "/api/sessions/nope/reset", nil, http.StatusNotFound, "session_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decodeBody[apiError](t, rec).Code)
		})
	}

	rec := do(t, h, http.MethodGet, base, nil)
	assert.Zero(t, decodeBody[core.SessionState](t, rec).Total, "rejected requests must not change progress")
}

func TestMalformedBody(t *testing.T) {
	h := newHandler(t, Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/leaderboard", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", decodeBody[apiError](t, rec).Code)
}

func TestLeaderboardRoundTrip(t *testing.T) {
	h := newHandler(t, Options{})
	for _, e := range []struct {
		name  string
		score float64
	}{{"Ana", 120}, {"Ben", 340}, {"Cy", 90}} {
		rec := do(t, h, http.MethodPost, "/api/leaderboard", map[string]any{"name": e.name, "score": e.score})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.NotEmpty(t, decodeBody[core.Entry](t, rec).ID)
	}

	rec := do(t, h, http.MethodGet, "/api/leaderboard?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		Entries []core.Entry `json:"entries"`
	}](t, rec)
	require.Len(t, body.Entries, 2)
	assert.Equal(t, "Ben", body.Entries[0].Name)
	assert.Equal(t, "Ana", body.Entries[1].Name)

	rec = do(t, h, http.MethodGet, "/api/leaderboard/status", nil)
	assert.Equal(t, true, decodeBody[map[string]any](t, rec)["available"])
}

func TestLeaderboardHugeLimitIsCapped(t *testing.T) {
	b := &sizingBackend{}
	h := newHandler(t, Options{}, game.WithBackend(b))

	rec := do(t, h, http.MethodGet, "/api/leaderboard?limit=9223372036854775807", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[map[string]any](t, rec)
	assert.Nil(t, body["degraded"])

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, leaderboard.MaxLimit, b.lastLimit)
}

func TestSubmitSession(t *testing.T) {
	h := newHandler(t, Options{})
	st := startSession(t, h, "Rina")
	base := "/api/sessions/" + string(st.ID)
	do(t, h, http.MethodPost, base+"/scores", map[string]any{"category": core.CategoryCreativeThinking, "delta": 75})

	rec := do(t, h, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decodeBody[core.Entry](t, rec)
	assert.Equal(t, "Rina", entry.Name)
	assert.Equal(t, int64(75), entry.Score)

	rec = do(t, h, http.MethodPost, base+"/submit", map[string]string{"name": "Guest"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Guest", decodeBody[core.Entry](t, rec).Name)
}

func TestLeaderboardOutage(t *testing.T) {
	h := newHandler(t, Options{}, game.WithBackend(downBackend{}))
	st := startSession(t, h, "Rina")

	rec := do(t, h, http.MethodPost, "/api/sessions/"+string(st.ID)+"/submit", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "leaderboard_unavailable", decodeBody[apiError](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/api/leaderboard", map[string]any{"name": "Rina", "score": 10})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, []any{}, body["entries"])
	assert.Equal(t, true, body["degraded"])

	rec = do(t, h, http.MethodGet, "/api/leaderboard/status", nil)
	assert.Equal(t, false, decodeBody[map[string]any](t, rec)["available"])
}

func TestAnalyticsRoute(t *testing.T) {
	svc := newTestService(t)
	funnel := analytics.NewFunnel()
	svc.SubscribeAll(funnel.OnEvent)
	h := NewRouter(svc, nil, funnel, Options{PathPrefix: "/api"})

	st := startSession(t, h, "Rina")
	do(t, h, http.MethodPost, "/api/sessions/"+string(st.ID)+"/levels/1/complete", map[string]int{"stars": 2})

	rec := do(t, h, http.MethodGet, "/api/analytics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeBody[analytics.Snapshot](t, rec)
	assert.Equal(t, int64(1), snap.SessionsStarted)
	assert.Equal(t, int64(1), snap.Completions[1])

	h = newHandler(t, Options{})
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/analytics", nil).Code)
}

func TestAPIKeyAuth(t *testing.T) {
	h := newHandler(t, Options{APIKeys: []string{"secret"}, AllowedOrigins: []string{"*"}})

	rec := do(t, h, http.MethodGet, "/api/catalog", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// health checks stay public
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/healthz", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newHandler(t, Options{APIKeys: []string{"secret"}, AllowedOrigins: []string{"https://play.example"}})
	req := httptest.NewRequest(http.MethodOptions, "/api/leaderboard", nil)
	req.Header.Set("Origin", "https://play.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://play.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	h := newHandler(t, Options{
		APIKeys:          []string{"k"},
		RateLimitEnabled: true,
		RateLimitRPM:     1,
		RateLimitBurst:   1,
	})

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
		req.Header.Set("X-API-Key", "k")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestUnknownRoute(t *testing.T) {
	h := newHandler(t, Options{})
	rec := do(t, h, http.MethodGet, "/api/nowhere", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody[apiError](t, rec).Code)
}

func TestLimiterStoreTracksClientsSeparately(t *testing.T) {
	l := newLimiterStore(60, 1)
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"))
	assert.Equal(t, 2, l.cache.Len())
}

var _ leaderboard.Backend = downBackend{}
