package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"cyberquest/analytics"
	"cyberquest/core"
	"cyberquest/leaderboard"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the CyberQuest HTTP + WebSocket API.
//
// It also satisfies leaderboard.Backend, so a game client can wrap a remote
// server in a leaderboard.Client.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

var _ leaderboard.Backend = (*Client)(nil)

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// Health probes /healthz.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.call(ctx, http.MethodGet, "/healthz", nil, &hs)
	return hs, err
}

// Catalog lists the level definitions.
func (c *Client) Catalog(ctx context.Context) ([]core.LevelSpec, error) {
	var body struct {
		Levels []core.LevelSpec `json:"levels"`
	}
	err := c.call(ctx, http.MethodGet, "/catalog", nil, &body)
	return body.Levels, err
}

// StartSession opens a new session. Both arguments are optional.
func (c *Client) StartSession(ctx context.Context, name, avatar string) (core.SessionState, error) {
	var st core.SessionState
	err := c.call(ctx, http.MethodPost, "/sessions", map[string]string{"name": name, "avatar": avatar}, &st)
	return st, err
}

func (c *Client) Session(ctx context.Context, id core.SessionID) (core.SessionState, error) {
	var st core.SessionState
	err := c.sessionCall(ctx, http.MethodGet, id, "", nil, &st)
	return st, err
}

func (c *Client) EndSession(ctx context.Context, id core.SessionID) error {
	return c.sessionCall(ctx, http.MethodDelete, id, "", nil, nil)
}

func (c *Client) SetPlayer(ctx context.Context, id core.SessionID, name, avatar string) (core.SessionState, error) {
	var st core.SessionState
	err := c.sessionCall(ctx, http.MethodPut, id, "/player", map[string]string{"name": name, "avatar": avatar}, &st)
	return st, err
}

// AddScore applies delta to one category of a session.
func (c *Client) AddScore(ctx context.Context, id core.SessionID, category core.Category, delta int64) (ScoreResult, error) {
	var res ScoreResult
	err := c.sessionCall(ctx, http.MethodPost, id, "/scores", map[string]any{"category": category, "delta": delta}, &res)
	return res, err
}

func (c *Client) Level(ctx context.Context, id core.SessionID, level core.LevelID) (core.Level, error) {
	var l core.Level
	err := c.sessionCall(ctx, http.MethodGet, id, "/levels/"+strconv.Itoa(int(level)), nil, &l)
	return l, err
}

// CompleteLevel records a finished level.
func (c *Client) CompleteLevel(ctx context.Context, id core.SessionID, level core.LevelID, stars int) (CompleteResult, error) {
	var res CompleteResult
	path := "/levels/" + strconv.Itoa(int(level)) + "/complete"
	err := c.sessionCall(ctx, http.MethodPost, id, path, map[string]int{"stars": stars}, &res)
	return res, err
}

func (c *Client) ResetSession(ctx context.Context, id core.SessionID) (core.SessionState, error) {
	var st core.SessionState
	err := c.sessionCall(ctx, http.MethodPost, id, "/reset", nil, &st)
	return st, err
}

// SubmitSession saves the session total; an empty name uses the player name.
func (c *Client) SubmitSession(ctx context.Context, id core.SessionID, name string) (core.Entry, error) {
	var e core.Entry
	err := c.sessionCall(ctx, http.MethodPost, id, "/submit", map[string]string{"name": name}, &e)
	return e, err
}

// SaveScore submits a free-standing leaderboard entry.
func (c *Client) SaveScore(ctx context.Context, name string, score float64) (core.Entry, error) {
	var e core.Entry
	err := c.call(ctx, http.MethodPost, "/leaderboard", map[string]any{"name": name, "score": score}, &e)
	return e, err
}

// TopScores fetches the leaderboard. The server answers an outage with an
// empty list, which is reported here as an error matching core.ErrUnavailable.
func (c *Client) TopScores(ctx context.Context, limit int) ([]core.Entry, error) {
	path := "/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var body struct {
		Entries  []core.Entry `json:"entries"`
		Degraded bool         `json:"degraded"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &body); err != nil {
		return []core.Entry{}, err
	}
	if body.Entries == nil {
		body.Entries = []core.Entry{}
	}
	if body.Degraded {
		return body.Entries, fmt.Errorf("%w: server leaderboard degraded", core.ErrUnavailable)
	}
	return body.Entries, nil
}

// LeaderboardAvailable asks the server whether its leaderboard is reachable.
func (c *Client) LeaderboardAvailable(ctx context.Context) (bool, error) {
	var body struct {
		Available bool `json:"available"`
	}
	err := c.call(ctx, http.MethodGet, "/leaderboard/status", nil, &body)
	return body.Available, err
}

// Analytics fetches the server's progression funnel.
func (c *Client) Analytics(ctx context.Context) (analytics.Snapshot, error) {
	var snap analytics.Snapshot
	err := c.call(ctx, http.MethodGet, "/analytics", nil, &snap)
	return snap, err
}

// Insert implements leaderboard.Backend. The server stamps its own date.
func (c *Client) Insert(ctx context.Context, e core.Entry) (string, error) {
	saved, err := c.SaveScore(ctx, e.Name, float64(e.Score))
	if err != nil {
		return "", err
	}
	return saved.ID, nil
}

// Top implements leaderboard.Backend.
func (c *Client) Top(ctx context.Context, limit int) ([]core.Entry, error) {
	return c.TopScores(ctx, limit)
}

// Ping implements leaderboard.Backend.
func (c *Client) Ping(ctx context.Context) error {
	ok, err := c.LeaderboardAvailable(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: server reports leaderboard down", core.ErrUnavailable)
	}
	return nil
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// A non-empty session limits the stream to that session. The returned channel
// closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, session core.SessionID) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	target := c.wsURL
	if session != "" {
		target += "?session=" + url.QueryEscape(string(session))
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var evt core.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			default:
				// drop if consumer is slow
			}
		}
	}()
	return out, nil
}

func (c *Client) sessionCall(ctx context.Context, method string, id core.SessionID, suffix string, in, out any) error {
	if strings.TrimSpace(string(id)) == "" {
		return ErrEmptySessionID
	}
	return c.call(ctx, method, "/sessions/"+url.PathEscape(string(id))+suffix, in, out)
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, out)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
