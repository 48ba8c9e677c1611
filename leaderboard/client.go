package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"cyberquest/core"
)

const (
	// DefaultTimeout bounds every backend call made by the client.
	DefaultTimeout = 5 * time.Second
	// DefaultLimit is the number of entries TopScores returns when none is requested.
	DefaultLimit = 10
	// MaxLimit caps the number of entries a single fetch may ask for.
	MaxLimit = 100
)

// ErrBackendPanic marks a backend call that panicked instead of returning.
var ErrBackendPanic = errors.New("leaderboard backend panicked")

// Reporter forwards remote failures to an error tracker.
type Reporter interface {
	Report(ctx context.Context, err error, extras map[string]string)
}

// Abandoned describes a backend call that outlived its timeout. It is
// delivered once the call finally returns, so a write reported as failed
// may still show up here with a nil Err.
type Abandoned struct {
	Op      string
	Err     error
	Elapsed time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout. Availability probes use half of it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithReporter sends remote failures to r in addition to the log.
func WithReporter(r Reporter) Option { return func(c *Client) { c.reporter = r } }

// WithConnectivity installs a cheap offline check consulted before any
// backend call. Returning false fails the call with core.ErrOffline.
func WithConnectivity(online func(context.Context) bool) Option {
	return func(c *Client) {
		if online != nil {
			c.online = online
		}
	}
}

// WithAbandonObserver receives the outcome of calls that timed out.
func WithAbandonObserver(fn func(Abandoned)) Option { return func(c *Client) { c.onAbandon = fn } }

// WithClock overrides time.Now for entry timestamps.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// Client is the gateway between game logic and a remote leaderboard. Remote
// failures never escape as panics: saves fail with an error matching
// core.ErrUnavailable and fetches degrade to an empty list. The client never
// retries; that is left to the caller.
type Client struct {
	backend   Backend
	timeout   time.Duration
	logger    *slog.Logger
	reporter  Reporter
	online    func(context.Context) bool
	onAbandon func(Abandoned)
	now       func() time.Time
}

// NewClient wraps backend.
func NewClient(backend Backend, opts ...Option) *Client {
	if backend == nil {
		panic("leaderboard.NewClient requires a non-nil backend")
	}
	c := &Client{
		backend: backend,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		online:  func(context.Context) bool { return true },
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Timeout returns the bound applied to saves and fetches.
func (c *Client) Timeout() time.Duration { return c.timeout }

// SaveScore validates and persists a new entry. Invalid input fails with an
// error matching core.ErrValidation before the backend is touched.
func (c *Client) SaveScore(ctx context.Context, name string, score float64) (core.Entry, error) {
	n, err := core.NormalizeName(name)
	if err != nil {
		c.logger.WarnContext(ctx, "rejected leaderboard submission", "reason", err)
		return core.Entry{}, err
	}
	s, err := core.NormalizeScore(score)
	if err != nil {
		c.logger.WarnContext(ctx, "rejected leaderboard submission", "name", n, "reason", err)
		return core.Entry{}, err
	}
	if !c.online(ctx) {
		err := core.Unavailable("save score", core.ErrOffline)
		c.logger.WarnContext(ctx, "no network connection, score not saved", "name", n)
		return core.Entry{}, err
	}

	entry := core.NewEntry(n, s, c.now())
	id, err := within(ctx, c, "save", c.timeout, func(ctx context.Context) (string, error) {
		return c.backend.Insert(ctx, entry)
	})
	if err != nil {
		err = core.Unavailable("save score", err)
		c.fail(ctx, "save", err, map[string]string{"name": n})
		return core.Entry{}, err
	}
	entry.ID = id
	c.logger.InfoContext(ctx, "score saved", "name", entry.Name, "score", entry.Score, "id", id)
	return entry, nil
}

// TopScores returns up to limit entries by descending score. A limit of zero
// or less means DefaultLimit; anything above MaxLimit is capped. The slice is
// never nil; on failure it is empty and the error says why.
func (c *Client) TopScores(ctx context.Context, limit int) ([]core.Entry, error) {
	limit = ClampLimit(limit)
	if !c.online(ctx) {
		c.logger.WarnContext(ctx, "no network connection, cannot fetch scores")
		return []core.Entry{}, core.Unavailable("fetch top scores", core.ErrOffline)
	}

	entries, err := within(ctx, c, "fetch", c.timeout, func(ctx context.Context) ([]core.Entry, error) {
		return c.backend.Top(ctx, limit)
	})
	if err != nil {
		err = core.Unavailable("fetch top scores", err)
		c.fail(ctx, "fetch", err, nil)
		return []core.Entry{}, err
	}

	out := make([]core.Entry, 0, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			c.logger.WarnContext(ctx, "skipping malformed leaderboard entry", "id", e.ID, "error", err)
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	c.logger.DebugContext(ctx, "fetched top scores", "count", len(out))
	return out, nil
}

// ClampLimit maps a requested fetch size into 1..MaxLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// IsAvailable probes the backend with half the configured timeout.
func (c *Client) IsAvailable(ctx context.Context) bool {
	if !c.online(ctx) {
		return false
	}
	_, err := within(ctx, c, "ping", c.timeout/2, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.backend.Ping(ctx)
	})
	if err != nil {
		c.logger.WarnContext(ctx, "leaderboard unavailable", "error", err)
		return false
	}
	return true
}

func (c *Client) fail(ctx context.Context, op string, err error, extras map[string]string) {
	attrs := []any{"op", op, "error", err}
	if errors.Is(err, core.ErrTimeout) {
		attrs = append(attrs, "timeout", c.timeout)
	}
	if errors.Is(err, context.Canceled) {
		// the caller went away; nothing is wrong with the backend
		c.logger.WarnContext(ctx, "leaderboard operation cancelled", attrs...)
		return
	}
	c.logger.ErrorContext(ctx, "leaderboard operation failed", attrs...)
	if c.reporter != nil {
		if extras == nil {
			extras = map[string]string{}
		}
		extras["op"] = op
		c.reporter.Report(ctx, err, extras)
	}
}

type outcome[T any] struct {
	v   T
	err error
}

// within races fn against timeout. fn runs with a context that is cancelled
// as soon as the caller stops waiting, and its late outcome goes to the
// abandonment observer. A panic in fn becomes an ErrBackendPanic error.
func within[T any](ctx context.Context, c *Client, op string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	start := time.Now()
	go func() {
		var r outcome[T]
		defer func() {
			if rec := recover(); rec != nil {
				c.logger.Error("leaderboard backend panic", "op", op, "panic", rec, "stack", string(debug.Stack()))
				r = outcome[T]{err: fmt.Errorf("%w: %v", ErrBackendPanic, rec)}
			}
			done <- r
		}()
		r.v, r.err = fn(opCtx)
	}()

	var r outcome[T]
	select {
	case r = <-done:
	case <-opCtx.Done():
		select {
		case r = <-done:
		default:
			observe := c.onAbandon
			go func() {
				late := <-done
				if observe != nil {
					observe(Abandoned{Op: op, Err: late.err, Elapsed: time.Since(start)})
				}
			}()
			var zero T
			return zero, stopReason(ctx)
		}
	}
	if r.err != nil && opCtx.Err() != nil {
		// the backend gave up because its context ended
		var zero T
		return zero, stopReason(ctx)
	}
	return r.v, r.err
}

func stopReason(parent context.Context) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return context.Canceled
	}
	return core.ErrTimeout
}
