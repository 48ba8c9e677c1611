package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cyberquest/core"
)

func TestSink_OnEventPostsToEndpoints(t *testing.T) {
	var hits int32
	var got core.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = r.Body.Close()
	}))
	defer srv.Close()

	sink := New([]string{srv.URL, srv.URL})
	sink.OnEvent(context.Background(), core.NewLevelCompleted("s1", 2, 3))

	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", hits)
	}
	if got.Type != core.EventLevelCompleted || got.Level != 2 || got.Stars != 3 {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestSink_FiltersEventTypes(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	sink := New([]string{srv.URL})
	sink.OnEvent(context.Background(), core.NewScoreAdded("s1", core.CategoryDigitalLiteracy, 1, 1))
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("score_added is not forwarded by default")
	}

	sink = New([]string{srv.URL}, WithEvents(core.EventScoreAdded))
	sink.OnEvent(context.Background(), core.NewScoreAdded("s1", core.CategoryDigitalLiteracy, 1, 1))
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", hits)
	}
}

func TestSink_LogsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sink := New([]string{srv.URL, "http://127.0.0.1:1"},
		WithLogger(logger),
		WithClient(&http.Client{Timeout: 500 * time.Millisecond}))
	sink.OnEvent(context.Background(), core.NewScoreSubmitted("s1", core.Entry{Name: "ana", Score: 5}))

	if n := bytes.Count(buf.Bytes(), []byte("webhook delivery failed")); n != 2 {
		t.Fatalf("expected 2 logged failures, got %d: %s", n, buf.String())
	}
}
