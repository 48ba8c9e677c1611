package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Exporter ships funnel snapshots somewhere.
type Exporter interface {
	Export(ctx context.Context, s Snapshot) error
}

// HTTPExporter posts snapshots as JSON to an external endpoint.
type HTTPExporter struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPExporter(endpoint, apiKey string) *HTTPExporter {
	return &HTTPExporter{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (e *HTTPExporter) Export(ctx context.Context, s Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal analytics data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send analytics data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("analytics export failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// LogExporter writes a one-line summary per snapshot.
type LogExporter struct {
	logger *slog.Logger
}

func NewLogExporter(logger *slog.Logger) *LogExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogExporter{logger: logger}
}

func (e *LogExporter) Export(ctx context.Context, s Snapshot) error {
	e.logger.InfoContext(ctx, "progression funnel",
		"sessions_started", s.SessionsStarted,
		"completions", s.Completions,
		"resets", s.Resets,
		"submissions", s.Submissions,
		"avg_submitted_score", s.AverageSubmittedScore(),
	)
	return nil
}

// Run exports a snapshot every interval until ctx ends. Export failures are
// logged and the loop continues.
func Run(ctx context.Context, f *Funnel, exp Exporter, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := exp.Export(ctx, f.Snapshot()); err != nil {
				logger.WarnContext(ctx, "analytics export failed", "error", err)
			}
		}
	}
}
