package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cyberquest/core"
)

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status   string         `json:"status"`
	Sessions int            `json:"sessions"`
	Checks   map[string]any `json:"checks"`
}

// ScoreResult is returned by AddScore.
type ScoreResult struct {
	Total         int64         `json:"total"`
	Category      core.Category `json:"category"`
	CategoryTotal int64         `json:"categoryTotal"`
}

// CompleteResult is returned by CompleteLevel.
type CompleteResult struct {
	UnlockedNext bool              `json:"unlockedNext"`
	Session      core.SessionState `json:"session"`
}

// APIError is the decoded error envelope of a failed request. It unwraps to
// the matching core error so callers can use errors.Is across the wire.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cyberquest api: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusBadRequest:
		return core.ErrValidation
	case e.Code == "session_not_found":
		return ErrSessionNotFound
	case e.Code == "level_not_found":
		return core.ErrUnknownLevel
	case e.Status == http.StatusServiceUnavailable:
		return core.ErrUnavailable
	}
	return nil
}

// ErrSessionNotFound is matched by errors for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// ErrEmptySessionID is returned when a session id is empty.
var ErrEmptySessionID = errors.New("session id is required")

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "http_error"
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if target == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
