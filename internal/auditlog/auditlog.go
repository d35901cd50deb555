// Package auditlog forwards admin action records to the node
// application, which keeps the central admin activity log. Forwarding is
// best-effort by contract: a dead node app must never block the very
// admin actions used to revive it, so callers treat the returned error
// as a warning, not a failure.
package auditlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	logActionPath  = "/api/admin/log-action"
	forwardTimeout = 2 * time.Second
)

// Entry is one recorded admin action.
type Entry struct {
	Action string         `json:"action"`
	Target string         `json:"target,omitempty"`
	Detail map[string]any `json:"detail"`
}

type Forwarder struct {
	logger      zerolog.Logger
	baseURL     string
	staticToken string
	client      *http.Client
}

func NewForwarder(logger zerolog.Logger, baseURL, staticToken string) *Forwarder {
	return &Forwarder{
		logger:      logger.With().Str("component", "auditlog").Logger(),
		baseURL:     baseURL,
		staticToken: staticToken,
		client: &http.Client{
			Timeout: forwardTimeout,
		},
	}
}

// Forward posts the entry to the node app. The caller's Authorization
// header is passed through when present so the log can attribute the
// action to the operator's session.
func (f *Forwarder) Forward(ctx context.Context, authorization string, e Entry) error {
	if e.Detail == nil {
		e.Detail = map[string]any{}
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+logActionPath, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	if f.staticToken != "" {
		req.Header.Set("X-Admin-Token", f.staticToken)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug().Err(err).Str("action", e.Action).Msg("action log forward failed")
		return fmt.Errorf("forward %s: %w", e.Action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		f.logger.Debug().Int("status", resp.StatusCode).Str("action", e.Action).Msg("action log rejected")
		return fmt.Errorf("forward %s: status %d", e.Action, resp.StatusCode)
	}
	return nil
}
