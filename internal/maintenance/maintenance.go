// Package maintenance coordinates the file-backed maintenance flag
// shared with the node application. The file is the contract: the node
// app serves its maintenance page while the file exists and is not
// expired. Expiry is lazy; nothing watches the clock, readers just
// delete a stale file when they encounter one.
package maintenance

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	MinDuration     = time.Minute
	MaxDuration     = 30 * time.Minute
	DefaultDuration = 5 * time.Minute

	defaultReason = "admin-request"
	maxReasonLen  = 100
)

// restartNoise are substrings of proxy errors expected while services
// bounce. While maintenance is active, matching failures are reported
// as informational instead of as outages.
var restartNoise = []string{
	"400", "502", "503", "504",
	"Bad Gateway", "Service Unavailable", "Gateway Timeout",
	"ECONNREFUSED", "ECONNRESET", "ETIMEDOUT",
	"socket hang up", "Connection refused",
}

// Record is the on-disk maintenance state. Timestamps are epoch
// milliseconds to match what the node app's JavaScript reads.
type Record struct {
	Active    bool   `json:"active"`
	EnabledAt int64  `json:"enabledAt,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Status is a point-in-time view of the flag.
type Status struct {
	Record
	RemainingMS int64 `json:"remainingMs"`
}

type Coordinator struct {
	logger zerolog.Logger
	path   string
	now    func() time.Time
}

func NewCoordinator(logger zerolog.Logger, path string) *Coordinator {
	return &Coordinator{
		logger: logger.With().Str("component", "maintenance").Logger(),
		path:   path,
		now:    time.Now,
	}
}

// Enable writes the flag for the given duration, clamped to
// [MinDuration, MaxDuration]. Zero means DefaultDuration. The reason is
// trimmed, capped, and defaulted. Concurrent writers race benignly:
// last writer wins, which is fine for a single-operator endpoint.
func (c *Coordinator) Enable(d time.Duration, reason string) (Record, error) {
	if d == 0 {
		d = DefaultDuration
	}
	if d < MinDuration {
		d = MinDuration
	}
	if d > MaxDuration {
		d = MaxDuration
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultReason
	}
	if runes := []rune(reason); len(runes) > maxReasonLen {
		reason = string(runes[:maxReasonLen])
	}

	now := c.now()
	rec := Record{
		Active:    true,
		EnabledAt: now.UnixMilli(),
		ExpiresAt: now.Add(d).UnixMilli(),
		Reason:    reason,
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return Record{}, err
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return Record{}, err
	}

	c.logger.Info().
		Dur("duration", d).
		Str("reason", reason).
		Int64("expires_at", rec.ExpiresAt).
		Msg("maintenance mode enabled")
	return rec, nil
}

// Disable removes the flag. A flag that is already gone is success.
func (c *Coordinator) Disable() error {
	err := os.Remove(c.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	c.logger.Info().Msg("maintenance mode disabled")
	return nil
}

// Current reads the flag. An absent, unreadable, or expired file reads
// as inactive; an expired file is also deleted on the way out.
func (c *Coordinator) Current() Status {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return Status{}
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Warn().Err(err).Str("path", c.path).Msg("unreadable maintenance file")
		return Status{}
	}

	nowMS := c.now().UnixMilli()
	if rec.ExpiresAt > 0 && nowMS > rec.ExpiresAt {
		if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
			c.logger.Warn().Err(err).Msg("could not remove expired maintenance file")
		}
		return Status{}
	}

	// The file's existence is what makes maintenance active, whatever
	// the stored field says.
	rec.Active = true

	st := Status{Record: rec}
	if rec.ExpiresAt > 0 {
		st.RemainingMS = rec.ExpiresAt - nowMS
	}
	return st
}

// Suppresses reports whether an error message looks like expected
// restart noise while maintenance is active.
func (c *Coordinator) Suppresses(errText string) bool {
	if !c.Current().Active {
		return false
	}
	for _, sig := range restartNoise {
		if strings.Contains(errText, sig) {
			return true
		}
	}
	return false
}
