package schemasync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/botaniq/admind/internal/config"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	maxWarnings        = 20
	defaultUnitTimeout = 60 * time.Second
)

// ConfigError reports a sync that could not start at all, as opposed to
// one that ran and hit SQL failures.
type ConfigError struct {
	Reason string
	Detail string
	Path   string
}

func (e *ConfigError) Error() string { return e.Reason }

// UnitResult is the outcome of one SQL file.
type UnitResult struct {
	File     string `json:"file"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Summary is the full sync report returned to the caller.
type Summary struct {
	OK           bool         `json:"ok"`
	Error        string       `json:"error,omitempty"`
	Message      string       `json:"message"`
	Results      []UnitResult `json:"results"`
	TotalFiles   int          `json:"totalFiles"`
	SuccessCount int          `json:"successCount"`
	ErrorCount   int          `json:"errorCount"`
	Warnings     []string     `json:"warnings"`
}

// Pipeline applies the repository's SQL sync units to the configured
// database in lexical order, retrying certificate failures through the
// trust ladder.
type Pipeline struct {
	logger      zerolog.Logger
	repoRoot    string
	db          config.DatabaseEnv
	unitTimeout time.Duration
	caClient    *http.Client

	// Seams for tests.
	exec    func(ctx context.Context, d Descriptor, sqlPath string) attemptResult
	probe   func(ctx context.Context) bool
	secrets func(ctx context.Context, d Descriptor, db config.DatabaseEnv) error
}

func NewPipeline(logger zerolog.Logger, repoRoot string, db config.DatabaseEnv) *Pipeline {
	p := &Pipeline{
		logger:      logger.With().Str("component", "schemasync").Logger(),
		repoRoot:    repoRoot,
		db:          db,
		unitTimeout: defaultUnitTimeout,
		caClient:    &http.Client{Timeout: caFetchTimeout},
	}
	p.exec = p.runPsql
	p.probe = psqlAvailable
	p.secrets = upsertPlatformSecrets
	return p
}

// Run executes every sync unit and reports per-unit results. SQL
// failures do not abort the loop and come back inside the Summary;
// the error return is reserved for syncs that could not start.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	dir := UnitsDir(p.repoRoot)
	units := DiscoverUnits(dir)
	if len(units) == 0 {
		return nil, &ConfigError{
			Reason: fmt.Sprintf("sync_parts folder not found or empty at %s", dir),
			Detail: "The schema sync files are missing. Ensure supabase/sync_parts/ folder exists with SQL files.",
			Path:   dir,
		}
	}

	desc, err := Resolve(p.db)
	if err != nil {
		return nil, err
	}
	if !p.probe(ctx) {
		return nil, &ConfigError{Reason: "psql not available on server"}
	}

	logger := p.logger.With().Str("run_id", uuid.New().String()).Logger()
	logger.Info().Int("units", len(units)).Str("dir", dir).Msg("starting schema sync")

	summary := &Summary{
		Results:    make([]UnitResult, 0, len(units)),
		TotalFiles: len(units),
		Warnings:   []string{},
	}
	failedFile := ""
	for _, unit := range units {
		res := p.runWithTrustLadder(ctx, desc, filepath.Join(dir, unit))
		row := p.buildUnitRow(unit, res)
		summary.Results = append(summary.Results, row)
		if row.Status == statusError {
			summary.ErrorCount++
			if failedFile == "" {
				failedFile = unit
			}
			logger.Error().Str("file", unit).Str("error", row.Error).Msg("sync unit failed")
			continue
		}
		summary.SuccessCount++
		summary.Warnings = append(summary.Warnings, collectNoiseLines(unit, res)...)
		logger.Debug().Str("file", unit).Str("duration", row.Duration).Msg("sync unit applied")
	}

	if summary.ErrorCount > 0 {
		summary.OK = false
		summary.Error = "Schema sync failed at: " + failedFile
		summary.Message = fmt.Sprintf("%d/%d files succeeded", summary.SuccessCount, summary.TotalFiles)
		summary.Warnings = capWarnings(summary.Warnings)
		logger.Error().Int("failed", summary.ErrorCount).Msg("schema sync failed")
		return summary, nil
	}

	summary.OK = true
	summary.Message = fmt.Sprintf("Schema synchronized successfully (%d files)", summary.TotalFiles)
	if p.db.SupabaseURL != "" && p.db.ServiceRoleKey != "" {
		if err := p.secrets(ctx, desc, p.db); err != nil {
			summary.Warnings = append(summary.Warnings, "Failed to update admin_secrets: "+err.Error())
			logger.Warn().Err(err).Msg("admin_secrets upsert failed")
		}
	}
	summary.Warnings = capWarnings(summary.Warnings)
	logger.Info().Int("files", summary.TotalFiles).Msg("schema sync complete")
	return summary, nil
}

// attemptResult is the raw outcome of one psql invocation.
type attemptResult struct {
	exitCode int
	timedOut bool
	execErr  error
	stdout   string
	stderr   string
	duration time.Duration
}

// certFailure reports whether the attempt failed in a way the trust
// ladder can fix. Timeouts and spawn errors are not retried.
func (r attemptResult) certFailure() bool {
	return !r.timedOut && r.execErr == nil && r.exitCode != 0 &&
		strings.Contains(strings.ToLower(r.stderr), "certificate")
}

func (p *Pipeline) runWithTrustLadder(ctx context.Context, desc Descriptor, sqlPath string) attemptResult {
	var res attemptResult
	for i, attempt := range p.trustLadder() {
		d, cleanup, ok := attempt(ctx, desc)
		if !ok {
			continue
		}
		res = p.exec(ctx, d, sqlPath)
		cleanup()
		if !res.certFailure() {
			return res
		}
		p.logger.Debug().Int("attempt", i+1).Str("file", filepath.Base(sqlPath)).
			Msg("certificate failure, trying next trust source")
	}
	return res
}

func (p *Pipeline) runPsql(ctx context.Context, d Descriptor, sqlPath string) attemptResult {
	ctx, cancel := context.WithTimeout(ctx, p.unitTimeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, "psql", d.URL, "-v", "ON_ERROR_STOP=1", "-X", "-q", "-f", sqlPath)
	cmd.Env = d.Env(os.Environ())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := attemptResult{
		stdout:   stdout.String(),
		stderr:   stderr.String(),
		duration: time.Since(start),
	}
	if ctx.Err() == context.DeadlineExceeded {
		res.timedOut = true
		res.exitCode = -1
		return res
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.exitCode = exitErr.ExitCode()
		} else {
			res.execErr = err
		}
	}
	return res
}

func (p *Pipeline) buildUnitRow(unit string, res attemptResult) UnitResult {
	row := UnitResult{
		File:     unit,
		Duration: fmt.Sprintf("%dms", res.duration.Milliseconds()),
	}
	switch {
	case res.timedOut:
		row.Status = statusError
		row.Error = fmt.Sprintf("Timeout after %d seconds", int(p.unitTimeout.Seconds()))
	case res.execErr != nil:
		row.Status = statusError
		row.Error = res.execErr.Error()
	case res.exitCode != 0 || containsErrorMarker(res.stdout) || containsErrorMarker(res.stderr):
		msg := strings.TrimSpace(res.stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.stdout)
		}
		row.Status = statusError
		row.Error = firstErrorLine(res.stdout, res.stderr, msg)
		row.Detail = truncateRunes(msg, 500)
	default:
		row.Status = statusSuccess
	}
	return row
}

func containsErrorMarker(s string) bool {
	return strings.Contains(strings.ToUpper(s), "ERROR:")
}

// firstErrorLine pulls the first ERROR: line from the output, falling
// back to a truncated copy of the whole message.
func firstErrorLine(stdout, stderr, fallback string) string {
	for _, line := range strings.Split(stdout+"\n"+stderr, "\n") {
		if strings.Contains(strings.ToUpper(line), "ERROR:") {
			return strings.TrimSpace(line)
		}
	}
	return truncateRunes(fallback, 200)
}

// collectNoiseLines gathers WARNING:/NOTICE: lines from a successful
// unit, tagged with the file they came from.
func collectNoiseLines(unit string, res attemptResult) []string {
	var out []string
	for _, line := range strings.Split(res.stdout+"\n"+res.stderr, "\n") {
		upper := strings.ToUpper(line)
		if strings.Contains(upper, "WARNING:") || strings.Contains(upper, "NOTICE:") {
			out = append(out, fmt.Sprintf("[%s] %s", unit, strings.TrimSpace(line)))
		}
	}
	return out
}

func capWarnings(warnings []string) []string {
	if len(warnings) > maxWarnings {
		return warnings[:maxWarnings]
	}
	return warnings
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func psqlAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "psql", "--version").Run() == nil
}
