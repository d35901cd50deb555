package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/botaniq/admind/internal/api/request"
	"github.com/botaniq/admind/internal/api/response"
	"github.com/botaniq/admind/internal/api/sse"
	"github.com/botaniq/admind/internal/auditlog"
	"github.com/botaniq/admind/internal/config"
	"github.com/botaniq/admind/internal/gitops"
	"github.com/botaniq/admind/internal/runner"
)

const (
	nginxReloadTimeout    = 30 * time.Second
	serviceRestartTimeout = 60 * time.Second
)

var errStepTimeout = errors.New("step timed out")

// failStream reports a fatal step error and terminates the stream.
func failStream(stream *sse.Writer, err error) {
	msg := err.Error()
	if errors.Is(err, errStepTimeout) {
		msg = "Operation timed out"
	}
	stream.SendError(msg)
	stream.SendDone(false, -1)
}

// Setup runs the privileged host flows that need the root password.
// The password travels only on a child's stdin, never in argv or the
// environment.
type Setup struct {
	cfg     *config.Config
	runner  *runner.Runner
	auditor *auditlog.Forwarder

	// step runs one privileged systemctl action; swapped in tests.
	step func(ctx context.Context, password string, timeout time.Duration, verb, unit string) (int, error)
}

func NewSetup(cfg *config.Config, run *runner.Runner, auditor *auditlog.Forwarder) *Setup {
	s := &Setup{cfg: cfg, runner: run, auditor: auditor}
	s.step = s.restartStep
	return s
}

// dropPasswordPrompts filters sudo's prompt echoes out of streamed
// output.
func dropPasswordPrompts(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "[sudo]") || strings.Contains(lower, "password")
}

// Run executes the provisioning script under sudo with the supplied
// root password, streaming its output.
func (h *Setup) Run(w http.ResponseWriter, r *http.Request) {
	var req request.RunSetup
	if err := request.DecodeLenient(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Password == "" {
		response.WriteError(w, http.StatusBadRequest, "Root password required")
		return
	}

	script := h.cfg.SetupScript()
	if _, err := os.Stat(script); err != nil {
		response.WriteError(w, http.StatusInternalServerError, "setup.sh not found at "+script)
		return
	}
	gitops.EnsureExecutable(script)
	forwardAction(h.auditor, r, "run_setup", "setup.sh", nil)

	stream, err := sse.NewWriter(w)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stream.SendOpen("Starting setup.sh...")

	h.runner.StreamWithInput(r.Context(), runner.Command{
		Name:  "sudo",
		Args:  []string{"-S", script},
		Dir:   h.cfg.RepoDir,
		Env:   []string{"CI=true"},
		Stdin: req.Password + "\n",
	}, dropPasswordPrompts, &sseSink{w: stream})
}

// RestartServer reloads nginx and restarts the application services in
// order, streaming progress. The daemon's own unit goes last so the
// stream survives as long as possible.
func (h *Setup) RestartServer(w http.ResponseWriter, r *http.Request) {
	var req request.RunSetup
	if err := request.DecodeLenient(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Password == "" {
		response.WriteError(w, http.StatusBadRequest, "Root password required")
		return
	}
	forwardAction(h.auditor, r, "restart_server", "services", nil)

	stream, err := sse.NewWriter(w)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stream.SendOpen("Starting server restart...")

	stream.Line("[restart] Reloading nginx...")
	code, err := h.step(r.Context(), req.Password, nginxReloadTimeout, "reload", "nginx")
	if err != nil {
		failStream(stream, err)
		return
	}
	if code != 0 {
		stream.Line(fmt.Sprintf("[restart] Warning: nginx reload returned code %d", code))
	} else {
		stream.Line("[restart] nginx reloaded")
	}

	for _, svc := range h.restartSequence() {
		stream.Line(fmt.Sprintf("[restart] Restarting %s...", svc))
		code, err := h.step(r.Context(), req.Password, serviceRestartTimeout, "restart", svc)
		if err != nil {
			failStream(stream, err)
			return
		}
		if code != 0 {
			stream.Line(fmt.Sprintf("[restart] Warning: %s restart returned code %d", svc, code))
		} else {
			stream.Line(fmt.Sprintf("[restart] %s restarted", svc))
		}
	}

	stream.Line("[restart] All services restarted successfully")
	stream.SendDone(true, 0)
}

// restartStep runs one systemctl action with the password on stdin. The
// returned error is fatal to the whole sequence; a non-zero exit is
// reported through code and the sequence continues.
func (h *Setup) restartStep(ctx context.Context, password string, timeout time.Duration, verb, unit string) (int, error) {
	res, err := h.runner.Run(ctx, runner.Command{
		Name:    "sudo",
		Args:    []string{"-S", "systemctl", verb, unit},
		Stdin:   password + "\n",
		Timeout: timeout,
	})
	if err != nil {
		return -1, err
	}
	if res.TimedOut {
		return -1, errStepTimeout
	}
	return res.ExitCode, nil
}

// restartSequence is the allowlist in configured order with nginx
// excluded; nginx is reloaded rather than restarted to keep existing
// connections alive.
func (h *Setup) restartSequence() []string {
	var seq []string
	for _, name := range h.cfg.AllowedServices.Names() {
		if name == "nginx" {
			continue
		}
		seq = append(seq, name)
	}
	return seq
}
