package handler

import (
	"net/http"

	"github.com/botaniq/admind/internal/api/sse"
	"github.com/botaniq/admind/internal/auditlog"
)

// forwardAction records an admin action with the node app. Failures are
// logged by the forwarder and never affect the request.
func forwardAction(f *auditlog.Forwarder, r *http.Request, action, target string, detail map[string]any) {
	_ = f.Forward(r.Context(), r.Header.Get("Authorization"), auditlog.Entry{
		Action: action,
		Target: target,
		Detail: detail,
	})
}

// scriptEnv is the extra environment for repo maintenance scripts.
func scriptEnv(repoDir string) []string {
	return []string{"CI=true", "BOTANIQ_REPO_DIR=" + repoDir}
}

// nullableString maps the empty string to JSON null.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// sseSink adapts an event-stream writer to the runner's sink interface.
type sseSink struct {
	w *sse.Writer
}

func (s *sseSink) Line(text string)       { s.w.Line(text) }
func (s *sseSink) Fail(message string)    { s.w.SendError(message) }
func (s *sseSink) Done(ok bool, code int) { s.w.SendDone(ok, code) }

// messageResponse is the minimal success envelope.
type messageResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}
