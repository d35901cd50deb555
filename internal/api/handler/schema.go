package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/botaniq/admind/internal/api/response"
	"github.com/botaniq/admind/internal/auditlog"
	"github.com/botaniq/admind/internal/schemasync"
)

// schemaRunner is the slice of the sync pipeline the handler needs.
type schemaRunner interface {
	Run(ctx context.Context) (*schemasync.Summary, error)
}

// Schema applies the repository's SQL sync units to the configured
// database.
type Schema struct {
	pipeline schemaRunner
	auditor  *auditlog.Forwarder
}

func NewSchema(pipeline schemaRunner, auditor *auditlog.Forwarder) *Schema {
	return &Schema{pipeline: pipeline, auditor: auditor}
}

type schemaConfigFailure struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Sync runs the pipeline and returns its per-unit report. A sync that
// could not start at all comes back as a config failure; SQL failures
// come back inside the summary with a 500.
func (h *Schema) Sync(w http.ResponseWriter, r *http.Request) {
	summary, err := h.pipeline.Run(r.Context())
	if err != nil {
		var cfgErr *schemasync.ConfigError
		if errors.As(err, &cfgErr) {
			detail := map[string]any{"error": cfgErr.Reason}
			if cfgErr.Path != "" {
				detail["path"] = cfgErr.Path
			}
			forwardAction(h.auditor, r, "sync_schema_failed", "", detail)
			response.WriteJSON(w, http.StatusInternalServerError, schemaConfigFailure{
				Error:  cfgErr.Reason,
				Detail: cfgErr.Detail,
				Path:   cfgErr.Path,
			})
			return
		}
		forwardAction(h.auditor, r, "sync_schema_failed", "", map[string]any{"error": err.Error()})
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !summary.OK {
		forwardAction(h.auditor, r, "sync_schema_partial", "", map[string]any{
			"results":      summary.Results,
			"successCount": summary.SuccessCount,
			"errorCount":   summary.ErrorCount,
		})
		response.WriteJSON(w, http.StatusInternalServerError, summary)
		return
	}

	forwardAction(h.auditor, r, "sync_schema", "", map[string]any{
		"results":      summary.Results,
		"successCount": summary.SuccessCount,
		"totalFiles":   summary.TotalFiles,
		"warnings":     summary.Warnings,
	})
	response.WriteJSON(w, http.StatusOK, summary)
}
