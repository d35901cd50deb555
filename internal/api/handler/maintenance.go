package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/botaniq/admind/internal/api/request"
	"github.com/botaniq/admind/internal/api/response"
	"github.com/botaniq/admind/internal/auditlog"
	"github.com/botaniq/admind/internal/maintenance"
)

// Maintenance exposes the maintenance flag shared with the node app.
type Maintenance struct {
	coord   *maintenance.Coordinator
	auditor *auditlog.Forwarder
}

func NewMaintenance(coord *maintenance.Coordinator, auditor *auditlog.Forwarder) *Maintenance {
	return &Maintenance{coord: coord, auditor: auditor}
}

type maintenanceStatus struct {
	OK bool `json:"ok"`
	maintenance.Status
}

// Status reports the current flag, expiring it lazily when stale.
func (h *Maintenance) Status(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, maintenanceStatus{OK: true, Status: h.coord.Current()})
}

type maintenanceEnabled struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	ExpiresAt int64  `json:"expiresAt"`
	Reason    string `json:"reason"`
}

// Enable raises the flag for the requested duration, clamped to the
// coordinator's window.
func (h *Maintenance) Enable(w http.ResponseWriter, r *http.Request) {
	var req request.EnableMaintenance
	if err := request.DecodeLenient(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.coord.Enable(time.Duration(req.DurationMS)*time.Millisecond, req.Reason)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, "Failed to enable maintenance mode")
		return
	}

	durationMS := rec.ExpiresAt - rec.EnabledAt
	forwardAction(h.auditor, r, "maintenance_mode_enable", rec.Reason, map[string]any{"durationMs": durationMS})
	response.WriteJSON(w, http.StatusOK, maintenanceEnabled{
		OK:        true,
		Message:   fmt.Sprintf("Maintenance mode enabled for %d seconds", durationMS/1000),
		ExpiresAt: rec.ExpiresAt,
		Reason:    rec.Reason,
	})
}

// Disable lowers the flag unconditionally.
func (h *Maintenance) Disable(w http.ResponseWriter, r *http.Request) {
	if err := h.coord.Disable(); err != nil {
		response.WriteError(w, http.StatusInternalServerError, "Failed to disable maintenance mode")
		return
	}
	forwardAction(h.auditor, r, "maintenance_mode_disable", "", nil)
	response.WriteJSON(w, http.StatusOK, messageResponse{OK: true, Message: "Maintenance mode disabled"})
}
