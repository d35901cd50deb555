package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/botaniq/admind/internal/api/request"
	"github.com/botaniq/admind/internal/api/response"
	"github.com/botaniq/admind/internal/auditlog"
	"github.com/botaniq/admind/internal/config"
	"github.com/botaniq/admind/internal/sysops"
)

// Services controls the host's systemd units and memory.
type Services struct {
	cfg     *config.Config
	manager sysops.ServiceManager
	auditor *auditlog.Forwarder
}

func NewServices(cfg *config.Config, manager sysops.ServiceManager, auditor *auditlog.Forwarder) *Services {
	return &Services{cfg: cfg, manager: manager, auditor: auditor}
}

type actionResponse struct {
	OK      bool   `json:"ok"`
	Action  string `json:"action"`
	Service string `json:"service,omitempty"`
}

// RestartApp restarts one allowlisted unit, defaulting to the main
// application service.
func (h *Services) RestartApp(w http.ResponseWriter, r *http.Request) {
	var req request.RestartApp
	if err := request.DecodeLenient(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	service := strings.TrimSpace(req.Service)
	if service == "" {
		service = h.cfg.DefaultService
	}
	if service == "" {
		response.WriteError(w, http.StatusBadRequest, "missing service")
		return
	}
	if !h.cfg.AllowedServices.Allowed(service) {
		response.WriteError(w, http.StatusBadRequest, "service not allowed")
		return
	}

	if err := h.manager.Restart(r.Context(), service); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	forwardAction(h.auditor, r, "restart_service", service, nil)
	response.WriteJSON(w, http.StatusOK, actionResponse{OK: true, Action: "restart", Service: service})
}

// ReloadNginx reloads the proxy configuration without dropping
// connections.
func (h *Services) ReloadNginx(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Reload(r.Context(), "nginx"); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	forwardAction(h.auditor, r, "reload_nginx", "nginx", nil)
	response.WriteJSON(w, http.StatusOK, actionResponse{OK: true, Action: "reload", Service: "nginx"})
}

// Reboot restarts the whole host. The client may never see the
// response.
func (h *Services) Reboot(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Reboot(r.Context()); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	forwardAction(h.auditor, r, "reboot", "server", nil)
	response.WriteJSON(w, http.StatusOK, actionResponse{OK: true, Action: "reboot"})
}

// ClearMemory syncs the filesystem and drops the kernel page cache.
func (h *Services) ClearMemory(w http.ResponseWriter, r *http.Request) {
	forwardAction(h.auditor, r, "clear_memory", "system", nil)

	if err := h.manager.DropCaches(r.Context()); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			response.WriteError(w, http.StatusGatewayTimeout, "Operation timed out")
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, messageResponse{OK: true, Message: "Memory cache cleared successfully"})
}
