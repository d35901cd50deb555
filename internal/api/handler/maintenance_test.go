package handler

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botaniq/admind/internal/maintenance"
)

func newMaintenanceHandler(t *testing.T) (*Maintenance, string, *auditRecorder) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "maintenance.json")
	audit := newAuditRecorder()
	t.Cleanup(audit.Close)
	coord := maintenance.NewCoordinator(zerolog.Nop(), path)
	return NewMaintenance(coord, audit.Forwarder()), path, audit
}

func TestMaintenanceStatus_Inactive(t *testing.T) {
	h, _, _ := newMaintenanceHandler(t)
	rec := httptest.NewRecorder()

	h.Status(rec, newRequest(http.MethodGet, "/admin/maintenance-mode", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, false, body["active"])
	assert.Equal(t, float64(0), body["remainingMs"])
}

func TestMaintenanceEnable_Defaults(t *testing.T) {
	h, path, audit := newMaintenanceHandler(t)
	rec := httptest.NewRecorder()

	h.Enable(rec, newRequest(http.MethodPost, "/admin/maintenance-mode/enable", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "Maintenance mode enabled for 300 seconds", body["message"])
	assert.Equal(t, "admin-request", body["reason"])
	assert.Greater(t, body["expiresAt"], float64(0))

	_, err := os.Stat(path)
	assert.NoError(t, err, "flag file should exist")

	assert.Equal(t, []string{"maintenance_mode_enable"}, audit.Actions())
	assert.Equal(t, float64(300000), audit.Last().Detail["durationMs"])
}

func TestMaintenanceEnable_ClampsDuration(t *testing.T) {
	tests := []struct {
		name       string
		durationMS int64
		message    string
	}{
		{"below minimum", 1, "Maintenance mode enabled for 60 seconds"},
		{"above maximum", 3 * 60 * 60 * 1000, "Maintenance mode enabled for 1800 seconds"},
		{"in range", 10 * 60 * 1000, "Maintenance mode enabled for 600 seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newMaintenanceHandler(t)
			rec := httptest.NewRecorder()

			h.Enable(rec, newRequest(http.MethodPost, "/admin/maintenance-mode/enable",
				map[string]any{"durationMs": tt.durationMS}))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.message, decodeBody(rec)["message"])
		})
	}
}

func TestMaintenanceEnable_CustomReason(t *testing.T) {
	h, _, audit := newMaintenanceHandler(t)
	rec := httptest.NewRecorder()

	h.Enable(rec, newRequest(http.MethodPost, "/admin/maintenance-mode/enable",
		map[string]any{"reason": "deploy window"}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "deploy window", decodeBody(rec)["reason"])
	assert.Equal(t, "deploy window", audit.Last().Target)
}

func TestMaintenanceEnable_NegativeDurationRejected(t *testing.T) {
	h, _, _ := newMaintenanceHandler(t)
	rec := httptest.NewRecorder()

	h.Enable(rec, newRequest(http.MethodPost, "/admin/maintenance-mode/enable",
		map[string]any{"durationMs": -5000}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMaintenanceStatus_ActiveAfterEnable(t *testing.T) {
	h, _, _ := newMaintenanceHandler(t)

	enableRec := httptest.NewRecorder()
	h.Enable(enableRec, newRequest(http.MethodPost, "/admin/maintenance-mode/enable",
		map[string]any{"reason": "restart"}))
	require.Equal(t, http.StatusOK, enableRec.Code)

	rec := httptest.NewRecorder()
	h.Status(rec, newRequest(http.MethodGet, "/admin/maintenance-mode", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(rec)
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "restart", body["reason"])
	assert.Greater(t, body["remainingMs"], float64(0))
}

func TestMaintenanceDisable(t *testing.T) {
	h, path, audit := newMaintenanceHandler(t)

	enableRec := httptest.NewRecorder()
	h.Enable(enableRec, newRequest(http.MethodPost, "/admin/maintenance-mode/enable", nil))
	require.Equal(t, http.StatusOK, enableRec.Code)

	rec := httptest.NewRecorder()
	h.Disable(rec, newRequest(http.MethodPost, "/admin/maintenance-mode/disable", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Maintenance mode disabled", decodeBody(rec)["message"])

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "flag file should be gone")
	assert.Contains(t, audit.Actions(), "maintenance_mode_disable")
}

func TestMaintenanceDisable_AlreadyInactive(t *testing.T) {
	h, _, _ := newMaintenanceHandler(t)
	rec := httptest.NewRecorder()

	h.Disable(rec, newRequest(http.MethodPost, "/admin/maintenance-mode/disable", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMaintenanceEnable_MalformedBody(t *testing.T) {
	h, _, _ := newMaintenanceHandler(t)
	rec := httptest.NewRecorder()

	h.Enable(rec, newRequestRaw(http.MethodPost, "/admin/maintenance-mode/enable", "[1,2]"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
