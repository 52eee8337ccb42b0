package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pvboard/pvboard/internal/api/middleware"
	"github.com/pvboard/pvboard/internal/api/response"
)

// DBPinger checks database connectivity.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles the GET /health endpoint.
type HealthHandler struct {
	db      DBPinger
	driver  string
	version string
}

// NewHealthHandler creates a new HealthHandler. driver names the storage
// backend reported in the response.
func NewHealthHandler(db DBPinger, driver, version string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		driver:  driver,
		version: version,
	}
}

type databaseStatus struct {
	Driver    string `json:"driver"`
	Connected bool   `json:"connected"`
}

type healthData struct {
	Status   string         `json:"status"`
	Version  string         `json:"version"`
	Database databaseStatus `json:"database"`
}

// ServeHTTP handles the health check request.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	status := "healthy"
	connected := false
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			slog.Warn("database ping failed", "error", err, "requestId", requestID)
		} else {
			connected = true
		}
	}
	if !connected {
		status = "degraded"
	}

	data := healthData{
		Status:  status,
		Version: h.version,
		Database: databaseStatus{
			Driver:    h.driver,
			Connected: connected,
		},
	}

	response.Success(w, http.StatusOK, data, requestID)
}
