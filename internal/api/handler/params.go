package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pvboard/pvboard/internal/api/response"
)

// maxJSONBodyBytes bounds JSON request bodies.
const maxJSONBodyBytes = 1 << 20

// pathUUID parses the named URL parameter. On failure it writes an
// INVALID_ID response and reports false.
func pathUUID(w http.ResponseWriter, r *http.Request, param, requestID string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_ID", fmt.Sprintf("%s must be a valid UUID", param), requestID)
		return uuid.Nil, false
	}
	return id, true
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
