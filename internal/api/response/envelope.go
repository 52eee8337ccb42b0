package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Meta holds metadata for every API response.
type Meta struct {
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
}

// ListMeta extends Meta with the number of returned items.
type ListMeta struct {
	Meta
	Total int `json:"total"`
}

// Error represents a structured API error.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Envelope is the standard API response wrapper.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
	Error   *Error `json:"error"`
	Meta    Meta   `json:"meta"`
}

// ListEnvelope is the response wrapper for list endpoints.
type ListEnvelope struct {
	Success bool     `json:"success"`
	Data    any      `json:"data"`
	Error   *Error   `json:"error"`
	Meta    ListMeta `json:"meta"`
}

// NewMeta creates a Meta with a new UUID and current timestamp.
// If requestID is provided, it uses that instead of generating a new one.
func NewMeta(requestID string) Meta {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	return Meta{
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// JSON writes a JSON response with the given status code and envelope.
func JSON(w http.ResponseWriter, status int, env any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Success writes a successful JSON response.
func Success(w http.ResponseWriter, status int, data any, requestID string) {
	SuccessMessage(w, status, data, "", requestID)
}

// SuccessMessage writes a successful JSON response carrying a human-readable message.
func SuccessMessage(w http.ResponseWriter, status int, data any, message string, requestID string) {
	JSON(w, status, Envelope{
		Success: true,
		Data:    data,
		Message: message,
		Meta:    NewMeta(requestID),
	})
}

// SuccessList writes a successful list JSON response with the item count.
func SuccessList(w http.ResponseWriter, status int, data any, total int, requestID string) {
	JSON(w, status, ListEnvelope{
		Success: true,
		Data:    data,
		Meta: ListMeta{
			Meta:  NewMeta(requestID),
			Total: total,
		},
	})
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Err writes an error JSON response.
func Err(w http.ResponseWriter, status int, code string, message string, requestID string) {
	ErrWithDetails(w, status, code, message, nil, requestID)
}

// ErrWithDetails writes an error JSON response with additional details.
func ErrWithDetails(w http.ResponseWriter, status int, code string, message string, details any, requestID string) {
	JSON(w, status, Envelope{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: NewMeta(requestID),
	})
}
