package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvboard/pvboard/internal/api/response"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestSuccessMessage(t *testing.T) {
	w := httptest.NewRecorder()

	response.SuccessMessage(w, http.StatusCreated, map[string]string{"id": "1"}, "Project created successfully", "req-1")

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	env := decode(t, w)
	assert.Equal(t, true, env["success"])
	assert.Equal(t, "Project created successfully", env["message"])
	assert.Nil(t, env["error"])
	meta := env["meta"].(map[string]any)
	assert.Equal(t, "req-1", meta["requestId"])
	_, err := time.Parse(time.RFC3339, meta["timestamp"].(string))
	assert.NoError(t, err)
}

func TestSuccess_OmitsEmptyMessage(t *testing.T) {
	w := httptest.NewRecorder()

	response.Success(w, http.StatusOK, []string{}, "req-1")

	env := decode(t, w)
	_, hasMessage := env["message"]
	assert.False(t, hasMessage)
	assert.Equal(t, []any{}, env["data"])
}

func TestSuccessList(t *testing.T) {
	w := httptest.NewRecorder()

	response.SuccessList(w, http.StatusOK, []int{1, 2}, 2, "")

	env := decode(t, w)
	assert.Equal(t, true, env["success"])
	meta := env["meta"].(map[string]any)
	assert.Equal(t, float64(2), meta["total"])
	assert.NotEmpty(t, meta["requestId"], "a request id is generated when missing")
}

func TestErrWithDetails(t *testing.T) {
	w := httptest.NewRecorder()

	response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed",
		[]map[string]string{{"field": "clientCode", "message": "is required"}}, "req-2")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	assert.Equal(t, false, env["success"])
	assert.Nil(t, env["data"])
	errObj := env["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
	assert.Len(t, errObj["details"], 1)
}

func TestNoContent(t *testing.T) {
	w := httptest.NewRecorder()

	response.NoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.Bytes())
}
