package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"sigs.k8s.io/yaml"

	"github.com/pvboard/pvboard/internal/api/middleware"
	"github.com/pvboard/pvboard/internal/api/response"
)

// OpenAPIHandler serves the OpenAPI spec as JSON, stamped with the version
// of the running server.
type OpenAPIHandler struct {
	rawYAML  []byte
	version  string
	jsonOnce sync.Once
	jsonSpec []byte
	jsonErr  error
}

// NewOpenAPIHandler creates a handler that converts the YAML spec to JSON on
// first request. A non-empty version replaces info.version.
func NewOpenAPIHandler(yamlSpec []byte, version string) *OpenAPIHandler {
	return &OpenAPIHandler{rawYAML: yamlSpec, version: version}
}

// ServeHTTP converts the embedded YAML spec to JSON (cached) and writes it.
func (h *OpenAPIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.jsonOnce.Do(func() {
		h.jsonSpec, h.jsonErr = renderSpec(h.rawYAML, h.version)
	})

	if h.jsonErr != nil {
		slog.Error("failed to convert OpenAPI spec to JSON", "error", h.jsonErr)
		requestID := middleware.GetRequestID(r.Context())
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to convert OpenAPI spec", requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(h.jsonSpec); err != nil {
		slog.Error("failed to write OpenAPI spec response", "error", err)
	}
}

func renderSpec(rawYAML []byte, version string) ([]byte, error) {
	doc, err := yaml.YAMLToJSON(rawYAML)
	if err != nil || version == "" {
		return doc, err
	}

	var spec map[string]any
	if err := json.Unmarshal(doc, &spec); err != nil {
		return nil, fmt.Errorf("decoding converted spec: %w", err)
	}
	info, ok := spec["info"].(map[string]any)
	if !ok {
		return nil, errors.New("spec has no info object")
	}
	info["version"] = version
	return json.Marshal(spec)
}
