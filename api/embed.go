// Package api holds the OpenAPI document for the pvboard HTTP API.
package api

import _ "embed"

// OpenAPISpec is the OpenAPI 3 document, authored in YAML.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
