package swaggerkit

import (
	"encoding/json"
	"net/http"
	"strings"

	"amplisend/internal/platform/logger"

	"github.com/swaggo/swag/v2"
)

// SpecMutator lets modules tweak the parsed spec before it is served
type SpecMutator func(map[string]any)

// docReader is a seam so tests can feed their own document
var docReader = func(instance string) (string, error) { return swag.ReadDoc(instance) }

// serveDocJSON serves the registered document for instance with the shared error model patched in
func serveDocJSON(instance string, mutators ...SpecMutator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := docReader(instance)
		if err != nil {
			logger.C(r.Context()).Error().Err(err).Str("instance", instance).Msg("swagger doc not registered")
			http.Error(w, "spec not registered", http.StatusNotFound)
			return
		}

		var spec map[string]any
		if err := json.Unmarshal([]byte(raw), &spec); err != nil {
			http.Error(w, "spec parse error", http.StatusInternalServerError)
			return
		}

		ensureVersion(spec)
		ensureErrorResponse(spec)
		addDefaultError(spec)
		for _, m := range mutators {
			m(spec)
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(spec)
	}
}

// ensureVersion lifts swagger 2 to OAS3 and pins 3.1 down to 3.0.3, which the UI renders
func ensureVersion(spec map[string]any) {
	if _, ok := spec["swagger"]; ok {
		delete(spec, "swagger")
		spec["openapi"] = "3.0.3"
	}
	v, ok := spec["openapi"].(string)
	if !ok || strings.HasPrefix(v, "3.1") {
		spec["openapi"] = "3.0.3"
	}
}

// ensureErrorResponse adds the error envelope schema if the document lacks it
// kept minimal so it does not drift from the runtime wire
func ensureErrorResponse(spec map[string]any) {
	comps, ok := spec["components"].(map[string]any)
	if !ok {
		comps = map[string]any{}
		spec["components"] = comps
	}
	schemas, ok := comps["schemas"].(map[string]any)
	if !ok {
		schemas = map[string]any{}
		comps["schemas"] = schemas
	}
	if _, ok := schemas["ErrorResponse"]; ok {
		return
	}
	schemas["ErrorResponse"] = map[string]any{
		"type":        "object",
		"description": "Standard error response",
		"properties": map[string]any{
			"status_code": map[string]any{"type": "integer", "format": "int32"},
			"status":      map[string]any{"type": "string"},
			"code":        map[string]any{"type": "integer", "format": "int32"},
			"reason":      map[string]any{"type": "string"},
			"error":       map[string]any{"type": "string"},
			"field":       map[string]any{"type": "string"},
			"request_id":  map[string]any{"type": "string"},
		},
		"required": []any{"status_code", "status"},
	}
}

// addDefaultError injects a 500 response into every operation that lacks one
func addDefaultError(spec map[string]any) {
	paths, ok := spec["paths"].(map[string]any)
	if !ok {
		return
	}
	errResp := map[string]any{
		"description": "Internal Server Error",
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"$ref": "#/components/schemas/ErrorResponse"},
				"example": map[string]any{
					"status_code": 500,
					"status":      "Internal Server Error",
					"code":        1,
					"reason":      "panic",
					"error":       "panic recovered",
					"request_id":  "relay-1/abc-000001",
				},
			},
		},
	}
	for _, p := range paths {
		node, ok := p.(map[string]any)
		if !ok {
			continue
		}
		for _, opAny := range node {
			op, ok := opAny.(map[string]any)
			if !ok {
				continue
			}
			responses, ok := op["responses"].(map[string]any)
			if !ok {
				responses = map[string]any{}
				op["responses"] = responses
			}
			if _, exists := responses["500"]; !exists {
				responses["500"] = errResp
			}
		}
	}
}
