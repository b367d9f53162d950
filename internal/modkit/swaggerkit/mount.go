// Package swaggerkit mounts Swagger UI over a swag-registered OpenAPI document
package swaggerkit

import (
	"net/http"

	phttp "amplisend/internal/platform/net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

// Mount serves the document registered under instance at /docs/doc.json and the UI at /docs/
func Mount(r phttp.Router, enabled bool, instance string, mutators ...SpecMutator) {
	if !enabled {
		return
	}
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/", http.StatusPermanentRedirect)
	})
	r.Get("/docs/doc.json", serveDocJSON(instance, mutators...))
	r.Handle("/docs/*", httpSwagger.Handler(
		httpSwagger.InstanceName(instance),
		httpSwagger.URL("/docs/doc.json"),
	))
}
