// Package module is the contract between a service module and the binaries
// that mount it. It sits apart from modkit so a module package can name its own
// Ports type without importing modkit's wiring helpers.
package module

import (
	phttp "amplisend/internal/platform/net/http"
)

// Module is one wired service: its HTTP surface, its ports and a stable name
// used in logs and panics
type Module interface {
	MountRoutes(r phttp.Router)
	Ports() any
	Name() string
}
