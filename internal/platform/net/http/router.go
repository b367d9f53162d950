package http

import "net/http"

// Handler is a plain handler func; phttp.Handle builds one from a Response func
type Handler = func(http.ResponseWriter, *http.Request)

// Router is what modules see of the relay mux. The relay only needs GET and
// POST routes plus raw handlers for docs, pprof and /metrics.
type Router interface {
	// Get and Post register method-bound routes
	Get(path string, h Handler)
	Post(path string, h Handler)

	// Handle registers h for every method; patterns may end in /*
	Handle(path string, h http.Handler)

	// Use appends middleware; call it before registering routes on the same Router
	Use(mw ...func(http.Handler) http.Handler)

	// Group shares the parent path, Route nests under pattern
	Group(fn func(Router))
	Route(pattern string, fn func(Router))

	// Mux is the underlying handler, for tests and http.Server
	Mux() http.Handler
}
