// Package profiling serves net/http/pprof on a chi router.
//
// Profiles expose goroutine stacks and heap contents. Mount it only on servers that
// are not reachable from the public internet, or behind authentication.
package profiling

import (
	"net/http"
	"net/http/pprof"

	"github.com/go-chi/chi/v5"
)

// DefaultPath is where the profiles live; pprof.Index only resolves profiles below it
const DefaultPath = "/debug/pprof"

// Handler returns a router for the pprof endpoints, to be mounted at DefaultPath
func Handler() http.Handler {
	r := chi.NewRouter()
	r.HandleFunc("/", pprof.Index)
	r.HandleFunc("/cmdline", pprof.Cmdline)
	r.HandleFunc("/profile", pprof.Profile)
	r.HandleFunc("/symbol", pprof.Symbol)
	r.HandleFunc("/trace", pprof.Trace)

	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		r.Handle("/"+name, pprof.Handler(name))
	}
	return r
}
