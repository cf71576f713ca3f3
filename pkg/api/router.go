package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures the HTTP surface around the handlers.
type RouterOptions struct {
	// Identity wraps every route except /health; nil leaves routes
	// unauthenticated (tests, trusted local use).
	Identity func(http.Handler) http.Handler

	// AllowedOrigins feeds the CORS middleware; empty disables CORS.
	AllowedOrigins []string
}

// NewRouter builds the chi route tree over the server's handlers.
func NewRouter(s *Server, opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Webapp-Version"},
		}))
	}

	r.Get("/health", s.health())

	r.Group(func(r chi.Router) {
		if opts.Identity != nil {
			r.Use(opts.Identity)
		}

		r.Route("/protocol", func(r chi.Router) {
			r.Get("/", s.listProtocols())
			r.Post("/", s.createProtocol())
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getProtocol())
				r.Put("/", s.updateProtocol())
				r.Delete("/", s.deleteProtocol())
				r.Get("/history", s.protocolHistory())
				r.Get("/permission", s.listPermissions(protocolPath))
				r.Post("/permission/{user}/{method}", s.addPermission(protocolPath))
				r.Delete("/permission/{user}/{method}", s.deletePermission(protocolPath))
			})
		})

		r.Route("/run", func(r chi.Router) {
			r.Get("/", s.listRuns())
			r.Post("/", s.createRun())
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getRun())
				r.Put("/", s.updateRun())
				r.Delete("/", s.deleteRun())
				r.Get("/history", s.runHistory())
				r.Get("/sample", s.listRunSamples())
				r.Get("/sample/{sampleID}", s.getRunSample())
				r.Get("/attachment", s.listAttachments())
				r.Post("/attachment", s.uploadAttachment())
				r.Get("/permission", s.listPermissions(runPath))
				r.Post("/permission/{user}/{method}", s.addPermission(runPath))
				r.Delete("/permission/{user}/{method}", s.deletePermission(runPath))
			})
		})

		r.Route("/attachment/{id}", func(r chi.Router) {
			r.Get("/", s.downloadAttachment())
			r.Delete("/", s.deleteAttachment())
		})

		r.Route("/sample", func(r chi.Router) {
			r.Get("/", s.listSamples())
			r.Route("/{sampleID}/{plateID}/{runVersionID}/{protocolVersionID}", func(r chi.Router) {
				r.Get("/", s.getSample())
				r.Put("/", s.updateSample())
			})
		})

		r.Route("/user", func(r chi.Router) {
			r.Get("/", s.listUsers())
			r.Post("/", s.createUser())
			r.Get("/{id}", s.getUser())
			r.Put("/{id}", s.updateUser())
		})

		r.Get("/search", s.searchAll())
	})

	return r
}
