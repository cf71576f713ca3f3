// Package api exposes the registry over HTTP: versioned CRUD for
// protocols, runs, users and samples, filtered search, attachments,
// and per-resource permission management. Handlers own the mapping
// from store error kinds to status codes; stores never see HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labtrail/protocol-registry/pkg/authz"
	"github.com/labtrail/protocol-registry/pkg/search"
	"github.com/labtrail/protocol-registry/pkg/store"
)

// Server bundles the stores and collaborators the handlers close over.
type Server struct {
	protocols   *store.ProtocolStore
	runs        *store.RunStore
	samples     *store.SampleStore
	users       *store.UserStore
	attachments *store.AttachmentStore
	composer    *search.Composer
	enforcer    authz.Enforcer
	logger      *slog.Logger

	// serverVersion is stamped onto every version row written here.
	serverVersion string
}

// ServerOptions configures a Server.
type ServerOptions struct {
	Protocols     *store.ProtocolStore
	Runs          *store.RunStore
	Samples       *store.SampleStore
	Users         *store.UserStore
	Attachments   *store.AttachmentStore
	Composer      *search.Composer
	Enforcer      authz.Enforcer
	Logger        *slog.Logger
	ServerVersion string
}

// NewServer creates a Server. A nil Enforcer grants everything; a nil
// Logger falls back to slog.Default().
func NewServer(opts ServerOptions) *Server {
	if opts.Enforcer == nil {
		opts.Enforcer = authz.AllowAll{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		protocols:     opts.Protocols,
		runs:          opts.Runs,
		samples:       opts.Samples,
		users:         opts.Users,
		attachments:   opts.Attachments,
		composer:      opts.Composer,
		enforcer:      opts.Enforcer,
		logger:        opts.Logger,
		serverVersion: opts.ServerVersion,
	}
}

// stamp builds the version stamp for a mutating request. The webapp
// version is whatever the client declares about itself.
func (s *Server) stamp(r *http.Request) store.Stamp {
	return store.Stamp{
		ServerVersion: s.serverVersion,
		WebappVersion: r.Header.Get("X-Webapp-Version"),
	}
}

// actor returns the authenticated caller's subject. The identity
// middleware guarantees one is present on every protected route.
func actor(r *http.Request) string {
	id, _ := authz.IdentityFromContext(r.Context())
	return id.Subject
}

// ensureUser lazily creates a user identity row for the caller so that
// created_by/updated_by references always resolve.
func (s *Server) ensureUser(r *http.Request) {
	id, ok := authz.IdentityFromContext(r.Context())
	if !ok || id.Subject == "" {
		return
	}
	existing, err := s.users.Get(id.Subject)
	if err != nil || existing != nil {
		return
	}
	payload := map[string]any{}
	if id.Email != "" {
		payload["email"] = id.Email
	}
	if _, _, err := s.users.Create(id.Subject, payload, id.Subject, store.Stamp{ServerVersion: s.serverVersion}); err != nil {
		s.logger.Debug("user auto-create failed", "user", id.Subject, "error", err)
	}
}

// checkAccess runs one policy check and reports whether the caller may
// proceed. Errors from the policy store deny.
func (s *Server) checkAccess(r *http.Request, path, method string) bool {
	allowed, err := s.enforcer.CheckAccess(r.Context(), actor(r), path, method)
	if err != nil {
		s.logger.Error("policy check failed", "path", path, "error", err)
		return false
	}
	return allowed
}

// grantOwner gives the creating user full access to a new resource.
func (s *Server) grantOwner(r *http.Request, path string) {
	if err := s.enforcer.AddPolicy(r.Context(), actor(r), path+"*", "*"); err != nil {
		s.logger.Error("owner policy grant failed", "path", path, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps store error kinds to status codes. Unknown
// errors become a generic 500 without internal detail.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrEditForbidden):
		writeError(w, http.StatusForbidden, "record is signed or witnessed and cannot be changed")
	case errors.Is(err, store.ErrBadReference):
		writeError(w, http.StatusBadRequest, "referenced resource does not exist")
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeBody(r *http.Request) (map[string]any, error) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	return payload, nil
}
