package api

import (
	"net/http"
)

// resourcePathFunc rebuilds a resource path from its route ID, so the
// /protocol and /run permission endpoints share one handler set.
type resourcePathFunc func(id int64) string

func (s *Server) listPermissions(path resourcePathFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !s.checkAccess(r, path(id), http.MethodGet) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		policies, err := s.enforcer.GetPolicies(r.Context(), "", path(id)+"*", "")
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": policies})
	}
}

func (s *Server) addPermission(path resourcePathFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !s.checkAccess(r, path(id), http.MethodPut) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		subject := urlParamString(r, "user")
		method := urlParamString(r, "method")
		if err := s.enforcer.AddPolicy(r.Context(), subject, path(id)+"*", method); err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"user":   subject,
			"path":   path(id) + "*",
			"method": method,
		})
	}
}

func (s *Server) deletePermission(path resourcePathFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !s.checkAccess(r, path(id), http.MethodPut) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		subject := urlParamString(r, "user")
		method := urlParamString(r, "method")
		if err := s.enforcer.DeletePolicies(r.Context(), subject, path(id)+"*", method); err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	}
}
