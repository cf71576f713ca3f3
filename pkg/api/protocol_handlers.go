package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/labtrail/protocol-registry/pkg/document"
	"github.com/labtrail/protocol-registry/pkg/search"
	"github.com/labtrail/protocol-registry/pkg/store"
)

func parseID(r *http.Request, param string) (int64, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", param, raw)
	}
	return id, nil
}

// parseFilters reads the listing filter parameters shared by the
// protocol, run and sample listings.
func parseFilters(r *http.Request) search.Filters {
	query := r.URL.Query()
	filters := search.Filters{
		Plate:    query.Get("plate"),
		Reagent:  query.Get("reagent"),
		Sample:   query.Get("sample"),
		Creator:  query.Get("creator"),
		Archived: query.Get("archived") == "true",
	}
	if v, err := strconv.ParseInt(query.Get("protocol"), 10, 64); err == nil {
		filters.Protocol = &v
	}
	if v, err := strconv.ParseInt(query.Get("run"), 10, 64); err == nil {
		filters.Run = &v
	}
	return filters
}

func protocolPath(id int64) string {
	return fmt.Sprintf("/protocol/%d", id)
}

// migratedProtocolVersion upgrades legacy payload shapes in place and
// persists the rewrite, so old documents converge without a bulk
// migration pass.
func (s *Server) migratedProtocolVersion(version *store.ProtocolVersion) *store.ProtocolVersion {
	if version == nil {
		return nil
	}
	doc := document.Document(version.Data)
	if document.MigrateLegacyFormats(doc) {
		version.Data = store.JSONDocument(doc)
		if err := s.protocols.SaveMigrated(version); err != nil {
			s.logger.Error("persist migrated protocol version failed", "version", version.ID, "error", err)
		}
	}
	return version
}

func (s *Server) createProtocol() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.ensureUser(r)
		protocol, version, err := s.protocols.Create(payload, actor(r), s.stamp(r))
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.grantOwner(r, protocolPath(protocol.ID))
		writeJSON(w, http.StatusCreated, s.protocols.Render(protocol, version, true))
	}
}

func (s *Server) listProtocols() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		protocols, err := s.composer.Protocols(parseFilters(r))
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		// Rows the caller may not read are silently omitted.
		items := []document.Document{}
		for i := range protocols {
			protocol := &protocols[i]
			if !s.checkAccess(r, protocolPath(protocol.ID), http.MethodGet) {
				continue
			}
			version, err := s.protocols.CurrentVersion(protocol)
			if err != nil {
				s.writeStoreError(w, err)
				return
			}
			items = append(items, s.protocols.Render(protocol, s.migratedProtocolVersion(version), false))
		}
		writeJSON(w, http.StatusOK, paginate(items, "protocols", parsePageParams(r)))
	}
}

func (s *Server) getProtocol() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !s.checkAccess(r, protocolPath(id), http.MethodGet) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		protocol, err := s.protocols.Get(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if protocol == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		var version *store.ProtocolVersion
		if raw := r.URL.Query().Get("version_id"); raw != "" {
			versionID, convErr := strconv.ParseInt(raw, 10, 64)
			if convErr != nil {
				writeError(w, http.StatusBadRequest, "invalid version_id")
				return
			}
			version, err = s.protocols.GetVersion(id, versionID)
			if err == nil && version == nil {
				writeError(w, http.StatusNotFound, "not found")
				return
			}
		} else {
			version, err = s.protocols.CurrentVersion(protocol)
		}
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.protocols.Render(protocol, s.migratedProtocolVersion(version), true))
	}
}

func (s *Server) updateProtocol() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !s.checkAccess(r, protocolPath(id), http.MethodPut) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		payload, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.ensureUser(r)
		protocol, version, err := s.protocols.Update(id, payload, actor(r), s.stamp(r))
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.protocols.Render(protocol, version, true))
	}
}

func (s *Server) deleteProtocol() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !s.checkAccess(r, protocolPath(id), http.MethodDelete) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		purge := r.URL.Query().Get("purge") == "true"
		if err := s.protocols.Delete(id, purge); err != nil {
			s.writeStoreError(w, err)
			return
		}
		if purge {
			if err := s.enforcer.DeletePolicies(r.Context(), "", protocolPath(id)+"*", ""); err != nil {
				s.logger.Error("policy cleanup failed", "protocol", id, "error", err)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "purged": purge})
	}
}

func (s *Server) protocolHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !s.checkAccess(r, protocolPath(id), http.MethodGet) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		protocol, err := s.protocols.Get(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if protocol == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		versions, err := s.protocols.History(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		items := make([]document.Document, 0, len(versions))
		for i := range versions {
			items = append(items, s.protocols.Render(protocol, s.migratedProtocolVersion(&versions[i]), false))
		}
		writeJSON(w, http.StatusOK, paginate(items, "versions", parsePageParams(r)))
	}
}
