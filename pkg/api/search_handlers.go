package api

import (
	"net/http"

	"github.com/labtrail/protocol-registry/pkg/document"
)

// searchAll runs the protocol and run listings under one filter set
// and returns both result lists, access-filtered per row.
func (s *Server) searchAll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters := parseFilters(r)

		protocols, err := s.composer.Protocols(filters)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		protocolItems := []document.Document{}
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
			protocolItems = append(protocolItems, s.protocols.Render(protocol, s.migratedProtocolVersion(version), false))
		}

		runs, err := s.composer.Runs(filters)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		runItems := []document.Document{}
		for i := range runs {
			run := &runs[i]
			if !s.checkAccess(r, runPath(run.ID), http.MethodGet) {
				continue
			}
			version, err := s.runs.CurrentVersion(run)
			if err != nil {
				s.writeStoreError(w, err)
				return
			}
			runItems = append(runItems, s.runs.Render(run, s.migratedRunVersion(version), false))
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"protocols": protocolItems,
			"runs":      runItems,
		})
	}
}

func (s *Server) health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": s.serverVersion,
		})
	}
}
