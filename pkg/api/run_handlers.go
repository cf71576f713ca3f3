package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labtrail/protocol-registry/pkg/document"
	"github.com/labtrail/protocol-registry/pkg/projection"
	"github.com/labtrail/protocol-registry/pkg/store"
)

func runPath(id int64) string {
	return fmt.Sprintf("/run/%d", id)
}

func (s *Server) migratedRunVersion(version *store.RunVersion) *store.RunVersion {
	if version == nil {
		return nil
	}
	doc := document.Document(version.Data)
	if document.MigrateLegacyFormats(doc) {
		version.Data = store.JSONDocument(doc)
		if err := s.runs.SaveMigrated(version); err != nil {
			s.logger.Error("persist migrated run version failed", "version", version.ID, "error", err)
		}
	}
	return version
}

// projectSamples recomputes the flat sample table for one run version
// and merges the rows in by composite key. Projection failures are
// logged, not surfaced: the run write already committed.
func (s *Server) projectSamples(r *http.Request, run *store.Run, version *store.RunVersion) {
	protocolVersion, err := s.protocols.VersionByID(run.ProtocolVersionID)
	if err != nil || protocolVersion == nil {
		s.logger.Error("projection: protocol version unavailable", "run", run.ID, "error", err)
		return
	}
	samples, err := projection.SamplesForRun(
		document.Document(version.Data),
		document.Document(protocolVersion.Data),
		version.ID,
		run.ProtocolVersionID,
	)
	if err != nil {
		s.logger.Error("projection failed", "run", run.ID, "error", err)
		return
	}
	for _, sample := range samples {
		key := store.SampleKey{
			SampleID:          sample.SampleID,
			PlateID:           sample.PlateID,
			RunVersionID:      sample.RunVersionID,
			ProtocolVersionID: sample.ProtocolVersionID,
		}
		if _, _, err := s.samples.Upsert(key, sample.Data, actor(r), s.stamp(r)); err != nil {
			s.logger.Error("sample upsert failed", "key", sample.Key(), "error", err)
		}
	}
}

func (s *Server) createRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		protocolVersionID, ok := payloadInt64(payload, "protocolVersionId")
		if !ok {
			writeError(w, http.StatusBadRequest, "protocolVersionId is required")
			return
		}
		delete(payload, "protocolVersionId")

		s.ensureUser(r)
		run, version, err := s.runs.Create(protocolVersionID, payload, actor(r), s.stamp(r))
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.grantOwner(r, runPath(run.ID))
		s.projectSamples(r, run, version)
		writeJSON(w, http.StatusCreated, s.runs.Render(run, version, true))
	}
}

// payloadInt64 pulls an integer field out of a decoded JSON body, where
// numbers arrive as float64.
func payloadInt64(payload map[string]any, key string) (int64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

func (s *Server) listRuns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := s.composer.Runs(parseFilters(r))
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		items := []document.Document{}
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
			items = append(items, s.runs.Render(run, s.migratedRunVersion(version), false))
		}
		writeJSON(w, http.StatusOK, paginate(items, "runs", parsePageParams(r)))
	}
}

func (s *Server) getRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !s.checkAccess(r, runPath(id), http.MethodGet) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		run, err := s.runs.Get(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if run == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		var version *store.RunVersion
		if raw := r.URL.Query().Get("version_id"); raw != "" {
			versionID, convErr := strconv.ParseInt(raw, 10, 64)
			if convErr != nil {
				writeError(w, http.StatusBadRequest, "invalid version_id")
				return
			}
			version, err = s.runs.GetVersion(id, versionID)
			if err == nil && version == nil {
				writeError(w, http.StatusNotFound, "not found")
				return
			}
		} else {
			version, err = s.runs.CurrentVersion(run)
		}
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		rendered := s.runs.Render(run, s.migratedRunVersion(version), true)
		rendered["protocolVersionId"] = run.ProtocolVersionID
		writeJSON(w, http.StatusOK, rendered)
	}
}

func (s *Server) updateRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !s.checkAccess(r, runPath(id), http.MethodPut) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		payload, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		delete(payload, "protocolVersionId")

		s.ensureUser(r)
		run, version, err := s.runs.Update(id, payload, actor(r), s.stamp(r))
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.projectSamples(r, run, version)
		writeJSON(w, http.StatusOK, s.runs.Render(run, version, true))
	}
}

func (s *Server) deleteRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !s.checkAccess(r, runPath(id), http.MethodDelete) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		purge := r.URL.Query().Get("purge") == "true"
		if err := s.runs.Delete(id, purge); err != nil {
			s.writeStoreError(w, err)
			return
		}
		if purge {
			if err := s.enforcer.DeletePolicies(r.Context(), "", runPath(id)+"*", ""); err != nil {
				s.logger.Error("policy cleanup failed", "run", id, "error", err)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "purged": purge})
	}
}

func (s *Server) runHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !s.checkAccess(r, runPath(id), http.MethodGet) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		run, err := s.runs.Get(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if run == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		versions, err := s.runs.History(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		items := make([]document.Document, 0, len(versions))
		for i := range versions {
			items = append(items, s.runs.Render(run, s.migratedRunVersion(&versions[i]), false))
		}
		writeJSON(w, http.StatusOK, paginate(items, "versions", parsePageParams(r)))
	}
}

// listRunSamples returns the samples projected from the run's current
// version.
func (s *Server) listRunSamples() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !s.checkAccess(r, runPath(id), http.MethodGet) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		run, err := s.runs.Get(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if run == nil || run.CurrentVersionID == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		samples, err := s.samples.ListByRunVersion(*run.CurrentVersionID, false)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		items := make([]document.Document, 0, len(samples))
		for i := range samples {
			sample := &samples[i]
			version, err := s.samples.CurrentVersion(sample)
			if err != nil {
				s.writeStoreError(w, err)
				return
			}
			items = append(items, s.samples.Render(sample, version))
		}
		writeJSON(w, http.StatusOK, paginate(items, "samples", parsePageParams(r)))
	}
}

// getRunSample returns one projected sample of the run's current
// version by sample label.
func (s *Server) getRunSample() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !s.checkAccess(r, runPath(id), http.MethodGet) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		run, err := s.runs.Get(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if run == nil || run.CurrentVersionID == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		sampleID := urlParamString(r, "sampleID")
		samples, err := s.samples.ListByRunVersion(*run.CurrentVersionID, false)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		items := []document.Document{}
		for i := range samples {
			sample := &samples[i]
			if sample.SampleID != sampleID {
				continue
			}
			version, err := s.samples.CurrentVersion(sample)
			if err != nil {
				s.writeStoreError(w, err)
				return
			}
			items = append(items, s.samples.Render(sample, version))
		}
		if len(items) == 0 {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"samples": items})
	}
}
