package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/labtrail/protocol-registry/pkg/document"
	"github.com/labtrail/protocol-registry/pkg/store"
)

// urlParamString returns a URL parameter with percent-encoding undone,
// since sample and plate labels may carry arbitrary characters.
func urlParamString(r *http.Request, param string) string {
	raw := chi.URLParam(r, param)
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

// sampleKeyFromURL assembles the composite key from the route
// parameters.
func sampleKeyFromURL(r *http.Request) (store.SampleKey, error) {
	runVersionID, err := parseID(r, "runVersionID")
	if err != nil {
		return store.SampleKey{}, err
	}
	protocolVersionID, err := parseID(r, "protocolVersionID")
	if err != nil {
		return store.SampleKey{}, err
	}
	return store.SampleKey{
		SampleID:          urlParamString(r, "sampleID"),
		PlateID:           urlParamString(r, "plateID"),
		RunVersionID:      runVersionID,
		ProtocolVersionID: protocolVersionID,
	}, nil
}

// sampleRunPath resolves the run resource path governing access to a
// sample; samples inherit their run's policies.
func (s *Server) sampleRunPath(sample *store.Sample) (string, error) {
	runID, err := s.samples.RunID(sample)
	if err != nil {
		return "", err
	}
	return runPath(runID), nil
}

func (s *Server) listSamples() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		samples, err := s.composer.Samples(parseFilters(r))
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		items := []document.Document{}
		for i := range samples {
			sample := &samples[i]
			path, err := s.sampleRunPath(sample)
			if err != nil {
				s.writeStoreError(w, err)
				return
			}
			if !s.checkAccess(r, path, http.MethodGet) {
				continue
			}
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

func (s *Server) getSample() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := sampleKeyFromURL(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sample, err := s.samples.Get(key)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if sample == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		path, err := s.sampleRunPath(sample)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if !s.checkAccess(r, path, http.MethodGet) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}

		var version *store.SampleVersion
		if raw := r.URL.Query().Get("version_id"); raw != "" {
			versionID, convErr := strconv.ParseInt(raw, 10, 64)
			if convErr != nil {
				writeError(w, http.StatusBadRequest, "invalid version_id")
				return
			}
			version, err = s.samples.GetVersion(key, versionID)
			if err == nil && version == nil {
				writeError(w, http.StatusNotFound, "not found")
				return
			}
		} else {
			version, err = s.samples.CurrentVersion(sample)
		}
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.samples.Render(sample, version))
	}
}

func (s *Server) updateSample() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := sampleKeyFromURL(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sample, err := s.samples.Get(key)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if sample == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		path, err := s.sampleRunPath(sample)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if !s.checkAccess(r, path, http.MethodPut) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		payload, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.ensureUser(r)
		updated, version, err := s.samples.Update(key, payload, actor(r), s.stamp(r))
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.samples.Render(updated, version))
	}
}
