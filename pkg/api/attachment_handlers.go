package api

import (
	"io"
	"net/http"
)

// uploadAttachment stores the request body as a blob linked to the
// run's current version. The file name comes from ?name and the MIME
// type from the Content-Type header.
func (s *Server) uploadAttachment() http.HandlerFunc {
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
		run, err := s.runs.Get(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if run == nil || run.CurrentVersionID == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable request body")
			return
		}
		s.ensureUser(r)
		attachment, err := s.attachments.Create(*run.CurrentVersionID, name, r.Header.Get("Content-Type"), data, actor(r))
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":   attachment.ID,
			"name": attachment.Name,
		})
	}
}

// listAttachments returns the metadata of the attachments linked to
// the run's current version, without blob data.
func (s *Server) listAttachments() http.HandlerFunc {
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
		attachments, err := s.attachments.ListByRunVersion(*run.CurrentVersionID)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		items := make([]map[string]any, 0, len(attachments))
		for _, attachment := range attachments {
			items = append(items, map[string]any{
				"id":         attachment.ID,
				"name":       attachment.Name,
				"mimetype":   attachment.MimeType,
				"created_on": attachment.CreatedOn,
				"created_by": attachment.CreatedBy,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"attachments": items})
	}
}

// attachmentRunPath resolves the run resource path governing access to
// an attachment; attachments inherit their run's policies the same way
// samples do.
func (s *Server) attachmentRunPath(attachmentID int64) (string, error) {
	runID, err := s.attachments.RunID(attachmentID)
	if err != nil {
		return "", err
	}
	return runPath(runID), nil
}

// downloadAttachment streams a stored blob back with its original MIME
// type.
func (s *Server) downloadAttachment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		attachment, err := s.attachments.Get(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if attachment == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		path, err := s.attachmentRunPath(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if !s.checkAccess(r, path, http.MethodGet) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		if attachment.MimeType != "" {
			w.Header().Set("Content-Type", attachment.MimeType)
		} else {
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(attachment.Data)
	}
}

// deleteAttachment soft-deletes an attachment blob.
func (s *Server) deleteAttachment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		attachment, err := s.attachments.Get(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if attachment == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		path, err := s.attachmentRunPath(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if !s.checkAccess(r, path, http.MethodPut) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		if err := s.attachments.Delete(id); err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id})
	}
}
