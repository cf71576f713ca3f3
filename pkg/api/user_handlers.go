package api

import (
	"net/http"

	"github.com/labtrail/protocol-registry/pkg/document"
)

func userPath(id string) string {
	return "/user/" + id
}

// canAccessUser allows callers to work on their own record and defers
// to the policy store for everyone else's.
func (s *Server) canAccessUser(r *http.Request, id, method string) bool {
	if actor(r) == id {
		return true
	}
	return s.checkAccess(r, userPath(id), method)
}

func (s *Server) createUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		id, _ := payload["id"].(string)
		if id == "" {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}
		delete(payload, "id")

		existing, err := s.users.Get(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if existing != nil {
			writeError(w, http.StatusBadRequest, "user already exists")
			return
		}
		user, version, err := s.users.Create(id, payload, actor(r), s.stamp(r))
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, s.users.Render(user, version))
	}
}

func (s *Server) listUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := s.users.List()
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		items := []document.Document{}
		for i := range users {
			user := &users[i]
			if !s.canAccessUser(r, user.ID, http.MethodGet) {
				continue
			}
			version, err := s.users.CurrentVersion(user)
			if err != nil {
				s.writeStoreError(w, err)
				return
			}
			items = append(items, s.users.Render(user, version))
		}
		writeJSON(w, http.StatusOK, paginate(items, "users", parsePageParams(r)))
	}
}

func (s *Server) getUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := urlParamString(r, "id")
		if !s.canAccessUser(r, id, http.MethodGet) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		user, err := s.users.Get(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if user == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		version, err := s.users.CurrentVersion(user)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.users.Render(user, version))
	}
}

func (s *Server) updateUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := urlParamString(r, "id")
		if !s.canAccessUser(r, id, http.MethodPut) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		payload, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		user, version, err := s.users.Update(id, payload, actor(r), s.stamp(r))
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.users.Render(user, version))
	}
}
