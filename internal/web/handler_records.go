package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vbonduro/pantrysync/internal/domain"
	"github.com/vbonduro/pantrysync/internal/service"
)

const (
	maxJSONSize    = 1 << 20
	maxNameLen     = 200
	formFieldsName = "fields"
)

type recordInput struct {
	Name   *string        `json:"name"`
	Fields map[string]any `json:"fields"`
}

func (s *Server) collection(w http.ResponseWriter, r *http.Request) (domain.Collection, bool) {
	c, ok := domain.ParseCollection(r.PathValue("collection"))
	if !ok {
		s.badRequest(w, "unknown collection")
		return "", false
	}
	return c, true
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	collection, ok := s.collection(w, r)
	if !ok {
		return
	}

	var in service.CreateInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		photo, ok := s.readOptionalImage(w, r)
		if !ok {
			return
		}
		in.Name = r.FormValue("name")
		in.Photo = photo
		if raw := r.FormValue(formFieldsName); raw != "" {
			if err := json.Unmarshal([]byte(raw), &in.Fields); err != nil {
				s.badRequest(w, "fields must be a JSON object")
				return
			}
		}
	} else {
		var body recordInput
		if err := decodeJSON(w, r, &body); err != nil {
			s.badRequest(w, "invalid JSON body")
			return
		}
		if body.Name != nil {
			in.Name = *body.Name
		}
		in.Fields = body.Fields
	}

	if len(in.Name) > maxNameLen {
		s.badRequest(w, "name too long")
		return
	}

	rec, err := s.records.CreateRecord(r.Context(), owner, collection, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec, s.logger)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	collection, ok := s.collection(w, r)
	if !ok {
		return
	}
	recs, err := s.records.ListRecords(r.Context(), r.PathValue("owner"), collection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*domain.Record{}
	}
	writeJSON(w, http.StatusOK, recs, s.logger)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	collection, ok := s.collection(w, r)
	if !ok {
		return
	}
	rec, err := s.records.GetRecord(r.Context(), r.PathValue("owner"), collection, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec, s.logger)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	collection, ok := s.collection(w, r)
	if !ok {
		return
	}
	patch, ok := s.readPatch(w, r)
	if !ok {
		return
	}
	rec, err := s.records.UpdateRecord(r.Context(), r.PathValue("owner"), collection, r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec, s.logger)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	collection, ok := s.collection(w, r)
	if !ok {
		return
	}
	if err := s.records.DeleteRecord(r.Context(), r.PathValue("owner"), collection, r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.records.GetProfile(r.Context(), r.PathValue("owner"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec, s.logger)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	patch, ok := s.readPatch(w, r)
	if !ok {
		return
	}
	rec, err := s.records.UpdateProfile(r.Context(), r.PathValue("owner"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec, s.logger)
}

func (s *Server) readPatch(w http.ResponseWriter, r *http.Request) (domain.RecordPatch, bool) {
	var body recordInput
	if err := decodeJSON(w, r, &body); err != nil {
		s.badRequest(w, "invalid JSON body")
		return domain.RecordPatch{}, false
	}
	if body.Name != nil && len(*body.Name) > maxNameLen {
		s.badRequest(w, "name too long")
		return domain.RecordPatch{}, false
	}
	return domain.RecordPatch{Name: body.Name, Fields: body.Fields}, true
}
