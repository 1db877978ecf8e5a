package web

import (
	"errors"
	"net/http"

	"github.com/vbonduro/pantrysync/internal/reconcile"
)

type reconcileFailure struct {
	Report *reconcile.Report `json:"report"`
	Error  string            `json:"error"`
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	report, err := s.sync.Reconcile(r.Context(), owner)
	if errors.Is(err, reconcile.ErrRemoteUnavailable) {
		s.logger.Warn("reconcile could not reach remote store", "owner_id", owner, "error", err)
		writeJSON(w, http.StatusBadGateway, reconcileFailure{Report: report, Error: err.Error()}, s.logger)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report, s.logger)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	pending, err := s.sync.Pending(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner_id": owner, "pending": pending}, s.logger)
}
