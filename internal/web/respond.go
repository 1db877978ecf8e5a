package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vbonduro/pantrysync/internal/domain"
	"github.com/vbonduro/pantrysync/internal/inference"
)

type errorBody struct {
	Error    string `json:"error"`
	Attempts int    `json:"attempts,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg}, s.logger)
}

// writeError maps domain errors to status codes. Unexpected errors are
// logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		dup       *domain.DuplicateNameError
		exhausted *inference.ExhaustedError
	)
	switch {
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, errorBody{Error: dup.Error()}, s.logger)
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"}, s.logger)
	case errors.Is(err, domain.ErrInvalidCollection), errors.Is(err, domain.ErrNameRequired):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()}, s.logger)
	case errors.As(err, &exhausted):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error(), Attempts: exhausted.Attempts}, s.logger)
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"}, s.logger)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONSize))
	return dec.Decode(v)
}
