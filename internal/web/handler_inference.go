package web

import (
	"net/http"
	"strings"
)

type rewriteRequest struct {
	Text   string   `json:"text"`
	Models []string `json:"models"`
}

type rewriteResponse struct {
	Text string `json:"text"`
}

// handleLabel accepts a multipart "image" and an optional comma-separated
// "models" override of the configured vision candidates.
func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	photo, ok := s.readImage(w, r)
	if !ok {
		return
	}
	candidates := s.candidates.Vision
	if override := splitModels(r.FormValue("models")); len(override) > 0 {
		candidates = override
	}

	result, err := s.inference.Label(r.Context(), photo.Data, photo.MimeType, candidates, s.candidates.MaxAttempts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, result, s.logger)
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	var req rewriteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		s.badRequest(w, "text is required")
		return
	}
	candidates := s.candidates.Text
	if len(req.Models) > 0 {
		candidates = req.Models
	}

	text, err := s.inference.Rewrite(r.Context(), req.Text, candidates, s.candidates.MaxAttempts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if text == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rewriteResponse{Text: text}, s.logger)
}

func splitModels(raw string) []string {
	var out []string
	for _, m := range strings.Split(raw, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}
