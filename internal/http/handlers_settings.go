package http

import (
	"net/http"
	"strings"

	"lifeplan/internal/log"
	"lifeplan/internal/settings"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cur, err := s.settings.GetSettings(r.Context())
	if err != nil {
		s.writeError(w, r, err, log.OpRead, nil)
		return
	}
	NewResponse().Data(cur).Write(w)
}

// handlePutSettings updates the fields present in the body.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	cur, err := s.settings.GetSettings(r.Context())
	if err != nil {
		s.writeError(w, r, err, log.OpRead, nil)
		return
	}
	if req.Theme != "" {
		theme, err := settings.ParseTheme(req.Theme)
		if err != nil {
			s.writeError(w, r, err, log.OpUpdate, nil)
			return
		}
		cur.Theme = theme
	}
	if locale := strings.TrimSpace(req.Locale); locale != "" {
		cur.Locale = locale
	}
	if err := cur.Validate(); err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	if err := s.settings.SaveSettings(r.Context(), cur); err != nil {
		s.writeError(w, r, err, log.OpUpdate, nil)
		return
	}
	NewResponse().Data(cur).Success("Settings saved.").Write(w)
}

func (s *Server) handleToggleTheme(w http.ResponseWriter, r *http.Request) {
	cur, err := s.settings.GetSettings(r.Context())
	if err != nil {
		s.writeError(w, r, err, log.OpRead, nil)
		return
	}
	cur.Theme = cur.Theme.Toggle()
	if err := s.settings.SaveSettings(r.Context(), cur); err != nil {
		s.writeError(w, r, err, log.OpUpdate, nil)
		return
	}
	NewResponse().Data(cur).Write(w)
}
