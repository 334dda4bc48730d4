package http

import (
	"errors"
	"net/http"

	"lifeplan/internal/core"
	"lifeplan/internal/log"
	"lifeplan/internal/services"
)

// sessionResult writes the state of a session after an edit. Failed edits
// still carry the unchanged view.
func (s *Server) sessionResult(w http.ResponseWriter, r *http.Request, v services.SessionView, err error, op string) {
	if err != nil {
		var data any
		if v.ID != "" {
			data = v
		}
		s.writeError(w, r, err, op, data)
		return
	}
	NewResponse().Data(v).Write(w)
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	v, err := s.sessions.Open(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err, log.OpRead, nil)
		return
	}
	NewResponse().Status(http.StatusCreated).Data(v).Write(w)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	v, err := s.sessions.Get(r.Context(), r.PathValue("sid"))
	s.sessionResult(w, r, v, err, log.OpRead)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.Close(r.Context(), r.PathValue("sid"))
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	ref, err := req.ref()
	if err != nil {
		s.writeError(w, r, err, log.OpEdit, nil)
		return
	}
	v, err := s.sessions.Select(r.Context(), r.PathValue("sid"), ref)
	s.sessionResult(w, r, v, err, log.OpEdit)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	v, err := s.sessions.Commit(r.Context(), r.PathValue("sid"), sanitizeInput(req.Value))
	s.sessionResult(w, r, v, err, log.OpEdit)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	v, err := s.sessions.Cancel(r.Context(), r.PathValue("sid"))
	s.sessionResult(w, r, v, err, log.OpEdit)
}

func (s *Server) handleSetCell(w http.ResponseWriter, r *http.Request) {
	var req setCellRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	c, err := core.ParseCategory(req.Category)
	if err != nil {
		s.writeError(w, r, err, log.OpEdit, nil)
		return
	}
	date, err := core.ParseMonthKey(req.Date)
	if err != nil {
		s.writeError(w, r, err, log.OpEdit, nil)
		return
	}
	sid := r.PathValue("sid")
	v, err := s.sessions.SetValue(r.Context(), sid, c, req.Row, date, sanitizeInput(req.Value))
	if errors.Is(err, core.ErrCeilingExceeded) {
		log.FromContext(r.Context()).InfoContext(r.Context(), "Investment rejected by reserve ceiling",
			log.NewFields().WithSession(sid).WithCell(string(c), req.Row, string(date)).ToSlice()...)
	}
	s.sessionResult(w, r, v, err, log.OpEdit)
}

func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	var req addRowRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	c, err := core.ParseCategory(req.Category)
	if err != nil {
		s.writeError(w, r, err, log.OpEdit, nil)
		return
	}
	v, id, err := s.sessions.AddRow(r.Context(), r.PathValue("sid"), c, sanitizeInput(req.Name))
	if err != nil {
		s.sessionResult(w, r, v, err, log.OpEdit)
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		Data(struct {
			services.SessionView
			RowID int `json:"row_id"`
		}{v, id}).
		Write(w)
}

func (s *Server) handleRemoveRow(w http.ResponseWriter, r *http.Request) {
	c, row, err := rowPath(r)
	if err != nil {
		s.writeError(w, r, err, log.OpEdit, nil)
		return
	}
	v, err := s.sessions.RemoveRow(r.Context(), r.PathValue("sid"), c, row)
	s.sessionResult(w, r, v, err, log.OpEdit)
}

func (s *Server) handleRenameRow(w http.ResponseWriter, r *http.Request) {
	c, row, err := rowPath(r)
	if err != nil {
		s.writeError(w, r, err, log.OpEdit, nil)
		return
	}
	var req renameRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	v, err := s.sessions.Rename(r.Context(), r.PathValue("sid"), c, row, sanitizeInput(req.Name))
	s.sessionResult(w, r, v, err, log.OpEdit)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	v, err := s.sessions.Save(r.Context(), sid)
	switch {
	case errors.Is(err, core.ErrNothingToSave):
		NewResponse().Data(v).Notify(NotificationInfo, "No changes to save.").Write(w)
	case err != nil:
		s.sessionResult(w, r, v, err, log.OpSave)
	default:
		log.NewStructuredLogger(log.FromContext(r.Context())).LogPlanSaved(r.Context(), sid, v.PlanID, v.PlanName, v.Version)
		NewResponse().Data(v).Success("Plan saved.").Write(w)
	}
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	v, err := s.sessions.Discard(r.Context(), r.PathValue("sid"))
	if err != nil {
		s.sessionResult(w, r, v, err, log.OpEdit)
		return
	}
	NewResponse().Data(v).Notify(NotificationInfo, "Changes discarded.").Write(w)
}
