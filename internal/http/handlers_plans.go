package http

import (
	"io"
	"net/http"
	"strconv"

	"lifeplan/internal/core"
	"lifeplan/internal/log"
	"lifeplan/internal/plans"
)

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	list, err := s.plans.List(r.Context())
	if err != nil {
		s.writeError(w, r, err, log.OpList, nil)
		return
	}
	if list == nil {
		list = []core.PlanSummary{}
	}
	NewResponse().Data(list).Write(w)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if !decodeOrFail(w, r, &req) {
		return
	}
	start := core.MonthKeyOf(timeNow())
	if req.Start != "" {
		var err error
		if start, err = core.ParseMonthKey(req.Start); err != nil {
			UnprocessableEntityError(err.Error()).Write(w)
			return
		}
	}
	if req.Term == 0 {
		req.Term = 1
	}

	p, err := core.NewPlan(sanitizeInput(req.Name), start, req.Term)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	created, err := s.plans.Create(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err, log.OpCreate, nil)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Plan created",
		log.NewFields().WithPlan(created.ID, created.Name, created.Version).WithOperation(log.OpCreate).ToSlice()...)

	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/plans/"+created.ID).
		Data(created.Summary()).
		Success("Plan created.").
		Write(w)
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.plans.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err, log.OpDelete, nil)
		return
	}
	NewResponse().Success("Plan deleted.").Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ov, err := s.plans.Dashboard(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err, log.OpRead, nil)
		return
	}
	NewResponse().Data(ov).Write(w)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := s.plans.Overview(r.Context())
	if err != nil {
		s.writeError(w, r, err, log.OpList, nil)
		return
	}
	if ov == nil {
		ov = []core.PlanOverview{}
	}
	NewResponse().Data(ov).Write(w)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := plans.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, err, log.OpExport, nil)
		return
	}
	rc, filename, err := s.exports.Export(r.Context(), r.PathValue("id"), format)
	if err != nil {
		s.writeError(w, r, err, log.OpExport, nil)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	n, err := io.Copy(w, rc)
	if err != nil {
		// Status already sent.
		log.FromContext(r.Context()).WarnContext(r.Context(), "Export stream interrupted",
			log.FieldComponent, log.ComponentExport,
			log.FieldPlanID, r.PathValue("id"),
			"bytes", strconv.FormatInt(n, 10),
			log.FieldError, err)
	}
}
