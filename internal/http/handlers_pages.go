package http

import (
	"bytes"
	"net/http"

	"lifeplan/internal/core"
	"lifeplan/internal/log"
	"lifeplan/internal/settings"
)

type indexPage struct {
	Title    string
	Settings settings.Settings
	Plans    []core.PlanSummary
	Overview []core.PlanOverview
	Error    string
}

type planPage struct {
	Title    string
	Settings settings.Settings
	Plan     core.PlanSummary
	Table    core.TableView
	Overview core.PlanOverview
}

// pageSettings falls back to defaults so a broken settings store never blocks
// rendering.
func (s *Server) pageSettings(r *http.Request) settings.Settings {
	cur, err := s.settings.GetSettings(r.Context())
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Settings unavailable, using defaults", log.FieldError, err)
		return settings.Default()
	}
	return cur
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexPage{Settings: s.pageSettings(r)}
	list, err := s.plans.List(r.Context())
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Plan list error", log.FieldError, err)
		_, _, data.Error = classify(err)
	}
	data.Plans = list
	if err == nil {
		if data.Overview, err = s.plans.Overview(r.Context()); err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Overview error", log.FieldError, err)
		}
	}
	s.render(w, r, "index.html", data)
}

func (s *Server) handlePlanPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.plans.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		status, _, msg := classify(err)
		http.Error(w, msg, status)
		return
	}
	t := core.BuildTable(p)
	s.render(w, r, "plan.html", planPage{
		Title:    p.Name,
		Settings: s.pageSettings(r),
		Plan:     p.Summary(),
		Table:    t.View(),
		Overview: core.Summarize(p, t),
	})
}

// render executes into a buffer so a template error never leaves a half page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldComponent, log.ComponentTemplate, log.FieldError, err, "template", name)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
