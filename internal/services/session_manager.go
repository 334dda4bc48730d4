package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"lifeplan/internal/cache"
	"lifeplan/internal/core"
)

var ErrSessionNotFound = errors.New("editing session not found")

// SessionView is the client-facing state of an editing session.
type SessionView struct {
	ID        string         `json:"id"`
	PlanID    string         `json:"plan_id"`
	PlanName  string         `json:"plan_name"`
	Version   int64          `json:"version"`
	Dirty     bool           `json:"dirty"`
	Active    *core.CellRef  `json:"active,omitempty"`
	CellState core.CellState `json:"cell_state,omitempty"`
	Table     core.TableView `json:"table"`
}

// session is a server-held editor. mu serializes every mutation.
type session struct {
	id     string
	mu     sync.Mutex
	editor *core.Editor
}

func (s *session) view() SessionView {
	p := s.editor.Plan()
	v := SessionView{
		ID:       s.id,
		PlanID:   p.ID,
		PlanName: p.Name,
		Version:  p.Version,
		Dirty:    s.editor.Dirty(),
		Table:    s.editor.Snapshot().View(),
	}
	if ref, ok := s.editor.Active(); ok {
		v.Active = &ref
		v.CellState = s.editor.State(ref)
	}
	return v
}

// SessionManager keeps one editor per open plan view. Idle sessions expire.
type SessionManager struct {
	plans    *PlanService
	sessions *cache.LRUCache[*session]
}

func NewSessionManager(plans *PlanService, maxSessions int, ttl time.Duration) *SessionManager {
	return &SessionManager{
		plans:    plans,
		sessions: cache.NewLRUCache[*session](maxSessions, ttl),
	}
}

// Cleaner exposes the session store to a cache.Manager.
func (m *SessionManager) Cleaner() cache.Cleaner { return m.sessions }

// Active returns the number of live sessions.
func (m *SessionManager) Active() int { return m.sessions.Size() }

// Open loads the plan and starts a session over its table.
func (m *SessionManager) Open(ctx context.Context, planID string) (SessionView, error) {
	p, err := m.plans.Get(ctx, planID)
	if err != nil {
		return SessionView{}, err
	}
	s := &session{id: uuid.NewString(), editor: core.NewEditor(p)}
	m.sessions.Set(ctx, s.id, s)
	slog.DebugContext(ctx, "Editing session opened", "session_id", s.id, "plan_id", planID)
	return s.view(), nil
}

// Close ends a session without saving.
func (m *SessionManager) Close(ctx context.Context, sid string) {
	m.sessions.Delete(ctx, sid)
}

func (m *SessionManager) Get(ctx context.Context, sid string) (SessionView, error) {
	return m.with(ctx, sid, func(*core.Editor) error { return nil })
}

func (m *SessionManager) Select(ctx context.Context, sid string, ref core.CellRef) (SessionView, error) {
	return m.with(ctx, sid, func(e *core.Editor) error { return e.Select(ref) })
}

func (m *SessionManager) Commit(ctx context.Context, sid, raw string) (SessionView, error) {
	return m.with(ctx, sid, func(e *core.Editor) error { return e.Commit(raw) })
}

func (m *SessionManager) Cancel(ctx context.Context, sid string) (SessionView, error) {
	return m.with(ctx, sid, func(e *core.Editor) error {
		e.Cancel()
		return nil
	})
}

func (m *SessionManager) SetValue(ctx context.Context, sid string, c core.Category, row int, date core.MonthKey, raw string) (SessionView, error) {
	return m.with(ctx, sid, func(e *core.Editor) error { return e.SetValue(c, row, date, raw) })
}

func (m *SessionManager) Rename(ctx context.Context, sid string, c core.Category, row int, name string) (SessionView, error) {
	return m.with(ctx, sid, func(e *core.Editor) error { return e.Rename(c, row, name) })
}

// AddRow returns the new row id along with the session state.
func (m *SessionManager) AddRow(ctx context.Context, sid string, c core.Category, name string) (SessionView, int, error) {
	var id int
	v, err := m.with(ctx, sid, func(e *core.Editor) error {
		var err error
		id, err = e.AddRow(c, name)
		return err
	})
	return v, id, err
}

func (m *SessionManager) RemoveRow(ctx context.Context, sid string, c core.Category, row int) (SessionView, error) {
	return m.with(ctx, sid, func(e *core.Editor) error { return e.RemoveRow(c, row) })
}

func (m *SessionManager) Discard(ctx context.Context, sid string) (SessionView, error) {
	return m.with(ctx, sid, func(e *core.Editor) error {
		e.Discard()
		return nil
	})
}

// Save sends the session's edits to the plan backend. On failure the table
// and its dirty flag are left as they were.
func (m *SessionManager) Save(ctx context.Context, sid string) (SessionView, error) {
	return m.with(ctx, sid, func(e *core.Editor) error {
		req, err := e.SavePayload()
		if err != nil {
			return err
		}
		saved, err := m.plans.Save(ctx, e.Plan().ID, req)
		if err != nil {
			return err
		}
		e.MarkSaved(saved)
		return nil
	})
}

// with runs fn under the session lock. The returned view reflects the state
// after fn, also when fn fails.
func (m *SessionManager) with(ctx context.Context, sid string, fn func(*core.Editor) error) (SessionView, error) {
	s, ok := m.sessions.Get(ctx, sid)
	if !ok {
		return SessionView{}, ErrSessionNotFound
	}
	m.sessions.Touch(sid)

	s.mu.Lock()
	defer s.mu.Unlock()
	err := fn(s.editor)
	return s.view(), err
}
