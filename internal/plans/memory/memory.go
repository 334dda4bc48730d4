package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lifeplan/internal/core"
	"lifeplan/internal/plans"
)

// SeedFile is the name of the optional seed file read by NewFromFiles.
const SeedFile = "plans.json"

type Store struct {
	mu    sync.Mutex
	plans map[string]core.Plan
	now   func() time.Time
}

func New(seed ...core.Plan) *Store {
	s := &Store{plans: make(map[string]core.Plan, len(seed)), now: time.Now}
	for _, p := range seed {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Version == 0 {
			p.Version = 1
		}
		s.plans[p.ID] = p
	}
	return s
}

// NewFromFiles seeds the store from base/plans.json. A missing file yields an
// empty store; a malformed one is an error.
func NewFromFiles(base string) (*Store, error) {
	data, err := os.ReadFile(filepath.Join(base, SeedFile))
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var seed []core.Plan
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed %s: %w", SeedFile, err)
	}
	return New(seed...), nil
}

// GetPlan returns a copy of the stored plan.
func (s *Store) GetPlan(_ context.Context, id string) (core.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return core.Plan{}, fmt.Errorf("%w: %s", plans.ErrNotFound, id)
	}
	return clonePlan(p), nil
}

// ListPlans returns plans ordered by name.
func (s *Store) ListPlans(_ context.Context) ([]core.PlanSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.PlanSummary, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) CreatePlan(_ context.Context, p core.Plan) (core.Plan, error) {
	if err := p.Validate(); err != nil {
		return core.Plan{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := s.plans[p.ID]; exists {
		return core.Plan{}, fmt.Errorf("plan %s already exists", p.ID)
	}
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Version == 0 {
		p.Version = 1
	}
	s.plans[p.ID] = clonePlan(p)
	return p, nil
}

// SavePlan replaces the categories carried by req.
func (s *Store) SavePlan(_ context.Context, id string, req core.SaveRequest) (core.Plan, error) {
	if err := req.Validate(); err != nil {
		return core.Plan{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return core.Plan{}, fmt.Errorf("%w: %s", plans.ErrNotFound, id)
	}
	saved := core.ApplySave(p, req, s.now().UTC())
	s.plans[id] = saved
	return clonePlan(saved), nil
}

func (s *Store) DeletePlan(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[id]; !ok {
		return fmt.Errorf("%w: %s", plans.ErrNotFound, id)
	}
	delete(s.plans, id)
	return nil
}

func clonePlan(p core.Plan) core.Plan {
	p.Items = append([]core.PlanItem(nil), p.Items...)
	return p
}
