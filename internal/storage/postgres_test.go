package storage

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"lifeplan/internal/core"
	"lifeplan/internal/plans"
)

// Requires a disposable PostgreSQL database.
func TestIntegration_PostgresRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	url := os.Getenv("LIFEPLAN_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LIFEPLAN_TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	repo, err := NewPostgresRepository(ctx, url)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer repo.Close()

	created, err := repo.CreatePlan(ctx, core.Plan{Name: "pg", TermYears: 1, Items: []core.PlanItem{
		{Category: core.Income, Name: "Salary", Value: decimal.RequireFromString("12.5"), Date: "2024-01-01"},
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer repo.DeletePlan(ctx, created.ID)

	saved, err := repo.SavePlan(ctx, created.ID, core.SaveRequest{
		core.Costs: {Items: []core.PlanItem{{Category: core.Costs, Name: "Rent", Value: decimal.NewFromInt(3), Date: "2024-01-01"}}},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Version != 2 || len(saved.Items) != 2 {
		t.Fatalf("unexpected saved plan %+v", saved)
	}
	if !saved.Items[0].Value.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("amount not preserved: %s", saved.Items[0].Value)
	}

	if _, err := repo.GetPlan(ctx, "missing"); !errors.Is(err, plans.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
