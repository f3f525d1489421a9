//go:build postgres_integration

package store

import (
	"os"
	"testing"

	"loadplan/internal/model"
)

func TestPostgresPlanRoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	if err := p.Ping(t.Context()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.MigrateDir("../../db/migrations"); err != nil {
		t.Fatalf("MigrateDir: %v", err)
	}

	created, err := p.CreatePlan(t.Context(), model.Plan{
		TenantID: "t_itest",
		Strategy: "simple",
		Request: model.OptimizeRequest{
			Items: []model.Item{{ID: "BOX", Length: 10, Width: 10, Height: 10, Weight: 1, Quantity: 1}},
			Truck: &model.TruckSpec{ID: "t", Length: 100, Width: 100, Height: 100, MaxPayload: 100},
		},
	})
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if err := p.SetPlanRunning(t.Context(), "t_itest", created.ID); err != nil {
		t.Fatalf("SetPlanRunning: %v", err)
	}
	if err := p.CompletePlan(t.Context(), "t_itest", created.ID, model.PlanResult{Strategy: "simple"}); err != nil {
		t.Fatalf("CompletePlan: %v", err)
	}
	got, err := p.GetPlan(t.Context(), "t_itest", created.ID)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if got.Status != model.PlanCompleted || got.Result == nil {
		t.Fatalf("round trip: %+v", got)
	}
}
