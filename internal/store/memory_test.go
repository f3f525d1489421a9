package store

import (
	"context"
	"testing"
	"time"

	"loadplan/internal/model"
)

func testPlan(tenant string) model.Plan {
	return model.Plan{
		TenantID: tenant,
		Strategy: "genetic",
		Request: model.OptimizeRequest{
			Items:    []model.Item{{ID: "BOX", Length: 10, Width: 10, Height: 10, Weight: 5, Quantity: 1}},
			Truck:    &model.TruckSpec{ID: "t", Length: 100, Width: 100, Height: 100, MaxPayload: 1000},
			Strategy: "genetic",
		},
	}
}

func TestMemoryPlanLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	created, err := m.CreatePlan(ctx, testPlan("t_demo"))
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if created.ID == "" || created.Status != model.PlanQueued || created.CreatedAt == "" {
		t.Fatalf("unexpected created plan: %+v", created)
	}

	got, err := m.GetPlan(ctx, "t_demo", created.ID)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if got.Request.Items[0].ID != "BOX" {
		t.Fatalf("request not preserved: %+v", got.Request)
	}

	if err := m.SetPlanRunning(ctx, "t_demo", created.ID); err != nil {
		t.Fatalf("SetPlanRunning: %v", err)
	}
	res := model.PlanResult{Strategy: "genetic", ElapsedMs: 12}
	if err := m.CompletePlan(ctx, "t_demo", created.ID, res); err != nil {
		t.Fatalf("CompletePlan: %v", err)
	}
	got, _ = m.GetPlan(ctx, "t_demo", created.ID)
	if got.Status != model.PlanCompleted || got.Result == nil || got.FinishedAt == "" {
		t.Fatalf("completed plan wrong: %+v", got)
	}

	// Terminal plans reject further transitions.
	if err := m.CancelPlan(ctx, "t_demo", created.ID); err != ErrNotFound {
		t.Fatalf("cancel after completion: want ErrNotFound, got %v", err)
	}
}

func TestMemoryCancelWhileQueuedBlocksRun(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	p, _ := m.CreatePlan(ctx, testPlan("t_demo"))
	if err := m.CancelPlan(ctx, "t_demo", p.ID); err != nil {
		t.Fatalf("CancelPlan: %v", err)
	}
	if err := m.SetPlanRunning(ctx, "t_demo", p.ID); err != ErrNotFound {
		t.Fatalf("run after cancel: want ErrNotFound, got %v", err)
	}
	got, _ := m.GetPlan(ctx, "t_demo", p.ID)
	if got.Status != model.PlanCanceled {
		t.Fatalf("want canceled, got %s", got.Status)
	}
}

func TestMemoryGetPlanWrongTenant(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	p, _ := m.CreatePlan(ctx, testPlan("t_a"))
	if _, err := m.GetPlan(ctx, "t_b", p.ID); err != ErrNotFound {
		t.Fatalf("cross-tenant read: want ErrNotFound, got %v", err)
	}
}

func TestMemoryListPlansCursorAndFilter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	var ids []string
	for i := 0; i < 5; i++ {
		p, _ := m.CreatePlan(ctx, testPlan("t_demo"))
		ids = append(ids, p.ID)
	}
	_ = m.CancelPlan(ctx, "t_demo", ids[2])

	page1, next, err := m.ListPlans(ctx, "t_demo", "", "", 2)
	if err != nil {
		t.Fatalf("ListPlans: %v", err)
	}
	if len(page1) != 2 || next == "" {
		t.Fatalf("page1: %d items, next=%q", len(page1), next)
	}
	page2, _, err := m.ListPlans(ctx, "t_demo", "", next, 10)
	if err != nil {
		t.Fatalf("ListPlans page2: %v", err)
	}
	if len(page1)+len(page2) != 5 {
		t.Fatalf("pages cover %d plans, want 5", len(page1)+len(page2))
	}

	canceled, _, _ := m.ListPlans(ctx, "t_demo", model.PlanCanceled, "", 10)
	if len(canceled) != 1 || canceled[0].ID != ids[2] {
		t.Fatalf("status filter: %+v", canceled)
	}
}

func TestMemorySubscriptions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t_demo", URL: "https://example.com/hook", Events: []string{"plan.completed", "plan.failed"}, Secret: "sh"})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	hit, _ := m.GetSubscriptionsForEvent(ctx, "t_demo", "plan.completed")
	if len(hit) != 1 || hit[0].ID != s.ID {
		t.Fatalf("event match: %+v", hit)
	}
	miss, _ := m.GetSubscriptionsForEvent(ctx, "t_demo", "plan.canceled")
	if len(miss) != 0 {
		t.Fatalf("want no match for unsubscribed event, got %+v", miss)
	}
	if err := m.DeleteSubscription(ctx, "t_demo", s.ID); err != nil {
		t.Fatalf("DeleteSubscription: %v", err)
	}
	if err := m.DeleteSubscription(ctx, "t_demo", s.ID); err != ErrNotFound {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
	left, _, _ := m.ListSubscriptions(ctx, "t_demo", "", 10)
	if len(left) != 0 {
		t.Fatalf("want empty after delete, got %+v", left)
	}
}

func TestMemoryDeliveryQueue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, err := m.EnqueueDelivery(ctx, "t_demo", "sub1", "plan.completed", "https://example.com/hook", "sh", []byte(`{"id":"evt1"}`))
	if err != nil {
		t.Fatalf("EnqueueDelivery: %v", err)
	}

	due, _ := m.PendingDeliveries(ctx, 10)
	if len(due) != 1 || due[0].ID != id {
		t.Fatalf("due: %+v", due)
	}

	// Failed attempt schedules a retry in the future.
	later := time.Now().Add(time.Hour)
	if err := m.MarkDelivery(ctx, id, false, &later, "boom", 500, 30); err != nil {
		t.Fatalf("MarkDelivery: %v", err)
	}
	due, _ = m.PendingDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("retry should not be due yet: %+v", due)
	}

	// Admin retry makes it due immediately again.
	if err := m.RetryDelivery(ctx, "t_demo", id); err != nil {
		t.Fatalf("RetryDelivery: %v", err)
	}
	if err := m.RetryDelivery(ctx, "t_other", id); err != ErrNotFound {
		t.Fatalf("cross-tenant retry: want ErrNotFound, got %v", err)
	}
	due, _ = m.PendingDeliveries(ctx, 10)
	if len(due) != 1 {
		t.Fatalf("want due after retry, got %+v", due)
	}

	if err := m.MarkDelivery(ctx, id, true, nil, "", 200, 12); err != nil {
		t.Fatalf("MarkDelivery success: %v", err)
	}
	rows, _, _ := m.ListDeliveries(ctx, "t_demo", "delivered", "", 10)
	if len(rows) != 1 || rows[0]["attempts"] != 2 {
		t.Fatalf("delivered rows: %+v", rows)
	}
}
