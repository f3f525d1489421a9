package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"loadplan/internal/model"
	"loadplan/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	id, err := rs.Memory.EnqueueDelivery(context.Background(), "t1", "", "plan.completed", srv.URL, "secret", []byte(`{"id":"evt1"}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce()

	if gotType != "plan.completed" {
		t.Fatalf("event type header: %q", gotType)
	}
	if !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatalf("signature does not verify: sig=%q body=%s", gotSig, gotBody)
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success || rs.marks[0].Code != 200 {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_RetryThenPark(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 2}
	_, _ = rs.Memory.EnqueueDelivery(context.Background(), "t1", "", "plan.failed", srv.URL, "", []byte(`{}`))

	w.processOnce()
	if len(rs.marks) != 1 || rs.marks[0].Success {
		t.Fatalf("first attempt should schedule a retry, got marks=%+v fails=%+v", rs.marks, rs.fails)
	}

	// Force the retry due and run again: attempts 1+1 reaches MaxAttempts.
	_ = rs.Memory.RetryDelivery(context.Background(), "t1", rs.marks[0].ID)
	w.processOnce()
	if len(rs.fails) != 1 || rs.fails[0].Code != 500 {
		t.Fatalf("second attempt should park the delivery, got fails=%+v", rs.fails)
	}
}

func TestPublisherEmit_MatchingSubscriptionsOnly(t *testing.T) {
	mem := store.NewMemory()
	p := NewPublisher(mem)
	ctx := context.Background()

	_, _ = mem.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "https://hooks.example/a", Events: []string{"plan.completed"}, Secret: "s1"})
	_, _ = mem.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "https://hooks.example/b", Events: []string{"plan.failed"}})

	p.Emit(ctx, "t1", "plan.completed", map[string]any{"planId": "p1"})

	due, err := mem.PendingDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(due))
	}
	d := due[0]
	if d.URL != "https://hooks.example/a" || d.Secret != "s1" || d.EventType != "plan.completed" {
		t.Fatalf("delivery: %+v", d)
	}
	var payload map[string]any
	if err := json.Unmarshal(d.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["type"] != "plan.completed" || payload["tenantId"] != "t1" {
		t.Fatalf("payload envelope: %v", payload)
	}
	data, _ := payload["data"].(map[string]any)
	if data["planId"] != "p1" {
		t.Fatalf("payload data: %v", payload["data"])
	}
}

func TestSignVerifyHMAC(t *testing.T) {
	body := []byte(`{"id":"evt1"}`)
	sig := SignHMAC("secret", body)
	if !VerifyHMAC("secret", body, sig) {
		t.Fatal("round trip failed")
	}
	if VerifyHMAC("other", body, sig) {
		t.Fatal("wrong secret verified")
	}
	if VerifyHMAC("secret", body, "zz") {
		t.Fatal("non-hex signature verified")
	}
}

func TestNextBackoff(t *testing.T) {
	if got := nextBackoff(0); got != time.Second {
		t.Errorf("attempt 0: %v", got)
	}
	if got := nextBackoff(3); got != 8*time.Second {
		t.Errorf("attempt 3: %v", got)
	}
	if got := nextBackoff(50); got != time.Hour {
		t.Errorf("attempt 50 should cap at an hour: %v", got)
	}
}
