package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"loadplan/internal/ingest"
	"loadplan/internal/ingest/csvfile"
	"loadplan/internal/ingest/xlsx"
	"loadplan/internal/metrics"
	"loadplan/internal/model"
	"loadplan/internal/opt"
	"loadplan/internal/store"
)

// OptimizeHandler handles POST /v1/optimize (synchronous run)
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanPlan() {
		writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	if !s.Limits.Allow(p.Tenant) {
		writeProblem(w, http.StatusTooManyRequests, "Rate limit exceeded", "optimize rate limit reached, retry later", r.URL.Path)
		return
	}
	var req model.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateOptimizeRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}
	normalizeItems(req.Items)
	truck, err := s.resolveTruck(&req)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}
	var seed int64
	if req.Seed != nil {
		seed = *req.Seed
	}
	res, err := opt.Optimize(r.Context(), opt.Request{
		Items:      req.Items,
		Truck:      truck,
		Strategy:   req.Strategy,
		Seed:       seed,
		TimeBudget: time.Duration(req.TimeBudgetMs) * time.Millisecond,
		Tuning:     req.Tuning,
	})
	if err != nil {
		writeEngineProblem(w, err, r.URL.Path)
		return
	}
	observeRun(res)
	out := map[string]any{
		"truck":       res.Truck,
		"strategy":    res.Strategy,
		"arrangement": res.Arrangement,
		"elapsedMs":   res.Elapsed.Milliseconds(),
	}
	if len(res.Warnings) > 0 {
		out["warnings"] = res.Warnings
	}
	if res.Metrics != nil {
		out["metrics"] = res.Metrics
	}
	writeJSON(w, http.StatusOK, out)
}

// resolveTruck picks the effective truck: explicit spec wins, then a catalog
// preset, then the catalog default.
func (s *Server) resolveTruck(req *model.OptimizeRequest) (model.TruckSpec, error) {
	if req.Truck != nil {
		return *req.Truck, nil
	}
	if req.TruckID != "" {
		t, ok := s.Catalog.Get(req.TruckID)
		if !ok {
			return model.TruckSpec{}, fmt.Errorf("unknown truckId: %s", req.TruckID)
		}
		return t, nil
	}
	return s.Catalog.DefaultTruck(), nil
}

// observeRun feeds run outcome into the Prometheus registry.
func observeRun(res opt.Result) {
	metrics.OptimizeRuns.WithLabelValues(res.Strategy, "completed").Inc()
	metrics.OptimizeDuration.WithLabelValues(res.Strategy).Observe(res.Elapsed.Seconds())
	metrics.VolumeUtilization.WithLabelValues(res.Strategy).Observe(res.Arrangement.VolumeUtilization)
	metrics.WeightUtilization.WithLabelValues(res.Strategy).Observe(res.Arrangement.WeightUtilization)
	if res.Metrics != nil {
		metrics.Generations.Add(float64(res.Metrics.Generations))
	}
}

// PlansHandler handles POST/GET /v1/plans
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.CanPlan() {
			writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		if !s.Limits.Allow(p.Tenant) {
			writeProblem(w, http.StatusTooManyRequests, "Rate limit exceeded", "optimize rate limit reached, retry later", r.URL.Path)
			return
		}
		var req model.OptimizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateOptimizeRequest(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
			return
		}
		normalizeItems(req.Items)
		truck, err := s.resolveTruck(&req)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
			return
		}
		req.TenantID = p.Tenant
		req.Truck = &truck
		strategy := req.Strategy
		if strategy == "" {
			strategy = opt.StrategySimple
		}
		plan, err := s.Store.CreatePlan(r.Context(), model.Plan{TenantID: p.Tenant, Strategy: strategy, Request: req})
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create plan failed", err.Error(), r.URL.Path)
			return
		}
		go s.runPlan(plan)
		writeJSON(w, http.StatusAccepted, map[string]any{"planId": plan.ID, "status": plan.Status})
	case http.MethodGet:
		p := s.getPrincipal(r)
		status := r.URL.Query().Get("status")
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListPlans(r.Context(), p.Tenant, status, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List plans failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// runPlan executes a queued plan on its own goroutine. The run context is
// detached from the submitting request and canceled through cancelRun.
func (s *Server) runPlan(p model.Plan) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer s.trackRun(p.TenantID, p.ID, cancel)()

	if err := s.Store.SetPlanRunning(ctx, p.TenantID, p.ID); err != nil {
		// canceled while still queued
		return
	}
	req := p.Request
	var seed int64
	if req.Seed != nil {
		seed = *req.Seed
	}
	res, err := opt.Optimize(ctx, opt.Request{
		Items:      req.Items,
		Truck:      *req.Truck,
		Strategy:   req.Strategy,
		Seed:       seed,
		TimeBudget: time.Duration(req.TimeBudgetMs) * time.Millisecond,
		Tuning:     req.Tuning,
		OnProgress: func(pr opt.Progress) {
			s.Progress.Upsert(p.TenantID, p.ID, pr)
			s.Broker.Publish(p.ID, SSEEvent{Type: "plan.progress", Data: map[string]any{
				"planId":      p.ID,
				"generation":  pr.Generation,
				"generations": pr.Generations,
				"bestScore":   pr.BestScore,
				"placed":      pr.Placed,
				"unplaced":    pr.Unplaced,
			}})
		},
	})
	bg := context.Background()
	s.Progress.Drop(p.TenantID, p.ID)
	if err != nil {
		if ctx.Err() != nil {
			metrics.OptimizeRuns.WithLabelValues(p.Strategy, "canceled").Inc()
			// interrupted by cancelRun; the cancel handler already marked the
			// plan and emitted events unless the store missed it
			if s.Store.CancelPlan(bg, p.TenantID, p.ID) == nil {
				s.Broker.Publish(p.ID, SSEEvent{Type: "plan.canceled", Data: map[string]any{"planId": p.ID}})
				s.Pub.Emit(bg, p.TenantID, "plan.canceled", map[string]any{"planId": p.ID})
			}
			return
		}
		metrics.OptimizeRuns.WithLabelValues(p.Strategy, "failed").Inc()
		if ferr := s.Store.FailPlan(bg, p.TenantID, p.ID, err.Error()); ferr == nil {
			s.Broker.Publish(p.ID, SSEEvent{Type: "plan.failed", Data: map[string]any{"planId": p.ID, "error": err.Error()}})
			s.Pub.Emit(bg, p.TenantID, "plan.failed", map[string]any{"planId": p.ID, "error": err.Error()})
		}
		return
	}
	result := model.PlanResult{
		Truck:       res.Truck,
		Strategy:    res.Strategy,
		Arrangement: res.Arrangement,
		Warnings:    res.Warnings,
		ElapsedMs:   res.Elapsed.Milliseconds(),
	}
	if cerr := s.Store.CompletePlan(bg, p.TenantID, p.ID, result); cerr != nil {
		// plan was canceled between the engine finishing and this write
		return
	}
	observeRun(res)
	if res.Metrics != nil {
		opt.RecordMetrics(p.TenantID, p.ID, *res.Metrics)
	}
	data := map[string]any{
		"planId":            p.ID,
		"score":             res.Arrangement.Score,
		"placed":            len(res.Arrangement.Placements),
		"unplaced":          len(res.Arrangement.Unplaced),
		"volumeUtilization": res.Arrangement.VolumeUtilization,
		"weightUtilization": res.Arrangement.WeightUtilization,
	}
	s.Broker.Publish(p.ID, SSEEvent{Type: "plan.completed", Data: data})
	s.Pub.Emit(bg, p.TenantID, "plan.completed", data)
}

// PlanByIDHandler handles GET /v1/plans/{id} plus the cancel, progress and
// events subresources.
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/plans/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	p := s.getPrincipal(r)

	if len(parts) > 1 && parts[1] == "events" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if _, err := s.Store.GetPlan(r.Context(), p.Tenant, id); err != nil {
			writeProblem(w, 404, "Plan not found", err.Error(), r.URL.Path)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		ch := s.Broker.Subscribe(id)
		defer s.Broker.Unsubscribe(id, ch)
		metrics.SSEClients.Inc()
		defer metrics.SSEClients.Dec()
		// initial heartbeat
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"planId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
		flusher.Flush()
		notify := r.Context().Done()
		for {
			select {
			case <-notify:
				return
			case evt := <-ch:
				b, _ := json.Marshal(evt.Data)
				fmt.Fprintf(w, "event: %s\n", evt.Type)
				fmt.Fprintf(w, "data: %s\n\n", string(b))
				flusher.Flush()
			case <-time.After(15 * time.Second):
				fmt.Fprintf(w, "event: heartbeat\n")
				fmt.Fprintf(w, "data: {\"planId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
				flusher.Flush()
			}
		}
	}

	if len(parts) > 1 && parts[1] == "cancel" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !p.CanPlan() {
			writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		plan, err := s.Store.GetPlan(r.Context(), p.Tenant, id)
		if err != nil {
			writeProblem(w, 404, "Plan not found", err.Error(), r.URL.Path)
			return
		}
		if store.Terminal(plan.Status) {
			writeProblem(w, http.StatusConflict, "Plan already finished", fmt.Sprintf("plan is %s", plan.Status), r.URL.Path)
			return
		}
		if err := s.Store.CancelPlan(r.Context(), p.Tenant, id); err != nil {
			writeProblem(w, http.StatusConflict, "Cancel failed", err.Error(), r.URL.Path)
			return
		}
		s.cancelRun(p.Tenant, id)
		s.Progress.Drop(p.Tenant, id)
		s.Broker.Publish(id, SSEEvent{Type: "plan.canceled", Data: map[string]any{"planId": id}})
		s.Pub.Emit(r.Context(), p.Tenant, "plan.canceled", map[string]any{"planId": id})
		writeJSON(w, http.StatusOK, map[string]any{"planId": id, "status": model.PlanCanceled})
		return
	}

	if len(parts) > 1 && parts[1] == "progress" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		plan, err := s.Store.GetPlan(r.Context(), p.Tenant, id)
		if err != nil {
			writeProblem(w, 404, "Plan not found", err.Error(), r.URL.Path)
			return
		}
		out := map[string]any{"planId": id, "status": plan.Status}
		if prog, ok := s.Progress.Latest(p.Tenant, id); ok {
			out["progress"] = prog
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	plan, err := s.Store.GetPlan(r.Context(), p.Tenant, id)
	if err != nil {
		writeProblem(w, 404, "Plan not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// TrucksHandler handles GET /v1/trucks
func (s *Server) TrucksHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/trucks" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": s.Catalog.List(), "defaultTruckId": s.Catalog.DefaultTruck().ID})
}

// FleetSuggestHandler handles POST /v1/fleet/suggest
func (s *Server) FleetSuggestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.FleetSuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if len(req.Items) == 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid fleet request", "items must not be empty", r.URL.Path)
		return
	}
	normalizeItems(req.Items)
	if len(req.Candidates) == 0 {
		req.Candidates = s.Catalog.List()
	}
	sug, err := opt.SuggestFleet(req.Items, req.Candidates)
	if err != nil {
		writeEngineProblem(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, sug)
}

// ImportPackingListHandler handles POST /v1/imports/packing-list
// (multipart XLSX or CSV upload)
func (s *Server) ImportPackingListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid multipart form", err.Error(), r.URL.Path)
		return
	}
	file, fh, err := r.FormFile("file")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Missing file", "multipart field \"file\" required", r.URL.Path)
		return
	}
	defer file.Close()
	var src ingest.ItemSource = xlsx.Adapter{}
	if strings.HasSuffix(strings.ToLower(fh.Filename), ".csv") {
		src = csvfile.Adapter{}
	}
	res, err := src.Extract(file)
	if err != nil {
		if errors.Is(err, ingest.ErrMissingColumns) || errors.Is(err, ingest.ErrNoItems) {
			writeProblem(w, http.StatusBadRequest, "Unusable packing list", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusBadRequest, "Unreadable file", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":    res.Items,
		"columns":  res.Columns,
		"errors":   res.Errors,
		"warnings": res.Warnings,
		"analysis": ingest.Summarize(res.Items),
	})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" {
			writeProblem(w, http.StatusBadRequest, "Missing url", "", r.URL.Path)
			return
		}
		if len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Missing events", "", r.URL.Path)
			return
		}
		for _, e := range req.Events {
			if e != "plan.completed" && e != "plan.failed" && e != "plan.canceled" {
				writeProblem(w, http.StatusBadRequest, "Unknown event type", e, r.URL.Path)
				return
			}
		}
		req.TenantID = p.Tenant
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(405)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, 404, "Not Found", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(204)
}

// PlanMetricsHandler returns engine diagnostics of finished genetic runs.
func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/plan-metrics" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	ms := opt.GetMetrics(p.Tenant)
	ids := make([]string, 0, len(ms))
	for id := range ms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	items := []map[string]any{}
	for _, id := range ids {
		m := ms[id]
		items = append(items, map[string]any{
			"planId":       id,
			"generations":  m.Generations,
			"evaluations":  m.Evaluations,
			"improvements": m.Improvements,
			"seedScore":    m.SeedScore,
			"bestScore":    m.BestScore,
			"stopped":      m.Stopped,
		})
	}
	writeJSON(w, 200, map[string]any{"items": items})
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/webhook-deliveries" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(405)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListDeliveries(r.Context(), p.Tenant, status, cursor, limit)
	if err != nil {
		writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(405)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
	if err := s.Store.RetryDelivery(r.Context(), p.Tenant, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, 404, "Not Found", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 202, map[string]int{"accepted": 1})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
