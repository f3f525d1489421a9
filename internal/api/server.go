package api

import (
	"context"
	"os"
	"strings"
	"sync"

	"loadplan/internal/auth"
	"loadplan/internal/catalog"
	"loadplan/internal/store"
	"loadplan/internal/webhooks"
)

type Server struct {
	Store    store.Store
	Pub      *webhooks.Publisher
	Auth     *auth.Verifier
	Broker   EventBroker
	Catalog  *catalog.Catalog
	Progress *ProgressCache
	Limits   *tenantLimiter

	mu          sync.Mutex
	planCancels map[string]context.CancelFunc
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer() (*Server, error) {
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.MigrateDir("db/migrations")
		}
		s = sp
	}
	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	cat, err := catalog.FromEnv()
	if err != nil {
		return nil, err
	}
	return &Server{
		Store:       s,
		Pub:         webhooks.NewPublisher(s),
		Auth:        auth.NewVerifierFromEnv(),
		Broker:      broker,
		Catalog:     cat,
		Progress:    NewProgressCache(),
		Limits:      newTenantLimiterFromEnv(),
		planCancels: make(map[string]context.CancelFunc),
	}, nil
}

// trackRun registers the cancel func of an in-flight plan run and returns the
// cleanup that removes it again. One entry per tenant+plan.
func (s *Server) trackRun(tenantID, planID string, cancel context.CancelFunc) func() {
	key := tenantID + "|" + planID
	s.mu.Lock()
	s.planCancels[key] = cancel
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.planCancels, key)
		s.mu.Unlock()
	}
}

// cancelRun interrupts a running plan, if one is tracked for the id.
func (s *Server) cancelRun(tenantID, planID string) {
	s.mu.Lock()
	cancel := s.planCancels[tenantID+"|"+planID]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
