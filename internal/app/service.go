// Package service implements the webhook use cases behind the HTTP API:
// creating projects from intake submissions and scoring category forms.
package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/okian/tallyscore/internal/adapters/repository"
	"github.com/okian/tallyscore/internal/domain/dedupe"
	"github.com/okian/tallyscore/internal/domain/fields"
	"github.com/okian/tallyscore/internal/domain/identity"
	"github.com/okian/tallyscore/internal/domain/scoring"
	"github.com/okian/tallyscore/pkg/logger"
	"github.com/okian/tallyscore/pkg/metrics"
)

// Handler names used for metrics, logs and delivery keys.
const (
	HandlerIntake   = "intake"
	HandlerCategory = "category"
)

// IdentityResolver maps a submission to a user id.
type IdentityResolver interface {
	Resolve(ctx context.Context, n *fields.Normalized, fallbackEmail string) (string, identity.Source, error)
}

// Service implements the API dependencies for the webhook handlers.
type Service struct {
	store    repository.Store
	resolver IdentityResolver
	scorer   *scoring.Calculator
	deduper  dedupe.Deduper

	allowAnonymous bool
	dedupeSize     int
	now            func() time.Time

	logger logger.Logger

	intakes    atomic.Int64
	categories atomic.Int64
	failures   atomic.Int64
	duplicates atomic.Int64
	conflicts  atomic.Int64
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCalculator replaces the default score calculator.
func WithCalculator(c *scoring.Calculator) Option {
	return func(s *Service) {
		if c != nil {
			s.scorer = c
		}
	}
}

// WithDedupeSize sets the size of the delivery deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDeduper replaces the delivery deduplication cache.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		s.deduper = d
	}
}

// WithIntakeAllowAnonymous lets intake create projects without an owner
// when the submitter cannot be identified.
func WithIntakeAllowAnonymous(allow bool) Option {
	return func(s *Service) {
		s.allowAnonymous = allow
	}
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service over the given store and identity resolver.
func New(store repository.Store, resolver IdentityResolver, opts ...Option) *Service {
	s := &Service{
		store:      store,
		resolver:   resolver,
		scorer:     scoring.NewCalculator(),
		dedupeSize: 50000,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	return s
}

// BeginDelivery reserves a (handler, responseID) delivery. For
// dedupe.StateDone the response stored by CompleteDelivery is returned.
func (s *Service) BeginDelivery(ctx context.Context, handler, responseID string) (dedupe.State, []byte) {
	state, resp := s.deduper.Begin(ctx, deliveryKey(handler, responseID))
	if state != dedupe.StateNew {
		s.duplicates.Add(1)
		metrics.RecordDuplicateDelivery(handler)
		s.logger.Info(ctx, "duplicate delivery",
			logger.String("handler", handler),
			logger.String("response_id", responseID),
			logger.Bool("in_flight", state == dedupe.StateInFlight),
		)
	}
	return state, resp
}

// CompleteDelivery records the response sent for a reserved delivery.
func (s *Service) CompleteDelivery(ctx context.Context, handler, responseID string, response []byte) {
	s.deduper.Complete(ctx, deliveryKey(handler, responseID), response)
}

// ForgetDelivery releases a reserved delivery so the sender may retry it.
func (s *Service) ForgetDelivery(ctx context.Context, handler, responseID string) {
	s.deduper.Forget(ctx, deliveryKey(handler, responseID))
}

func deliveryKey(handler, responseID string) string {
	return handler + ":" + responseID
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	return map[string]any{
		"intakes":              s.intakes.Load(),
		"categoryTallies":      s.categories.Load(),
		"failures":             s.failures.Load(),
		"duplicateDeliveries":  s.duplicates.Load(),
		"scoreConflicts":       s.conflicts.Load(),
		"dedupeEntries":        s.deduper.Size(),
		"dedupeSize":           s.dedupeSize,
		"intakeAllowAnonymous": s.allowAnonymous,
	}
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	return s.deduper.Size()
}
