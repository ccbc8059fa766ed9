// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/tallyscore/internal/app"
	"github.com/okian/tallyscore/internal/domain/dedupe"
	"github.com/okian/tallyscore/internal/domain/model"
)

// Route paths.
const (
	PathIntake   = "/tally-intake"
	PathCategory = "/tally-category"
	PathHealth   = "/healthz"
	PathMetrics  = "/metrics"
	PathStats    = "/stats"
)

// Deliveries tracks webhook redeliveries by handler and response id.
type Deliveries interface {
	BeginDelivery(ctx context.Context, handler, responseID string) (dedupe.State, []byte)
	CompleteDelivery(ctx context.Context, handler, responseID string, response []byte)
	ForgetDelivery(ctx context.Context, handler, responseID string)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Deliveries

	Intake(ctx context.Context, p model.Payload) (service.IntakeResult, error)
	TallyCategory(ctx context.Context, p model.Payload) (service.CategoryResult, error)
}

// Server wires HTTP routes for the webhook API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	intakeHandler   *WebhookHandler
	categoryHandler *WebhookHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		intakeHandler: NewWebhookHandler(service.HandlerIntake, deps,
			func(ctx context.Context, p model.Payload) (any, error) {
				return deps.Intake(ctx, p)
			}),
		categoryHandler: NewWebhookHandler(service.HandlerCategory, deps,
			func(ctx context.Context, p model.Payload) (any, error) {
				return deps.TallyCategory(ctx, p)
			}),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc(PathHealth, Instrument(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc(PathMetrics, s.healthHandler.HandleMetrics)
	mux.HandleFunc(PathStats, Instrument(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc(PathIntake, Instrument(s.intakeHandler.ServeHTTP, service.HandlerIntake))
	mux.HandleFunc(PathCategory, Instrument(s.categoryHandler.ServeHTTP, service.HandlerCategory))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}
