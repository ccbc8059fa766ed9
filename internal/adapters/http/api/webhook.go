package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/tallyscore/internal/domain/dedupe"
	"github.com/okian/tallyscore/internal/domain/model"
	"github.com/okian/tallyscore/pkg/logger"
)

// maxBodyBytes caps a webhook body.
const maxBodyBytes = 1 << 20

// SubmitFunc applies a decoded submission and returns the response body.
type SubmitFunc func(ctx context.Context, p model.Payload) (any, error)

// WebhookHandler serves one form webhook route.
type WebhookHandler struct {
	name   string
	deps   Deliveries
	submit SubmitFunc
	logger logger.Logger
}

// NewWebhookHandler creates a handler that decodes payloads, filters
// redeliveries and passes new submissions to submit.
func NewWebhookHandler(name string, deps Deliveries, submit SubmitFunc) *WebhookHandler {
	return &WebhookHandler{
		name:   name,
		deps:   deps,
		submit: submit,
		logger: logger.Named("api." + name),
	}
}

func setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
}

// ServeHTTP handles POST submissions and CORS preflight.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w.Header())
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	case http.MethodPost:
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte("Method Not Allowed"))
		return
	}

	ctx := r.Context()
	var p model.Payload
	if err := decodePayload(w, r, &p); err != nil {
		h.logger.Warn(ctx, "undecodable submission", logger.Error(err))
		writeError(w, err)
		return
	}
	h.logger.Debug(ctx, "submission received",
		logger.String("form_id", p.EffectiveFormID()),
		logger.String("response_id", p.Data.ResponseID),
		logger.Int("fields", len(p.Data.Fields)),
	)

	responseID := p.Data.ResponseID
	if responseID != "" {
		state, stored := h.deps.BeginDelivery(ctx, h.name, responseID)
		switch state {
		case dedupe.StateInFlight:
			writeError(w, ErrInFlight)
			return
		case dedupe.StateDone:
			writeRawJSON(w, http.StatusOK, markDuplicate(stored))
			return
		}
	}

	res, err := h.submit(ctx, p)
	if err != nil {
		if responseID != "" {
			h.deps.ForgetDelivery(ctx, h.name, responseID)
		}
		writeError(w, err)
		return
	}

	body, err := json.Marshal(res)
	if err != nil {
		if responseID != "" {
			h.deps.ForgetDelivery(ctx, h.name, responseID)
		}
		writeError(w, fmt.Errorf("encode response: %w", err))
		return
	}
	if responseID != "" {
		h.deps.CompleteDelivery(ctx, h.name, responseID, body)
	}
	writeRawJSON(w, http.StatusOK, body)
}

func decodePayload(w http.ResponseWriter, r *http.Request, p *model.Payload) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(p)
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return ErrBodyTooBig
	}
	return err
}

// markDuplicate adds "duplicate": true to a stored JSON object response.
func markDuplicate(stored []byte) []byte {
	var obj map[string]any
	if err := json.Unmarshal(stored, &obj); err != nil {
		return stored
	}
	obj["duplicate"] = true
	out, err := json.Marshal(obj)
	if err != nil {
		return stored
	}
	return out
}
