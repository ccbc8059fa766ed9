package service

import (
	"context"
	"errors"

	"github.com/okian/tallyscore/internal/domain/fields"
	"github.com/okian/tallyscore/pkg/logger"
	"github.com/okian/tallyscore/pkg/metrics"
)

// Submission outcomes.
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeFailed   = "error"
)

func (s *Service) observe(ctx context.Context, handler string, err error) {
	if err == nil {
		metrics.RecordSubmission(handler, outcomeOK)
		return
	}
	s.failures.Add(1)
	var re *RequestError
	if errors.As(err, &re) {
		metrics.RecordSubmission(handler, outcomeRejected)
		s.logger.Warn(ctx, "submission rejected",
			logger.String("handler", handler),
			logger.Error(err),
		)
		return
	}
	metrics.RecordSubmission(handler, outcomeFailed)
	s.logger.Error(ctx, "submission failed",
		logger.String("handler", handler),
		logger.Error(err),
	)
}

func (s *Service) logFields(ctx context.Context, n *fields.Normalized) {
	for _, key := range n.Order {
		v := n.All[key]
		if v == nil {
			s.logger.Debug(ctx, "field", logger.String("key", key), logger.Any("value", nil))
			continue
		}
		s.logger.Debug(ctx, "field", logger.String("key", key), logger.String("value", *v))
	}
}
