package service

import (
	"context"
	"errors"

	"github.com/okian/tallyscore/internal/adapters/repository"
	"github.com/okian/tallyscore/internal/domain/category"
	"github.com/okian/tallyscore/internal/domain/fields"
	"github.com/okian/tallyscore/internal/domain/identity"
	"github.com/okian/tallyscore/internal/domain/model"
	"github.com/okian/tallyscore/internal/domain/scoring"
	"github.com/okian/tallyscore/pkg/logger"
	"github.com/okian/tallyscore/pkg/metrics"
)

// CategoryResult is the category webhook response.
type CategoryResult struct {
	OK        bool           `json:"ok"`
	Category  model.Category `json:"category"`
	Score     int            `json:"score"`
	ProjectID string         `json:"project_id"`
}

// TallyCategory scores a category form submission and stores the score and
// the recomputed overall score on the submitter's project.
func (s *Service) TallyCategory(ctx context.Context, p model.Payload) (CategoryResult, error) {
	res, err := s.tally(ctx, p)
	s.observe(ctx, HandlerCategory, err)
	if err == nil {
		s.categories.Add(1)
	}
	return res, err
}

func (s *Service) tally(ctx context.Context, p model.Payload) (CategoryResult, error) {
	n := fields.Normalize(p.Data.Fields)
	s.logFields(ctx, n)

	projectID := n.HiddenFirst("project_id")
	if projectID == "" {
		return CategoryResult{}, reject("Missing project_id", ErrValidation)
	}

	userID, src, err := s.resolver.Resolve(ctx, n, "")
	if err != nil {
		if errors.Is(err, identity.ErrIdentityUnresolved) {
			return CategoryResult{}, reject("Cannot identify user", err)
		}
		return CategoryResult{}, err
	}
	metrics.RecordIdentityResolution(string(src))

	formID := p.EffectiveFormID()
	cat, err := category.Resolve(formID)
	if err != nil {
		return CategoryResult{}, reject("Unknown form ID: "+formID, err)
	}
	s.logger.Info(ctx, "category detected",
		logger.String("category", string(cat)),
		logger.String("project_id", projectID),
	)

	b := s.scorer.Score(p.Data.Fields)
	s.logger.Info(ctx, "category scored",
		logger.String("category", string(cat)),
		logger.Int("answered", b.Answered),
		logger.Int("total", b.Total),
		logger.Int("completeness", b.Completeness),
		logger.Int("quality", b.QualityBonus),
		logger.Int("score", b.Score),
	)

	existing, err := s.store.ProjectScores(ctx, projectID, userID)
	if err != nil {
		return CategoryResult{}, storeReject(err)
	}

	_, overall := scoring.Aggregate(existing.Scores, cat, b.Score)

	merged := make(model.RawFields, len(existing.Fields))
	for k, v := range existing.Fields {
		merged[k] = v
	}
	for k, v := range n.Snapshot() {
		merged[k] = v
	}

	err = s.store.UpdateCategory(ctx, model.CategoryUpdate{
		ProjectID: projectID,
		UserID:    userID,
		Category:  cat,
		Score:     b.Score,
		Overall:   overall,
		Prior:     existing.Scores.Clone(),
		Fields:    merged,
		UpdatedAt: s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.conflicts.Add(1)
		}
		return CategoryResult{}, storeReject(err)
	}

	metrics.RecordCategoryScore(string(cat), b.Score)
	fieldsLog := []logger.Field{
		logger.String("project_id", projectID),
		logger.String("column", cat.Column()),
		logger.Int("score", b.Score),
	}
	if overall != nil {
		metrics.RecordOverallScore(*overall)
		fieldsLog = append(fieldsLog, logger.Int("overall", *overall))
	}
	s.logger.Info(ctx, "project updated", fieldsLog...)

	return CategoryResult{OK: true, Category: cat, Score: b.Score, ProjectID: projectID}, nil
}

// storeReject gives not-found and conflict store errors a sender-facing
// message. Other store errors keep their own message.
func storeReject(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return reject("Project not found", err)
	case errors.Is(err, repository.ErrConflict):
		return reject("Project scores changed during update, resubmit the form", err)
	default:
		return err
	}
}
