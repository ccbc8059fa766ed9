package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/okian/tallyscore/internal/domain/fields"
	"github.com/okian/tallyscore/internal/domain/identity"
	"github.com/okian/tallyscore/internal/domain/model"
	"github.com/okian/tallyscore/pkg/logger"
	"github.com/okian/tallyscore/pkg/metrics"
)

const defaultProjectName = "New Project"

// IntakeResult is the intake webhook response.
type IntakeResult struct {
	OK        bool   `json:"ok"`
	ProjectID string `json:"project_id"`
}

// Intake creates a project from an intake form submission.
func (s *Service) Intake(ctx context.Context, p model.Payload) (IntakeResult, error) {
	res, err := s.intake(ctx, p)
	s.observe(ctx, HandlerIntake, err)
	if err == nil {
		s.intakes.Add(1)
	}
	return res, err
}

func (s *Service) intake(ctx context.Context, p model.Payload) (IntakeResult, error) {
	n := fields.Normalize(p.Data.Fields)
	s.logFields(ctx, n)

	var owner *string
	userID, src, err := s.resolver.Resolve(ctx, n, p.Data.RespondentID)
	switch {
	case err == nil:
		owner = &userID
		metrics.RecordIdentityResolution(string(src))
	case errors.Is(err, identity.ErrIdentityUnresolved) && s.allowAnonymous:
		s.logger.Warn(ctx, "creating project without owner", logger.Error(err))
	case errors.Is(err, identity.ErrIdentityUnresolved):
		return IntakeResult{}, reject("Cannot identify user", err)
	default:
		return IntakeResult{}, err
	}

	project := model.NewProject{
		UserID:      owner,
		Name:        n.Lookup("project_name", "name"),
		Location:    optional(n.Lookup("location", "project_location")),
		CapacityMW:  parseCapacity(n.Lookup("capacity", "capacity_mwp")),
		Stage:       optional(n.Lookup("stage", "project_stage")),
		Status:      model.ProjectStatusInProgress,
		ResponseID:  optional(p.Data.ResponseID),
		Fields:      n.Snapshot(),
		SubmittedAt: s.now().UTC(),
	}
	if project.Name == "" {
		project.Name = defaultProjectName
	}

	id, err := s.store.InsertProject(ctx, project)
	if err != nil {
		return IntakeResult{}, err
	}

	s.logger.Info(ctx, "project created",
		logger.String("project_id", id),
		logger.String("name", project.Name),
		logger.Bool("owned", owner != nil),
	)
	return IntakeResult{OK: true, ProjectID: id}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// parseCapacity reads the leading decimal number of s, so "12.5 MWp" is 12.5.
// Zero, missing and unparseable values yield nil.
func parseCapacity(s string) *float64 {
	v, ok := leadingFloat(s)
	if !ok || v == 0 {
		return nil
	}
	return &v
}

func leadingFloat(s string) (float64, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0, false
	}
	end := i
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k > j {
			end = k
		}
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
