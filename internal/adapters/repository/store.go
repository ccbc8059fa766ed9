// Package repository persists projects and looks up users in the backing store.
package repository

import (
	"context"
	"slices"
	"time"

	"github.com/okian/tallyscore/internal/domain/identity"
	"github.com/okian/tallyscore/internal/domain/model"
)

// Supported drivers.
const (
	DriverREST   = "rest"
	DriverSQLite = "sqlite"
)

// Store provides read/write access to projects.
type Store interface {
	// InsertProject creates a project row and returns its identifier.
	InsertProject(ctx context.Context, p model.NewProject) (string, error)

	// ProjectScores reads the category scores and field snapshot of the
	// project owned by userID. Returns ErrNotFound when there is no such row.
	ProjectScores(ctx context.Context, projectID, userID string) (model.ProjectScores, error)

	// UpdateCategory writes a category score while the row still holds
	// u.Prior. Returns ErrNotFound when the row is gone and ErrConflict when
	// its scores changed since they were read.
	UpdateCategory(ctx context.Context, u model.CategoryUpdate) error
}

// Backend is a store that also serves the user directory.
type Backend interface {
	Store
	identity.Directory
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver     string
	URL        string
	ServiceKey string
	SQLitePath string
	Timeout    time.Duration

	// SeedUsers are added to the sqlite user directory on open.
	SeedUsers []string
}

// Open builds the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Driver {
	case DriverREST:
		s, err := NewRESTStore(cfg.URL, cfg.ServiceKey, WithTimeout(cfg.Timeout))
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		s, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := s.SeedUsers(ctx, cfg.SeedUsers); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, ErrUnknownDriver
	}
}

// scoreColumn returns the column for c, rejecting anything outside the fixed set.
func scoreColumn(c model.Category) (string, error) {
	if !slices.Contains(model.Categories, c) {
		return "", ErrUnknownColumn
	}
	return c.Column(), nil
}
