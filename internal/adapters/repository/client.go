package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/tallyscore/internal/domain/identity"
	"github.com/okian/tallyscore/internal/domain/model"
	"github.com/okian/tallyscore/pkg/metrics"
)

var errClosed = errors.New("store client closed")

// Opener builds a backend. It is called at most once per Client.
type Opener func(ctx context.Context) (Backend, error)

// Client opens its backend on first use and reuses it for the life of the
// process. A failed open is remembered and returned to every later caller.
// Every call is timed into the store latency metrics.
type Client struct {
	open Opener

	once    sync.Once
	backend Backend
	err     error
}

// NewClient returns a lazily opened client.
func NewClient(open Opener) *Client {
	return &Client{open: open}
}

// NewClientFromConfig returns a lazily opened client for cfg.
func NewClientFromConfig(cfg Config) *Client {
	return NewClient(func(ctx context.Context) (Backend, error) {
		return Open(ctx, cfg)
	})
}

func (c *Client) get(ctx context.Context) (Backend, error) {
	c.once.Do(func() {
		// Opening must not be tied to the request that happened to trigger it.
		b, err := c.open(context.WithoutCancel(ctx))
		if err != nil {
			c.err = err
			return
		}
		c.backend = b
	})
	return c.backend, c.err
}

// InsertProject implements Store.
func (c *Client) InsertProject(ctx context.Context, p model.NewProject) (string, error) {
	start := time.Now()
	b, err := c.get(ctx)
	if err != nil {
		return "", err
	}
	id, err := b.InsertProject(ctx, p)
	observe("insert_project", start, err)
	return id, err
}

// ProjectScores implements Store.
func (c *Client) ProjectScores(ctx context.Context, projectID, userID string) (model.ProjectScores, error) {
	start := time.Now()
	b, err := c.get(ctx)
	if err != nil {
		return model.ProjectScores{}, err
	}
	ps, err := b.ProjectScores(ctx, projectID, userID)
	observe("project_scores", start, err)
	return ps, err
}

// UpdateCategory implements Store.
func (c *Client) UpdateCategory(ctx context.Context, u model.CategoryUpdate) error {
	start := time.Now()
	b, err := c.get(ctx)
	if err != nil {
		return err
	}
	err = b.UpdateCategory(ctx, u)
	observe("update_category", start, err)
	return err
}

// ListUsers implements identity.Directory.
func (c *Client) ListUsers(ctx context.Context, page, perPage int) ([]identity.User, error) {
	start := time.Now()
	b, err := c.get(ctx)
	if err != nil {
		return nil, err
	}
	users, err := b.ListUsers(ctx, page, perPage)
	observe("list_users", start, err)
	return users, err
}

// Close closes the backend if it was ever opened.
func (c *Client) Close() error {
	c.once.Do(func() { c.err = errClosed })
	if c.backend == nil {
		return nil
	}
	return c.backend.Close()
}

func observe(op string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrConflict):
		outcome = "conflict"
		metrics.RecordScoreConflict()
	default:
		outcome = "error"
	}
	metrics.RecordStoreOperation(op, outcome, float64(time.Since(start).Milliseconds()))
}
