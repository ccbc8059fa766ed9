// Package identity resolves the user behind a form submission.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/tallyscore/internal/domain/fields"
)

// Directory paging bounds.
const (
	MaxPageSize     = 1000
	defaultPageSize = 1000
	defaultMaxPages = 50
	userIDKey       = "user_id"
	emailKey        = "email"
)

// ErrIdentityUnresolved is returned when neither an id nor a known email is present.
var ErrIdentityUnresolved = errors.New("cannot identify user")

// Source tells how an identity was resolved.
type Source string

// Resolution sources.
const (
	SourceHidden    Source = "hidden"
	SourceField     Source = "field"
	SourceDirectory Source = "directory"
)

// User is one entry of the user directory.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Directory lists users page by page. Pages are 1-based.
type Directory interface {
	ListUsers(ctx context.Context, page, perPage int) ([]User, error)
}

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithPageSize sets the directory page size, capped at MaxPageSize.
func WithPageSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.pageSize = min(n, MaxPageSize)
		}
	}
}

// WithMaxPages bounds how many directory pages one lookup may read.
func WithMaxPages(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxPages = n
		}
	}
}

// Resolver determines the acting user's identifier.
type Resolver struct {
	dir      Directory
	pageSize int
	maxPages int
}

// NewResolver creates a resolver backed by dir.
func NewResolver(dir Directory, opts ...Option) *Resolver {
	r := &Resolver{
		dir:      dir,
		pageSize: defaultPageSize,
		maxPages: defaultMaxPages,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the user id for n. An explicit user_id wins, hidden fields
// first; otherwise the email (hidden, any field, then fallbackEmail) is
// matched exactly against the directory.
func (r *Resolver) Resolve(ctx context.Context, n *fields.Normalized, fallbackEmail string) (string, Source, error) {
	if id := firstNonEmptyHidden(n, userIDKey); id != "" {
		return id, SourceHidden, nil
	}
	if id := n.Lookup(userIDKey); id != "" {
		return id, SourceField, nil
	}

	email := n.HiddenFirst(emailKey)
	if email == "" {
		email = fallbackEmail
	}
	if email == "" || r.dir == nil {
		return "", "", ErrIdentityUnresolved
	}

	u, err := r.findByEmail(ctx, email)
	if err != nil {
		return "", "", err
	}
	if u == nil {
		return "", "", fmt.Errorf("%w: no user with email %q", ErrIdentityUnresolved, email)
	}
	return u.ID, SourceDirectory, nil
}

func (r *Resolver) findByEmail(ctx context.Context, email string) (*User, error) {
	for page := 1; page <= r.maxPages; page++ {
		users, err := r.dir.ListUsers(ctx, page, r.pageSize)
		if err != nil {
			return nil, fmt.Errorf("list users page %d: %w", page, err)
		}
		for i := range users {
			if users[i].Email == email {
				return &users[i], nil
			}
		}
		if len(users) < r.pageSize {
			return nil, nil
		}
	}
	return nil, nil
}

func firstNonEmptyHidden(n *fields.Normalized, key string) string {
	if v := n.Hidden[key]; v != nil {
		return *v
	}
	return ""
}
