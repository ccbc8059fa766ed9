package repository

import (
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// Option applies a configuration option to the RESTStore.
type Option func(*RESTStore)

// WithTimeout sets the per-request timeout of the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(s *RESTStore) {
		if d > 0 {
			s.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *RESTStore) {
		if c != nil {
			s.httpClient = c
		}
	}
}
