package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/tallyscore/internal/domain/identity"
	"github.com/okian/tallyscore/internal/domain/model"
)

// REST endpoints relative to the store URL.
const (
	projectsPath = "/rest/v1/projects"
	usersPath    = "/auth/v1/admin/users"
)

// RESTStore talks to a hosted PostgREST database and its auth admin API
// using a privileged service key.
type RESTStore struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// NewRESTStore creates a REST-backed store.
func NewRESTStore(baseURL, serviceKey string, opts ...Option) (*RESTStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: store url", ErrMissingSetting)
	}
	if serviceKey == "" {
		return nil, fmt.Errorf("%w: service key", ErrMissingSetting)
	}
	s := &RESTStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close is a no-op; the HTTP client holds no resources worth releasing.
func (s *RESTStore) Close() error { return nil }

// projectRow is the insert shape of a project.
type projectRow struct {
	UserID     *string         `json:"user_id"`
	Name       string          `json:"name"`
	Location   *string         `json:"location"`
	CapacityMW *float64        `json:"capacity_mw"`
	Stage      *string         `json:"stage"`
	Status     string          `json:"status"`
	ResponseID *string         `json:"tally_response_id"`
	Fields     model.RawFields `json:"tally_fields"`
}

// InsertProject posts p and returns the id assigned by the database.
func (s *RESTStore) InsertProject(ctx context.Context, p model.NewProject) (string, error) {
	row := projectRow{
		UserID:     p.UserID,
		Name:       p.Name,
		Location:   p.Location,
		CapacityMW: p.CapacityMW,
		Stage:      p.Stage,
		Status:     p.Status,
		ResponseID: p.ResponseID,
		Fields:     p.Fields,
	}
	var created []struct {
		ID json.RawMessage `json:"id"`
	}
	if err := s.do(ctx, "insert_project", http.MethodPost, projectsPath, nil, row, &created); err != nil {
		return "", err
	}
	if len(created) == 0 {
		return "", storageStatusErr("insert_project", 0, "insert returned no rows")
	}
	return rawID(created[0].ID), nil
}

// ProjectScores reads one project filtered by id and owner.
func (s *RESTStore) ProjectScores(ctx context.Context, projectID, userID string) (model.ProjectScores, error) {
	cols := []string{"id"}
	for _, c := range model.Categories {
		cols = append(cols, c.Column())
	}
	cols = append(cols, "tally_fields")

	q := url.Values{}
	q.Set("select", strings.Join(cols, ","))
	q.Set("id", "eq."+projectID)
	q.Set("user_id", "eq."+userID)

	var rows []map[string]json.RawMessage
	if err := s.do(ctx, "project_scores", http.MethodGet, projectsPath, q, nil, &rows); err != nil {
		return model.ProjectScores{}, err
	}
	if len(rows) == 0 {
		return model.ProjectScores{}, ErrNotFound
	}

	row := rows[0]
	out := model.ProjectScores{
		ProjectID: projectID,
		UserID:    userID,
		Scores:    model.NewCategoryScores(),
		Fields:    model.RawFields{},
	}
	for _, c := range model.Categories {
		var v *int
		if raw, ok := row[c.Column()]; ok {
			if err := json.Unmarshal(raw, &v); err != nil {
				return model.ProjectScores{}, fmt.Errorf("decode %s: %w", c.Column(), err)
			}
		}
		if v != nil {
			out.Scores[c] = *v
		}
	}
	if raw, ok := row["tally_fields"]; ok {
		if err := json.Unmarshal(raw, &out.Fields); err != nil {
			return model.ProjectScores{}, fmt.Errorf("decode tally_fields: %w", err)
		}
		if out.Fields == nil {
			out.Fields = model.RawFields{}
		}
	}
	return out, nil
}

// UpdateCategory patches the project with filters on id, owner and every
// prior score, so the write only lands on an unchanged row.
func (s *RESTStore) UpdateCategory(ctx context.Context, u model.CategoryUpdate) error {
	col, err := scoreColumn(u.Category)
	if err != nil {
		return err
	}
	body := map[string]any{
		col:            u.Score,
		"updated_at":   u.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"tally_fields": u.Fields,
	}
	if u.Overall != nil {
		body["score_overall"] = *u.Overall
	}

	q := url.Values{}
	q.Set("id", "eq."+u.ProjectID)
	q.Set("user_id", "eq."+u.UserID)
	for _, c := range model.Categories {
		if v := u.Prior.Get(c); v >= 0 {
			q.Set(c.Column(), "eq."+strconv.Itoa(v))
		} else {
			q.Set(c.Column(), "is.null")
		}
	}
	q.Set("select", "id")

	var updated []json.RawMessage
	if err := s.do(ctx, "update_category", http.MethodPatch, projectsPath, q, body, &updated); err != nil {
		return err
	}
	if len(updated) > 0 {
		return nil
	}

	// Zero rows: either the row is gone or its scores moved on.
	if _, err := s.ProjectScores(ctx, u.ProjectID, u.UserID); err != nil {
		return err
	}
	return ErrConflict
}

type usersPage struct {
	Users []identity.User `json:"users"`
}

// ListUsers reads one page of the auth admin user listing.
func (s *RESTStore) ListUsers(ctx context.Context, page, perPage int) ([]identity.User, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	var out usersPage
	if err := s.do(ctx, "list_users", http.MethodGet, usersPath, q, nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// apiError is the error body returned by PostgREST and the auth API.
type apiError struct {
	Message string `json:"message"`
	Msg     string `json:"msg"`
	Error   string `json:"error"`
	Code    any    `json:"code"`
}

func (e apiError) text() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Msg != "":
		return e.Msg
	default:
		return e.Error
	}
}

// do sends one request and decodes a 2xx JSON body into out.
func (s *RESTStore) do(ctx context.Context, op, method, path string, q url.Values, in, out any) error {
	endpoint := s.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost || method == http.MethodPatch {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return storageErr(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return storageErr(op, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr apiError
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.text() != "" {
			msg = apiErr.text()
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return storageStatusErr(op, resp.StatusCode, msg)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return storageErr(op, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

// rawID renders a JSON id (string or number) as text.
func rawID(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
