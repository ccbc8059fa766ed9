package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/tallyscore/internal/domain/identity"
	"github.com/okian/tallyscore/internal/domain/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps projects and users in a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path", ErrMissingSetting)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storageErr("open", err)
	}
	// One writer keeps updates serialized and lets ":memory:" share a database.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			name TEXT NOT NULL,
			location TEXT,
			capacity_mw REAL,
			stage TEXT,
			status TEXT NOT NULL,
			tally_response_id TEXT,
			tally_fields TEXT NOT NULL DEFAULT '{}',
			score_design INTEGER,
			score_construct INTEGER,
			score_contract INTEGER,
			score_intercon INTEGER,
			score_financial INTEGER,
			score_permit INTEGER,
			score_overall INTEGER,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id);`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storageErr("migrate", err)
		}
	}
	return nil
}

// InsertProject stores p under a new random identifier.
func (s *SQLiteStore) InsertProject(ctx context.Context, p model.NewProject) (string, error) {
	fieldsJSON, err := json.Marshal(p.Fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	ts := p.SubmittedAt
	if ts.IsZero() {
		ts = s.now()
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `INSERT INTO projects(id, user_id, name, location, capacity_mw, stage, status, tally_response_id, tally_fields, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.UserID, p.Name, p.Location, p.CapacityMW, p.Stage, p.Status, p.ResponseID, string(fieldsJSON), ts.UTC(), ts.UTC())
	if err != nil {
		return "", storageErr("insert_project", err)
	}
	return id, nil
}

// ProjectScores reads the scores of one project owned by userID.
func (s *SQLiteStore) ProjectScores(ctx context.Context, projectID, userID string) (model.ProjectScores, error) {
	cols := make([]string, len(model.Categories))
	for i, c := range model.Categories {
		cols[i] = c.Column()
	}
	q := `SELECT ` + strings.Join(cols, ", ") + `, tally_fields FROM projects WHERE id = ? AND user_id = ?`

	raw := make([]sql.NullInt64, len(model.Categories))
	dest := make([]any, 0, len(raw)+1)
	for i := range raw {
		dest = append(dest, &raw[i])
	}
	var fieldsJSON sql.NullString
	dest = append(dest, &fieldsJSON)

	err := s.db.QueryRowContext(ctx, q, projectID, userID).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ProjectScores{}, ErrNotFound
	}
	if err != nil {
		return model.ProjectScores{}, storageErr("project_scores", err)
	}

	out := model.ProjectScores{
		ProjectID: projectID,
		UserID:    userID,
		Scores:    model.NewCategoryScores(),
		Fields:    model.RawFields{},
	}
	for i, c := range model.Categories {
		if raw[i].Valid {
			out.Scores[c] = int(raw[i].Int64)
		}
	}
	if fieldsJSON.Valid && fieldsJSON.String != "" {
		if err := json.Unmarshal([]byte(fieldsJSON.String), &out.Fields); err != nil {
			return model.ProjectScores{}, fmt.Errorf("decode fields: %w", err)
		}
	}
	return out, nil
}

// UpdateCategory applies u in a single conditional UPDATE.
func (s *SQLiteStore) UpdateCategory(ctx context.Context, u model.CategoryUpdate) error {
	col, err := scoreColumn(u.Category)
	if err != nil {
		return err
	}
	fieldsJSON, err := json.Marshal(u.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	ts := u.UpdatedAt
	if ts.IsZero() {
		ts = s.now()
	}

	set := []string{col + " = ?", "updated_at = ?", "tally_fields = ?"}
	args := []any{u.Score, ts.UTC(), string(fieldsJSON)}
	if u.Overall != nil {
		set = append(set, "score_overall = ?")
		args = append(args, *u.Overall)
	}

	where := []string{"id = ?", "user_id = ?"}
	args = append(args, u.ProjectID, u.UserID)
	for _, c := range model.Categories {
		where = append(where, c.Column()+" IS ?")
		args = append(args, nullableScore(u.Prior.Get(c)))
	}

	q := `UPDATE projects SET ` + strings.Join(set, ", ") + ` WHERE ` + strings.Join(where, " AND ")
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return storageErr("update_category", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update_category", err)
	}
	if n > 0 {
		return nil
	}
	return s.missOrConflict(ctx, u.ProjectID, u.UserID)
}

// missOrConflict tells apart a vanished row from a concurrent score change.
func (s *SQLiteStore) missOrConflict(ctx context.Context, projectID, userID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ? AND user_id = ?`, projectID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return storageErr("update_category", err)
	}
	return ErrConflict
}

// ListUsers pages through the users table ordered by creation.
func (s *SQLiteStore) ListUsers(ctx context.Context, page, perPage int) ([]identity.User, error) {
	if page < 1 {
		page = 1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, email FROM users ORDER BY created_at, id LIMIT ? OFFSET ?`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, storageErr("list_users", err)
	}
	defer rows.Close()

	var out []identity.User
	for rows.Next() {
		var u identity.User
		if err := rows.Scan(&u.ID, &u.Email); err != nil {
			return nil, storageErr("list_users", err)
		}
		out = append(out, u)
	}
	return out, storageErr("list_users", rows.Err())
}

// AddUser registers one directory user. A duplicate email is an error.
func (s *SQLiteStore) AddUser(ctx context.Context, email string) (identity.User, error) {
	u := identity.User{ID: uuid.NewString(), Email: email}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users(id, email, created_at) VALUES(?, ?, ?)`, u.ID, u.Email, s.now().UTC())
	if err != nil {
		return identity.User{}, storageErr("add_user", err)
	}
	return u, nil
}

// SeedUsers makes sure every email has a directory entry. Existing users
// keep their ids.
func (s *SQLiteStore) SeedUsers(ctx context.Context, emails []string) error {
	for _, email := range emails {
		_, err := s.db.ExecContext(ctx, `INSERT INTO users(id, email, created_at) VALUES(?, ?, ?)
			ON CONFLICT(email) DO NOTHING`, uuid.NewString(), email, s.now().UTC())
		if err != nil {
			return storageErr("seed_users", err)
		}
	}
	return nil
}

// Project is a full row. Only tests read whole rows.
type Project struct {
	ID         string
	UserID     *string
	Name       string
	Location   *string
	CapacityMW *float64
	Stage      *string
	Status     string
	Overall    *int
	Scores     model.CategoryScores
	Fields     model.RawFields
}

// GetProject reads a full project row for inspection in tests.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (Project, error) {
	p := Project{ID: id, Scores: model.NewCategoryScores(), Fields: model.RawFields{}}
	var (
		raw        = make([]sql.NullInt64, len(model.Categories))
		overall    sql.NullInt64
		fieldsJSON string
	)
	cols := make([]string, len(model.Categories))
	dest := []any{&p.UserID, &p.Name, &p.Location, &p.CapacityMW, &p.Stage, &p.Status, &overall, &fieldsJSON}
	for i, c := range model.Categories {
		cols[i] = c.Column()
		dest = append(dest, &raw[i])
	}
	q := `SELECT user_id, name, location, capacity_mw, stage, status, score_overall, tally_fields, ` +
		strings.Join(cols, ", ") + ` FROM projects WHERE id = ?`
	err := s.db.QueryRowContext(ctx, q, id).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, storageErr("get_project", err)
	}
	if overall.Valid {
		v := int(overall.Int64)
		p.Overall = &v
	}
	for i, c := range model.Categories {
		if raw[i].Valid {
			p.Scores[c] = int(raw[i].Int64)
		}
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &p.Fields); err != nil {
		return Project{}, fmt.Errorf("decode fields: %w", err)
	}
	return p, nil
}

func nullableScore(v int) any {
	if v < 0 {
		return nil
	}
	return v
}
