package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/okian/tallyscore/internal/adapters/repository"
	"github.com/okian/tallyscore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeREST mimics the subset of PostgREST and the auth admin API the store uses.
type fakeREST struct {
	t        *testing.T
	rows     map[string]map[string]any
	lastBody map[string]any
	lastPath string
	users    []map[string]string
	fail     bool
}

func newFakeREST(t *testing.T) (*fakeREST, *httptest.Server) {
	f := &fakeREST{t: t, rows: map[string]map[string]any{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeREST) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != "svc-key" || r.Header.Get("Authorization") != "Bearer svc-key" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid API key"}`))
		return
	}
	if f.fail {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"relation \"projects\" does not exist","code":"42P01"}`))
		return
	}
	f.lastPath = r.URL.RawQuery
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/auth/v1/admin/users":
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		per, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		start := (page - 1) * per
		out := []map[string]string{}
		if start < len(f.users) {
			out = f.users[start:min(start+per, len(f.users))]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"users": out, "aud": "authenticated"})

	case r.URL.Path == "/rest/v1/projects" && r.Method == http.MethodPost:
		body := f.decode(r)
		id := "p-" + strconv.Itoa(len(f.rows)+1)
		body["id"] = id
		f.rows[id] = body
		_ = json.NewEncoder(w).Encode([]map[string]any{body})

	case r.URL.Path == "/rest/v1/projects" && r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(f.match(r))

	case r.URL.Path == "/rest/v1/projects" && r.Method == http.MethodPatch:
		body := f.decode(r)
		matched := f.match(r)
		for _, row := range matched {
			for k, v := range body {
				row[k] = v
			}
		}
		_ = json.NewEncoder(w).Encode(matched)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeREST) decode(r *http.Request) map[string]any {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		f.t.Errorf("bad body: %v", err)
	}
	f.lastBody = body
	return body
}

// match applies eq./is.null filters from the query string.
func (f *fakeREST) match(r *http.Request) []map[string]any {
	out := []map[string]any{}
	for _, row := range f.rows {
		ok := true
		for key, vals := range r.URL.Query() {
			if key == "select" {
				continue
			}
			cond := vals[0]
			switch {
			case cond == "is.null":
				ok = ok && row[key] == nil
			case strings.HasPrefix(cond, "eq."):
				ok = ok && row[key] != nil && toString(row[key]) == strings.TrimPrefix(cond, "eq.")
			}
		}
		if ok {
			out = append(out, row)
		}
	}
	return out
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func TestRESTStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given a REST store against a fake backend", t, func() {
		fake, srv := newFakeREST(t)
		s, err := repository.NewRESTStore(srv.URL+"/", "svc-key", repository.WithTimeout(2*time.Second))
		So(err, ShouldBeNil)

		Convey("When inserting a project", func() {
			id, err := s.InsertProject(ctx, model.NewProject{
				UserID: strp("user-1"),
				Name:   "New Project",
				Status: model.ProjectStatusInProgress,
				Fields: model.RawFields{"name": nil},
			})

			Convey("Then the database id is returned and the row shape is sent", func() {
				So(err, ShouldBeNil)
				So(id, ShouldEqual, "p-1")
				So(fake.lastBody["user_id"], ShouldEqual, "user-1")
				So(fake.lastBody["status"], ShouldEqual, "in-progress")
				So(fake.lastBody["capacity_mw"], ShouldBeNil)
			})

			Convey("And its scores read back as unscored", func() {
				ps, err := s.ProjectScores(ctx, id, "user-1")
				So(err, ShouldBeNil)
				So(ps.Scores[model.CategoryDesign], ShouldEqual, model.Unscored)
			})

			Convey("And a conditional update lands once", func() {
				ps, _ := s.ProjectScores(ctx, id, "user-1")
				overall := 50
				u := model.CategoryUpdate{
					ProjectID: id, UserID: "user-1", Category: model.CategoryFinancial, Score: 50,
					Overall: &overall, Prior: ps.Scores, Fields: model.RawFields{}, UpdatedAt: time.Now(),
				}
				So(s.UpdateCategory(ctx, u), ShouldBeNil)
				So(fake.lastPath, ShouldContainSubstring, "score_design=is.null")
				So(fake.rows[id]["score_financial"], ShouldEqual, float64(50))
				So(fake.rows[id]["score_overall"], ShouldEqual, float64(50))

				Convey("And replaying it with stale scores is a conflict", func() {
					u.Category = model.CategoryPermit
					err := s.UpdateCategory(ctx, u)
					So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
				})
			})

			Convey("And an update for another owner is not found", func() {
				err := s.UpdateCategory(ctx, model.CategoryUpdate{
					ProjectID: id, UserID: "someone-else", Category: model.CategoryDesign, Score: 1,
					Prior: model.NewCategoryScores(), UpdatedAt: time.Now(),
				})
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When listing users", func() {
			fake.users = []map[string]string{
				{"id": "u1", "email": "a@example.com"},
				{"id": "u2", "email": "b@example.com"},
			}
			users, err := s.ListUsers(ctx, 1, 1000)

			Convey("Then the page is decoded", func() {
				So(err, ShouldBeNil)
				So(len(users), ShouldEqual, 2)
				So(users[1].Email, ShouldEqual, "b@example.com")
			})
		})

		Convey("When the backend reports an error", func() {
			fake.fail = true
			_, err := s.InsertProject(ctx, model.NewProject{Name: "x"})

			Convey("Then its message is passed through", func() {
				var se *repository.StorageError
				So(errors.As(err, &se), ShouldBeTrue)
				So(se.Status, ShouldEqual, http.StatusInternalServerError)
				So(err.Error(), ShouldEqual, `relation "projects" does not exist`)
			})
		})
	})

	Convey("Given missing settings", t, func() {
		_, err := repository.NewRESTStore("", "k")
		So(errors.Is(err, repository.ErrMissingSetting), ShouldBeTrue)
		_, err = repository.NewRESTStore("http://x", "")
		So(errors.Is(err, repository.ErrMissingSetting), ShouldBeTrue)
	})
}
