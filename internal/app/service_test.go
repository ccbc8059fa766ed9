package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/tallyscore/internal/adapters/repository"
	service "github.com/okian/tallyscore/internal/app"
	"github.com/okian/tallyscore/internal/domain/category"
	"github.com/okian/tallyscore/internal/domain/dedupe"
	"github.com/okian/tallyscore/internal/domain/identity"
	"github.com/okian/tallyscore/internal/domain/model"
	"github.com/okian/tallyscore/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

type fakeStore struct {
	mu        sync.Mutex
	inserted  []model.NewProject
	updates   []model.CategoryUpdate
	existing  model.ProjectScores
	insertErr error
	readErr   error
	updateErr error
}

func (f *fakeStore) InsertProject(_ context.Context, p model.NewProject) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return "", f.insertErr
	}
	f.inserted = append(f.inserted, p)
	return "proj-1", nil
}

func (f *fakeStore) ProjectScores(_ context.Context, projectID, userID string) (model.ProjectScores, error) {
	if f.readErr != nil {
		return model.ProjectScores{}, f.readErr
	}
	ps := f.existing
	ps.ProjectID, ps.UserID = projectID, userID
	return ps, nil
}

func (f *fakeStore) UpdateCategory(_ context.Context, u model.CategoryUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, u)
	return nil
}

type fakeDirectory struct {
	users []identity.User
	err   error
}

func (d fakeDirectory) ListUsers(_ context.Context, page, perPage int) ([]identity.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	start := (page - 1) * perPage
	if start >= len(d.users) {
		return nil, nil
	}
	end := min(start+perPage, len(d.users))
	return d.users[start:end], nil
}

func text(label string, v any) model.Field {
	return model.Field{Label: label, Key: label, Type: "INPUT_TEXT", Value: v}
}

func hidden(label, v string) model.Field {
	return model.Field{Label: label, Key: label, Type: model.HiddenFieldType, Value: v}
}

func payload(formID, responseID string, fs ...model.Field) model.Payload {
	return model.Payload{Data: model.PayloadData{Fields: fs, FormID: formID, ResponseID: responseID}}
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(store *fakeStore, dir fakeDirectory, opts ...service.Option) *service.Service {
	opts = append(opts, service.WithClock(func() time.Time { return fixedNow }))
	return service.New(store, identity.NewResolver(dir), opts...)
}

func TestService_Intake(t *testing.T) {
	Convey("Given a service with a known user", t, func() {
		store := &fakeStore{}
		dir := fakeDirectory{users: []identity.User{{ID: "u-1", Email: "a@example.com"}}}
		svc := newService(store, dir)
		ctx := context.Background()

		Convey("When an intake names the project and carries the email", func() {
			res, err := svc.Intake(ctx, payload("intake", "resp-1",
				text("Project Name", "Solar One"),
				hidden("Email", "a@example.com"),
				text("Capacity", "12.5 MWp"),
				text("Project Location", "Sevilla"),
			))

			Convey("Then a project is created for that user", func() {
				So(err, ShouldBeNil)
				So(res, ShouldResemble, service.IntakeResult{OK: true, ProjectID: "proj-1"})
				So(store.inserted, ShouldHaveLength, 1)

				p := store.inserted[0]
				So(*p.UserID, ShouldEqual, "u-1")
				So(p.Name, ShouldEqual, "Solar One")
				So(*p.Location, ShouldEqual, "Sevilla")
				So(*p.CapacityMW, ShouldEqual, 12.5)
				So(p.Stage, ShouldBeNil)
				So(p.Status, ShouldEqual, model.ProjectStatusInProgress)
				So(*p.ResponseID, ShouldEqual, "resp-1")
				So(p.SubmittedAt, ShouldEqual, fixedNow)
				So(*p.Fields["project_name"], ShouldEqual, "Solar One")
				So(*p.Fields["Project Name"], ShouldEqual, "Solar One")
			})
		})

		Convey("When the respondent id is the only identity", func() {
			pl := payload("intake", "", text("Capacity", "0"))
			pl.Data.RespondentID = "a@example.com"
			_, err := svc.Intake(ctx, pl)

			Convey("Then it is looked up as an email and defaults apply", func() {
				So(err, ShouldBeNil)
				p := store.inserted[0]
				So(*p.UserID, ShouldEqual, "u-1")
				So(p.Name, ShouldEqual, defaultName)
				So(p.CapacityMW, ShouldBeNil)
				So(p.ResponseID, ShouldBeNil)
			})
		})

		Convey("When nobody can be identified", func() {
			_, err := svc.Intake(ctx, payload("intake", "r", text("Name", "X")))

			Convey("Then the submission is rejected", func() {
				So(errors.Is(err, identity.ErrIdentityUnresolved), ShouldBeTrue)
				So(err.Error(), ShouldEqual, "Cannot identify user")
				So(store.inserted, ShouldBeEmpty)
			})
		})

		Convey("When anonymous intake is allowed", func() {
			svc := newService(store, dir, service.WithIntakeAllowAnonymous(true))
			_, err := svc.Intake(ctx, payload("intake", "r", text("Name", "X")))

			Convey("Then the project is created without an owner", func() {
				So(err, ShouldBeNil)
				So(store.inserted[0].UserID, ShouldBeNil)
				So(store.inserted[0].Name, ShouldEqual, "X")
			})
		})

		Convey("When the store rejects the insert", func() {
			store.insertErr = &repository.StorageError{Op: "insert project", Status: 409, Err: errors.New("duplicate key value")}
			_, err := svc.Intake(ctx, payload("intake", "r", hidden("user_id", "u-1")))

			Convey("Then the store message is passed through", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldEqual, "duplicate key value")
				So(svc.GetStats()["failures"], ShouldEqual, int64(1))
			})
		})

		Convey("When the directory is unreachable", func() {
			svc := newService(store, fakeDirectory{err: errors.New("connection refused")})
			_, err := svc.Intake(ctx, payload("intake", "r", hidden("email", "a@example.com")))

			Convey("Then the failure is not treated as unknown identity", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, identity.ErrIdentityUnresolved), ShouldBeFalse)
				var re *service.RequestError
				So(errors.As(err, &re), ShouldBeFalse)
			})
		})
	})
}

const defaultName = "New Project"

func designSubmission(fs ...model.Field) model.Payload {
	base := []model.Field{
		hidden("project_id", "proj-9"),
		hidden("user_id", "u-1"),
		text("Drawings", "Yes, full set"),
		text("Approvals", "Approved"),
		text("Survey", "no"),
		text("Geotech", nil),
		text("Layout", "Complete"),
	}
	return payload("1ArXEg", "resp-d", append(base, fs...)...)
}

func TestService_TallyCategory(t *testing.T) {
	Convey("Given a project with a construct score", t, func() {
		scores := model.NewCategoryScores()
		scores[model.CategoryConstruct] = 70
		old := "old"
		store := &fakeStore{existing: model.ProjectScores{
			Scores: scores,
			Fields: model.RawFields{"legacy": &old, "survey": &old},
		}}
		svc := newService(store, fakeDirectory{})
		ctx := context.Background()

		Convey("When a design form is submitted", func() {
			res, err := svc.TallyCategory(ctx, designSubmission())

			Convey("Then the score and overall are written", func() {
				So(err, ShouldBeNil)
				So(res, ShouldResemble, service.CategoryResult{
					OK: true, Category: model.CategoryDesign, Score: 79, ProjectID: "proj-9",
				})
				So(store.updates, ShouldHaveLength, 1)

				u := store.updates[0]
				So(u.ProjectID, ShouldEqual, "proj-9")
				So(u.UserID, ShouldEqual, "u-1")
				So(u.Category, ShouldEqual, model.CategoryDesign)
				So(u.Score, ShouldEqual, 79)
				So(*u.Overall, ShouldEqual, 75)
				So(u.Prior[model.CategoryConstruct], ShouldEqual, 70)
				So(u.Prior[model.CategoryDesign], ShouldEqual, model.Unscored)
				So(u.UpdatedAt, ShouldEqual, fixedNow)
			})

			Convey("Then new fields overwrite the stored snapshot", func() {
				f := store.updates[0].Fields
				So(*f["legacy"], ShouldEqual, "old")
				So(*f["survey"], ShouldEqual, "no")
				So(f["geotech"], ShouldBeNil)
			})
		})

		Convey("When project_id is missing", func() {
			_, err := svc.TallyCategory(ctx, payload("1ArXEg", "", hidden("user_id", "u-1")))

			Convey("Then it is a validation error", func() {
				So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
				So(err.Error(), ShouldEqual, "Missing project_id")
			})
		})

		Convey("When the user cannot be identified", func() {
			_, err := svc.TallyCategory(ctx, payload("1ArXEg", "", hidden("project_id", "p")))

			Convey("Then the submission is rejected", func() {
				So(errors.Is(err, identity.ErrIdentityUnresolved), ShouldBeTrue)
				So(err.Error(), ShouldEqual, "Cannot identify user")
			})
		})

		Convey("When the form is unknown", func() {
			pl := designSubmission()
			pl.Data.FormID = "zzz"
			_, err := svc.TallyCategory(ctx, pl)

			Convey("Then the form id is reported", func() {
				So(errors.Is(err, category.ErrUnknownForm), ShouldBeTrue)
				So(err.Error(), ShouldEqual, "Unknown form ID: zzz")
				So(store.updates, ShouldBeEmpty)
			})
		})

		Convey("When the form id only appears at the top level", func() {
			pl := designSubmission()
			pl.Data.FormID = ""
			pl.FormID = "xXdr2d"
			res, err := svc.TallyCategory(ctx, pl)

			Convey("Then it selects the category", func() {
				So(err, ShouldBeNil)
				So(res.Category, ShouldEqual, model.CategoryPermit)
			})
		})

		Convey("When the project does not belong to the user", func() {
			store.readErr = repository.ErrNotFound
			_, err := svc.TallyCategory(ctx, designSubmission())

			Convey("Then it is reported as not found", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(err.Error(), ShouldEqual, "Project not found")
			})
		})

		Convey("When scores change between read and write", func() {
			store.updateErr = repository.ErrConflict
			_, err := svc.TallyCategory(ctx, designSubmission())

			Convey("Then a conflict is reported and counted", func() {
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
				So(svc.GetStats()["scoreConflicts"], ShouldEqual, int64(1))
			})
		})
	})
}

func TestService_Deliveries(t *testing.T) {
	Convey("Given a service", t, func() {
		svc := newService(&fakeStore{}, fakeDirectory{}, service.WithDedupeSize(10))
		ctx := context.Background()

		Convey("When a delivery is reserved", func() {
			state, _ := svc.BeginDelivery(ctx, service.HandlerIntake, "r1")
			So(state, ShouldEqual, dedupe.StateNew)

			Convey("Then a concurrent redelivery is in flight", func() {
				state, _ := svc.BeginDelivery(ctx, service.HandlerIntake, "r1")
				So(state, ShouldEqual, dedupe.StateInFlight)
			})

			Convey("Then the same id on the other handler is independent", func() {
				state, _ := svc.BeginDelivery(ctx, service.HandlerCategory, "r1")
				So(state, ShouldEqual, dedupe.StateNew)
			})

			Convey("Then a completed delivery replays its response", func() {
				svc.CompleteDelivery(ctx, service.HandlerIntake, "r1", []byte(`{"ok":true}`))
				state, resp := svc.BeginDelivery(ctx, service.HandlerIntake, "r1")
				So(state, ShouldEqual, dedupe.StateDone)
				So(string(resp), ShouldEqual, `{"ok":true}`)
				So(svc.GetStats()["duplicateDeliveries"], ShouldEqual, int64(1))
			})

			Convey("Then a forgotten delivery can be retried", func() {
				svc.ForgetDelivery(ctx, service.HandlerIntake, "r1")
				state, _ := svc.BeginDelivery(ctx, service.HandlerIntake, "r1")
				So(state, ShouldEqual, dedupe.StateNew)
				So(svc.Size(), ShouldEqual, int64(1))
			})
		})
	})
}
