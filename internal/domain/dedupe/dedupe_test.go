package dedupe_test

import (
	"context"
	"sync"
	"testing"

	"github.com/okian/tallyscore/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))

		Convey("When a key is seen for the first time", func() {
			state, resp := d.Begin(ctx, "intake:r1")

			Convey("Then it is reserved for the caller", func() {
				So(state, ShouldEqual, dedupe.StateNew)
				So(resp, ShouldBeNil)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And a second delivery sees it in flight", func() {
				state, _ := d.Begin(ctx, "intake:r1")
				So(state, ShouldEqual, dedupe.StateInFlight)
			})

			Convey("And after completion the response is replayed", func() {
				d.Complete(ctx, "intake:r1", []byte(`{"ok":true}`))
				state, resp := d.Begin(ctx, "intake:r1")
				So(state, ShouldEqual, dedupe.StateDone)
				So(string(resp), ShouldEqual, `{"ok":true}`)
			})

			Convey("And after forgetting it can be retried", func() {
				d.Forget(ctx, "intake:r1")
				So(d.Size(), ShouldEqual, 0)
				state, _ := d.Begin(ctx, "intake:r1")
				So(state, ShouldEqual, dedupe.StateNew)
			})
		})

		Convey("When more keys than the limit arrive", func() {
			d.Begin(ctx, "a")
			d.Begin(ctx, "b")
			d.Begin(ctx, "c")

			Convey("Then the oldest key is evicted", func() {
				So(d.Size(), ShouldEqual, 2)
				state, _ := d.Begin(ctx, "a")
				So(state, ShouldEqual, dedupe.StateNew)
			})
		})
	})

	Convey("Given concurrent deliveries of one key", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			owners int
		)
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if state, _ := d.Begin(ctx, "category:r9"); state == dedupe.StateNew {
					mu.Lock()
					owners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one of them owns it", func() {
			So(owners, ShouldEqual, 1)
		})
	})
}
