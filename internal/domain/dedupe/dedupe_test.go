package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pickem/internal/domain/dedupe"
)

func TestDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new deduper", t, func() {
		d := dedupe.New()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a message is delivered twice", func() {
			first := d.SeenAndRecord(ctx, "n-1")
			second := d.SeenAndRecord(ctx, "n-1")

			Convey("Then only the first delivery is new", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a message is forgotten", func() {
			d.SeenAndRecord(ctx, "n-1")
			d.Forget(ctx, "n-1")
			d.Forget(ctx, "never-seen")

			Convey("Then it can be delivered again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "n-1"), ShouldBeFalse)
			})
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.New(dedupe.WithMaxSize(3))
		for i := 1; i <= 4; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("n-%d", i))
		}

		Convey("Then the oldest ID is evicted first", func() {
			So(d.Size(), ShouldEqual, 3)
			So(d.SeenAndRecord(ctx, "n-4"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "n-2"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "n-1"), ShouldBeFalse)
		})

		Convey("Then forgetting the tail keeps the list consistent", func() {
			d.Forget(ctx, "n-2")
			d.SeenAndRecord(ctx, "n-5")
			d.SeenAndRecord(ctx, "n-6")
			So(d.Size(), ShouldEqual, 3)
			So(d.SeenAndRecord(ctx, "n-6"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "n-5"), ShouldBeTrue)
		})
	})

	Convey("Given concurrent deliveries of the same IDs", t, func() {
		d := dedupe.New(dedupe.WithMaxSize(0))
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("n-%d", i)) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each ID is new exactly once", func() {
			So(fresh, ShouldEqual, 100)
			So(d.Size(), ShouldEqual, 100)
		})
	})
}
