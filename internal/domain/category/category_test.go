package category_test

import (
	"errors"
	"testing"

	"github.com/okian/tallyscore/internal/domain/category"
	"github.com/okian/tallyscore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestResolve(t *testing.T) {
	Convey("Given the fixed form table", t, func() {
		Convey("When resolving a known form id", func() {
			c, err := category.Resolve("1ArXEg")

			Convey("Then the category is returned", func() {
				So(err, ShouldBeNil)
				So(c, ShouldEqual, model.CategoryDesign)
			})
		})

		Convey("When resolving an unknown form id", func() {
			_, err := category.Resolve("ZZZZZZ")

			Convey("Then ErrUnknownForm is returned", func() {
				So(errors.Is(err, category.ErrUnknownForm), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "ZZZZZZ")
			})
		})

		Convey("When the form id is empty", func() {
			_, err := category.Resolve("")
			So(errors.Is(err, category.ErrUnknownForm), ShouldBeTrue)
		})

		Convey("Then every category has exactly one form", func() {
			for _, c := range model.Categories {
				id, ok := category.FormID(c)
				So(ok, ShouldBeTrue)
				back, err := category.Resolve(id)
				So(err, ShouldBeNil)
				So(back, ShouldEqual, c)
			}
		})
	})
}
