// Package category maps follow-up form identifiers to scoring categories.
package category

import (
	"errors"
	"fmt"

	"github.com/okian/tallyscore/internal/domain/model"
)

// ErrUnknownForm is returned for a missing or unmapped form identifier.
var ErrUnknownForm = errors.New("unknown form id")

// byFormID is the fixed form identifier table.
var byFormID = map[string]model.Category{
	"1ArXEg": model.CategoryDesign,
	"0QEdP9": model.CategoryConstruct,
	"D4VBel": model.CategoryContract,
	"Gxr6Le": model.CategoryIntercon,
	"rjl5Vo": model.CategoryFinancial,
	"xXdr2d": model.CategoryPermit,
}

// Resolve returns the category scored by formID.
func Resolve(formID string) (model.Category, error) {
	if c, ok := byFormID[formID]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownForm, formID)
}

// FormID returns the form identifier of c. Used by tooling that builds
// submissions; ok is false for an unknown category.
func FormID(c model.Category) (string, bool) {
	for id, cat := range byFormID {
		if cat == c {
			return id, true
		}
	}
	return "", false
}
