package model

import "time"

// Category is one of the fixed evaluation dimensions of a project.
type Category string

// Known categories.
const (
	CategoryDesign    Category = "design"
	CategoryConstruct Category = "construct"
	CategoryContract  Category = "contract"
	CategoryIntercon  Category = "intercon"
	CategoryFinancial Category = "financial"
	CategoryPermit    Category = "permit"
)

// Categories lists every category in storage column order.
var Categories = []Category{
	CategoryDesign,
	CategoryConstruct,
	CategoryContract,
	CategoryIntercon,
	CategoryFinancial,
	CategoryPermit,
}

// Column returns the projects column holding this category's score.
func (c Category) Column() string { return "score_" + string(c) }

// Unscored marks a category without a score yet.
const Unscored = -1

// ProjectStatusInProgress is the status of a freshly created project.
const ProjectStatusInProgress = "in-progress"

// CategoryScores maps each category to its score or Unscored.
type CategoryScores map[Category]int

// NewCategoryScores returns scores with every category Unscored.
func NewCategoryScores() CategoryScores {
	s := make(CategoryScores, len(Categories))
	for _, c := range Categories {
		s[c] = Unscored
	}
	return s
}

// Clone returns an independent copy, filling missing categories with Unscored.
func (s CategoryScores) Clone() CategoryScores {
	out := NewCategoryScores()
	for c, v := range s {
		out[c] = v
	}
	return out
}

// Get returns the score for c, Unscored when absent.
func (s CategoryScores) Get(c Category) int {
	if v, ok := s[c]; ok {
		return v
	}
	return Unscored
}

// RawFields is the persisted snapshot of a normalized submission.
type RawFields map[string]*string

// NewProject is the row written by the intake handler.
type NewProject struct {
	UserID      *string
	Name        string
	Location    *string
	CapacityMW  *float64
	Stage       *string
	Status      string
	ResponseID  *string
	Fields      RawFields
	SubmittedAt time.Time
}

// ProjectScores is the part of a project the category handler reads.
type ProjectScores struct {
	ProjectID string
	UserID    string
	Scores    CategoryScores
	Fields    RawFields
}

// CategoryUpdate is the write issued by the category handler. Prior holds the
// scores read earlier in the same request; stores apply the update only while
// the row still carries them.
type CategoryUpdate struct {
	ProjectID string
	UserID    string
	Category  Category
	Score     int
	Overall   *int
	Prior     CategoryScores
	Fields    RawFields
	UpdatedAt time.Time
}
