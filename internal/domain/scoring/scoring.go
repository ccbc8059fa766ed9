// Package scoring computes completeness and quality scores for category forms.
package scoring

import (
	"math"
	"strings"
	"unicode/utf16"

	"github.com/okian/tallyscore/internal/domain/fields"
	"github.com/okian/tallyscore/internal/domain/model"
)

// Score weights and bounds.
const (
	completenessWeight = 70
	qualityWeight      = 30
	maxScoreValue      = 100
	minAnswerLength    = 3
)

// DefaultLowQualityPhrases are whole answers that do not count as informative.
var DefaultLowQualityPhrases = []string{
	"no",
	"none",
	"not started",
	"unknown",
	"n/a",
	"tbd",
	"pending",
	"not applicable",
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithLowQualityPhrases replaces the low-quality phrase set. Matching is on
// the whole trimmed answer, case-insensitive. An empty list keeps the default.
func WithLowQualityPhrases(phrases []string) Option {
	return func(c *Calculator) {
		if len(phrases) == 0 {
			return
		}
		c.lowQuality = phraseSet(phrases)
	}
}

// Breakdown is the result of scoring one submission.
type Breakdown struct {
	Total        int
	Answered     int
	HighQuality  int
	Completeness int
	QualityBonus int
	Score        int
}

// Calculator scores the visible fields of a submission. It is safe for
// concurrent use once built.
type Calculator struct {
	lowQuality map[string]struct{}
}

// NewCalculator creates a calculator with configuration options.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{lowQuality: phraseSet(DefaultLowQualityPhrases)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Score computes the 0-100 score of fs. Hidden fields are ignored.
func (c *Calculator) Score(fs []model.Field) Breakdown {
	var b Breakdown
	for _, f := range fs {
		if f.Hidden() {
			continue
		}
		b.Total++
		v := fields.Resolve(f)
		if v == nil || *v == "" {
			continue
		}
		b.Answered++
		if c.informative(*v) {
			b.HighQuality++
		}
	}

	if b.Total > 0 {
		b.Completeness = roundInt(float64(b.Answered) / float64(b.Total) * completenessWeight)
	}
	if b.Answered > 0 {
		b.QualityBonus = roundInt(float64(b.HighQuality) / float64(b.Answered) * qualityWeight)
	}
	b.Score = min(maxScoreValue, b.Completeness+b.QualityBonus)
	return b
}

// informative reports whether an answer counts towards the quality bonus.
func (c *Calculator) informative(answer string) bool {
	a := strings.TrimSpace(answer)
	if answerLength(a) < minAnswerLength {
		return false
	}
	_, low := c.lowQuality[strings.ToLower(a)]
	return !low
}

// answerLength counts UTF-16 code units, so a character outside the basic
// multilingual plane counts as two.
func answerLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

func phraseSet(phrases []string) map[string]struct{} {
	set := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			set[p] = struct{}{}
		}
	}
	return set
}

func roundInt(x float64) int { return int(math.Round(x)) }
