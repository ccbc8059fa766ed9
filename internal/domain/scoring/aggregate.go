package scoring

import "github.com/okian/tallyscore/internal/domain/model"

// Aggregate applies score to cat on a copy of prior and returns the updated
// scores with the rounded mean of every scored category. The mean is nil when
// nothing is scored.
func Aggregate(prior model.CategoryScores, cat model.Category, score int) (model.CategoryScores, *int) {
	next := prior.Clone()
	next[cat] = score

	sum, n := 0, 0
	for _, c := range model.Categories {
		if s := next[c]; s >= 0 {
			sum += s
			n++
		}
	}
	if n == 0 {
		return next, nil
	}
	overall := roundInt(float64(sum) / float64(n))
	return next, &overall
}
