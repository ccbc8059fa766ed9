package testsubmissions

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
	"github.com/okian/tallyscore/internal/domain/category"
	"github.com/okian/tallyscore/internal/domain/model"
)

// Webhook paths and field types.
const (
	PathIntake   = "/tally-intake"
	PathCategory = "/tally-category"

	typeHidden = "HIDDEN_FIELDS"
	typeText   = "INPUT_TEXT"
	typeChoice = "MULTIPLE_CHOICE"
)

// CategoryForms maps each category name to the form id it is scored from.
var CategoryForms = categoryForms()

func categoryForms() map[string]string {
	out := make(map[string]string, len(model.Categories))
	for _, c := range model.Categories {
		if id, ok := category.FormID(c); ok {
			out[string(c)] = id
		}
	}
	return out
}

var (
	goodAnswers = []string{"Complete", "Approved by the utility", "Signed in March", "Yes, attached"}
	weakAnswers = []string{"no", "None", "TBD", "pending", "n/a"}
	stages      = []string{"Development", "Construction", "Operation"}
)

func randomInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func pick(xs []string) string { return xs[randomInt(len(xs))] }

func field(label, typ string, value any) map[string]any {
	return map[string]any{
		"key":   "question_" + uuid.NewString()[:8],
		"label": label,
		"type":  typ,
		"value": value,
	}
}

func envelope(formID string, fields []map[string]any) map[string]any {
	return map[string]any{
		"eventId":   uuid.NewString(),
		"eventType": "FORM_RESPONSE",
		"data": map[string]any{
			"responseId":   uuid.NewString(),
			"respondentId": uuid.NewString(),
			"formId":       formID,
			"fields":       fields,
		},
	}
}

// NewIntake generates an intake submission for email.
func NewIntake(email string) Submission {
	fields := []map[string]any{
		field("email", typeHidden, email),
		field("Project Name", typeText, "Project "+uuid.NewString()[:6]),
		field("Location", typeText, "Sevilla"),
		field("Capacity MWp", "INPUT_NUMBER", float64(10+randomInt(90))),
		field("Stage", typeText, pick(stages)),
	}
	return Submission{Path: PathIntake, Payload: envelope("intake", fields)}
}

// NewCategory generates a category submission with questions answered at
// random: blank, weak or informative.
func NewCategory(name, projectID, email string, questions int) Submission {
	fields := []map[string]any{
		field("project_id", typeHidden, projectID),
		field("email", typeHidden, email),
	}
	for i := range questions {
		label := "Question " + string(rune('A'+i))
		switch randomInt(4) {
		case 0:
			fields = append(fields, field(label, typeText, nil))
		case 1:
			fields = append(fields, field(label, typeText, pick(weakAnswers)))
		case 2:
			f := field(label, typeChoice, []any{"opt-yes"})
			f["options"] = []map[string]any{{"id": "opt-yes", "text": "Yes, in place"}, {"id": "opt-no", "text": "No"}}
			fields = append(fields, f)
		default:
			fields = append(fields, field(label, typeText, pick(goodAnswers)))
		}
	}
	return Submission{Path: PathCategory, Category: name, Payload: envelope(CategoryForms[name], fields)}
}
