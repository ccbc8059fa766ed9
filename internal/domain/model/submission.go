// Package model contains domain models passed between layers.
package model

// HiddenFieldType marks fields filled from URL parameters instead of answers.
const HiddenFieldType = "HIDDEN_FIELDS"

// Option is one selectable choice of a multiple-choice field.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Field is one answered question of a form submission.
// Value holds the decoded JSON value: nil, string, float64, bool or []any.
type Field struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Type    string   `json:"type"`
	Value   any      `json:"value"`
	Options []Option `json:"options,omitempty"`
}

// Hidden reports whether the field was passed as a hidden field.
func (f Field) Hidden() bool { return f.Type == HiddenFieldType }

// PayloadData is the "data" envelope of a webhook delivery.
type PayloadData struct {
	Fields       []Field `json:"fields"`
	FormID       string  `json:"formId,omitempty"`
	ResponseID   string  `json:"responseId,omitempty"`
	RespondentID string  `json:"respondentId,omitempty"`
}

// Payload is the body of an inbound webhook.
type Payload struct {
	Data   PayloadData `json:"data"`
	FormID string      `json:"formId,omitempty"`
}

// EffectiveFormID returns data.formId, falling back to the top-level formId.
func (p Payload) EffectiveFormID() string {
	if p.Data.FormID != "" {
		return p.Data.FormID
	}
	return p.FormID
}
