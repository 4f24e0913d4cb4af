package validator

import (
	"testing"

	govalidator "github.com/go-playground/validator/v10"

	"github.com/testhub/testhub-backend/internal/model"
)

func newValidate(t *testing.T) *govalidator.Validate {
	t.Helper()
	v := govalidator.New()
	v.SetTagName("binding")
	if err := Register(v); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return v
}

func TestEnumValidators(t *testing.T) {
	v := newValidate(t)

	tests := []struct {
		name   string
		entry  model.DistributionEntry
		fields []string
	}{
		{"valid", model.DistributionEntry{QuestionType: model.QuestionTypeEssay, QuestionFormat: model.QuestionFormatApplying, Quantity: 2}, nil},
		{"bad type", model.DistributionEntry{QuestionType: "TRUE_FALSE", QuestionFormat: model.QuestionFormatApplying, Quantity: 1}, []string{"question_type"}},
		{"bad format", model.DistributionEntry{QuestionType: model.QuestionTypeEssay, QuestionFormat: "RECALL", Quantity: 1}, []string{"question_format"}},
		{"negative quantity", model.DistributionEntry{QuestionType: model.QuestionTypeEssay, QuestionFormat: model.QuestionFormatApplying, Quantity: -1}, []string{"quantity"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.entry)
			if len(tt.fields) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			fields := TranslateErrors(err)
			for _, f := range tt.fields {
				if fields[f] == "" {
					t.Fatalf("missing error for %q in %v", f, fields)
				}
			}
		})
	}
}

func TestSelectionModeValidator(t *testing.T) {
	v := newValidate(t)
	req := model.CreateExamRequest{
		Title:           "Midterm",
		DurationMinutes: 60,
		SelectionMode:   "LOTTERY",
	}
	fields := TranslateErrors(v.Struct(req))
	if fields["selection_mode"] == "" {
		t.Fatalf("expected selection_mode error, got %v", fields)
	}
}
