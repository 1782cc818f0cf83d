package validation

import (
	"testing"

	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
)

func goodMetrics() ImageQualityMetrics {
	return ImageQualityMetrics{
		Width:        1600,
		Height:       1200,
		LaplacianVar: 800.0,
		Brightness:   170.0,
		Contrast:     60.0,
	}
}

func issueTypes(issues []models.QualityIssue) map[string]bool {
	types := make(map[string]bool)
	for _, i := range issues {
		types[i.Type] = true
	}
	return types
}

func TestNewQualityValidator(t *testing.T) {
	validator := NewQualityValidator()
	if validator == nil {
		t.Fatal("Expected non-nil quality validator")
	}

	expected := DefaultQualityThresholds().MinLaplacianVariance
	if validator.thresholds.MinLaplacianVariance != expected {
		t.Errorf("Expected MinLaplacianVariance to be %f, got %f", expected, validator.thresholds.MinLaplacianVariance)
	}
}

func TestNewQualityValidatorWithThresholds(t *testing.T) {
	validator := NewQualityValidatorWithThresholds(QualityThresholds{MinLaplacianVariance: 500.0})
	if validator.thresholds.MinLaplacianVariance != 500.0 {
		t.Errorf("Expected custom MinLaplacianVariance to be 500.0, got %f", validator.thresholds.MinLaplacianVariance)
	}
}

func TestValidate_GoodImage(t *testing.T) {
	issues := NewQualityValidator().Validate(goodMetrics())
	if len(issues) > 0 {
		t.Errorf("Expected no quality issues for a good image, got: %v", issues)
	}
}

func TestValidate_Issues(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(m *ImageQualityMetrics)
		expected string
		critical bool
	}{
		{"blurry", func(m *ImageQualityMetrics) { m.LaplacianVar = 10 }, "blurriness", true},
		{"noisy", func(m *ImageQualityMetrics) { m.LaplacianVar = 9000 }, "noise", false},
		{"too dark", func(m *ImageQualityMetrics) { m.Brightness = 30 }, "too_dark", true},
		{"too bright", func(m *ImageQualityMetrics) { m.Brightness = 250 }, "too_bright", true},
		{"flat", func(m *ImageQualityMetrics) { m.Contrast = 5 }, "low_contrast", false},
		{"small", func(m *ImageQualityMetrics) { m.Width, m.Height = 200, 150 }, "low_resolution", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := goodMetrics()
			tt.modify(&m)

			issues := NewQualityValidator().Validate(m)

			if len(issues) != 1 {
				t.Fatalf("Expected exactly one issue, got %d: %v", len(issues), issues)
			}
			if issues[0].Type != tt.expected {
				t.Errorf("Expected issue %s, got %s", tt.expected, issues[0].Type)
			}
			if HasCriticalIssues(issues) != tt.critical {
				t.Errorf("Expected critical=%v for %s", tt.critical, tt.expected)
			}
		})
	}
}

func TestValidate_MultipleIssues(t *testing.T) {
	m := ImageQualityMetrics{Width: 100, Height: 100, LaplacianVar: 0, Brightness: 10, Contrast: 0}

	types := issueTypes(NewQualityValidator().Validate(m))

	for _, want := range []string{"blurriness", "too_dark", "low_contrast", "low_resolution"} {
		if !types[want] {
			t.Errorf("Expected issue %s to be reported", want)
		}
	}
}

func TestConvertIssuesToMessages(t *testing.T) {
	issues := []models.QualityIssue{{Message: "a"}, {Message: "b"}}
	messages := ConvertIssuesToMessages(issues)
	if len(messages) != 2 || messages[0] != "a" || messages[1] != "b" {
		t.Errorf("Expected [a b], got %v", messages)
	}
}
