package validation

import (
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
)

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// QualityThresholds defines configurable thresholds for quality validation
type QualityThresholds struct {
	// Sharpness thresholds
	MinLaplacianVariance float64
	MaxLaplacianVariance float64

	// Mean luminance bounds (0-255)
	MinBrightness float64
	MaxBrightness float64

	// Minimum luminance standard deviation
	MinContrast float64

	// Resolution thresholds
	MinWidth  int
	MinHeight int
}

// DefaultQualityThresholds returns thresholds tuned for phone photos of printed boards.
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		MinLaplacianVariance: 50.0,
		MaxLaplacianVariance: 6000.0,
		MinBrightness:        60.0,
		MaxBrightness:        235.0,
		MinContrast:          20.0,
		MinWidth:             400,
		MinHeight:            300,
	}
}

// QualityValidator turns image metrics into user-facing quality issues
type QualityValidator struct {
	thresholds QualityThresholds
}

// NewQualityValidator creates a new quality validator with default thresholds
func NewQualityValidator() *QualityValidator {
	return &QualityValidator{
		thresholds: DefaultQualityThresholds(),
	}
}

// NewQualityValidatorWithThresholds creates a quality validator with custom thresholds
func NewQualityValidatorWithThresholds(thresholds QualityThresholds) *QualityValidator {
	return &QualityValidator{
		thresholds: thresholds,
	}
}

// ImageQualityMetrics represents the metrics needed for quality validation
type ImageQualityMetrics struct {
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	LaplacianVar float64 `json:"laplacian_variance"`
	Brightness   float64 `json:"brightness"`
	Contrast     float64 `json:"contrast"`
}

// Validate reports every threshold the metrics fall outside of. Issues
// never block an extraction; they explain low confidence.
func (qv *QualityValidator) Validate(metrics ImageQualityMetrics) []models.QualityIssue {
	var issues []models.QualityIssue

	// 1. Sharpness
	if metrics.LaplacianVar < qv.thresholds.MinLaplacianVariance {
		issues = append(issues, models.QualityIssue{
			Type:        "blurriness",
			Message:     "Image is blurry. Digits may be misread; hold the camera steady.",
			Severity:    SeverityError,
			ActualValue: metrics.LaplacianVar,
			Threshold:   qv.thresholds.MinLaplacianVariance,
		})
	} else if metrics.LaplacianVar > qv.thresholds.MaxLaplacianVariance {
		issues = append(issues, models.QualityIssue{
			Type:        "noise",
			Message:     "Image is very noisy. Avoid digital zoom and low light.",
			Severity:    SeverityWarning,
			ActualValue: metrics.LaplacianVar,
			Threshold:   qv.thresholds.MaxLaplacianVariance,
		})
	}

	// 2. Brightness
	if metrics.Brightness < qv.thresholds.MinBrightness {
		issues = append(issues, models.QualityIssue{
			Type:        "too_dark",
			Message:     "Image is too dark. Take the photo in more light.",
			Severity:    SeverityError,
			ActualValue: metrics.Brightness,
			Threshold:   qv.thresholds.MinBrightness,
		})
	} else if metrics.Brightness > qv.thresholds.MaxBrightness {
		issues = append(issues, models.QualityIssue{
			Type:        "too_bright",
			Message:     "Image is too bright. Avoid glare and flash on the board.",
			Severity:    SeverityError,
			ActualValue: metrics.Brightness,
			Threshold:   qv.thresholds.MaxBrightness,
		})
	}

	// 3. Contrast
	if metrics.Contrast < qv.thresholds.MinContrast {
		issues = append(issues, models.QualityIssue{
			Type:        "low_contrast",
			Message:     "Image has little contrast. Table rules may not be detected.",
			Severity:    SeverityWarning,
			ActualValue: metrics.Contrast,
			Threshold:   qv.thresholds.MinContrast,
		})
	}

	// 4. Resolution
	if metrics.Width < qv.thresholds.MinWidth || metrics.Height < qv.thresholds.MinHeight {
		issues = append(issues, models.QualityIssue{
			Type:        "low_resolution",
			Message:     "Image is too small. Photograph the board from closer.",
			Severity:    SeverityWarning,
			ActualValue: float64(metrics.Width * metrics.Height),
			Threshold:   float64(qv.thresholds.MinWidth * qv.thresholds.MinHeight),
		})
	}

	return issues
}

// ConvertIssuesToMessages converts quality issues to plain messages
func ConvertIssuesToMessages(issues []models.QualityIssue) []string {
	var messages []string
	for _, issue := range issues {
		messages = append(messages, issue.Message)
	}
	return messages
}

// HasCriticalIssues checks if there are any critical (error severity) issues
func HasCriticalIssues(issues []models.QualityIssue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}
