package ocr

import (
	"context"
	"errors"
	"image"
	"math"
	"time"

	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
)

var (
	// ErrEngineUnavailable means the recognizer could not be initialized.
	ErrEngineUnavailable = errors.New("ocr engine unavailable")
	// ErrRecognitionTimeout means a call did not finish within its deadline.
	ErrRecognitionTimeout = errors.New("ocr recognition timeout")
	// ErrRecognitionFailed covers any other recognizer error.
	ErrRecognitionFailed = errors.New("ocr recognition failed")
)

const (
	// DigitWhitelist holds the characters of times and fleet numbers.
	DigitWhitelist = "0123456789:"
	// ScheduleWhitelist adds the letters of the meal break marker, with and
	// without diacritics, so those rows can be recognized and skipped.
	ScheduleWhitelist = DigitWhitelist + "ACEFIORÃÇ"
)

// Word is a recognized word with its own confidence.
type Word struct {
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

// Recognition is the output of one OCR call. Confidence is 0-100.
type Recognition struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	Words      []Word        `json:"words,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Engine recognizes text in an image.
type Engine interface {
	ID() models.EngineID
	Recognize(ctx context.Context, img image.Image) (Recognition, error)
	Close() error
}

// ClampConfidence bounds a score already on the 0-100 scale.
func ClampConfidence(v float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	return math.Min(100, v)
}

// FromFraction maps a 0-1 score onto 0-100.
func FromFraction(v float64) float64 {
	return ClampConfidence(v * 100)
}
