package models

import (
	"fmt"
	"image"
	"strings"
	"time"
)

// EngineID identifies the recognizer that produced a result.
type EngineID string

const (
	EngineTesseractBlock  EngineID = "tesseract_block"
	EngineTesseractLine   EngineID = "tesseract_line"
	EngineTesseractSparse EngineID = "tesseract_sparse"
	// EngineEnsemble marks a result built by fusing several engine results.
	EngineEnsemble EngineID = "ensemble"
)

var engineDisplayNames = map[EngineID]string{
	EngineTesseractBlock:  "Tesseract (block)",
	EngineTesseractLine:   "Tesseract (single line)",
	EngineTesseractSparse: "Tesseract (sparse text)",
	EngineEnsemble:        "Ensemble Fusion",
}

// RecognitionEngines lists the engines that can be run against an image.
func RecognitionEngines() []EngineID {
	return []EngineID{EngineTesseractBlock, EngineTesseractLine, EngineTesseractSparse}
}

// ParseEngineID converts a configuration string into an EngineID.
func ParseEngineID(s string) (EngineID, error) {
	id := EngineID(strings.ToLower(strings.TrimSpace(s)))
	if !id.IsRecognizer() {
		return "", fmt.Errorf("unknown OCR engine %q", s)
	}
	return id, nil
}

// IsRecognizer reports whether the id names a runnable engine.
func (id EngineID) IsRecognizer() bool {
	switch id {
	case EngineTesseractBlock, EngineTesseractLine, EngineTesseractSparse:
		return true
	}
	return false
}

// DisplayName returns the human readable engine name.
func (id EngineID) DisplayName() string {
	if name, ok := engineDisplayNames[id]; ok {
		return name
	}
	return string(id)
}

// ProcessingMethod describes how the text behind a result was obtained.
type ProcessingMethod string

const (
	MethodCellOCR      ProcessingMethod = "cell_ocr"
	MethodFullImageOCR ProcessingMethod = "full_image_ocr"
)

// CellBounds is an axis-aligned rectangle in image pixel coordinates.
type CellBounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect converts the bounds to an image.Rectangle.
func (b CellBounds) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Empty reports whether the cell has no area.
func (b CellBounds) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// ExtractionResult is one recognized (time, fleet) pair.
type ExtractionResult struct {
	FleetID          string           `json:"fleet_id"`
	TimeOfDay        string           `json:"time_of_day"`
	Confidence       float64          `json:"confidence"`
	Engine           EngineID         `json:"engine"`
	FusedCount       int              `json:"fused_count"`
	// Engines lists the distinct engines behind a fused result.
	Engines          []EngineID       `json:"engines,omitempty"`
	Coordinates      CellBounds       `json:"coordinates"`
	ProcessingMethod ProcessingMethod `json:"processing_method"`
	ValidationScore  float64          `json:"validation_score"`
}

// Key returns the fusion grouping key.
func (r ExtractionResult) Key() string {
	return r.TimeOfDay + "|" + r.FleetID
}

// SourceLabel renders the engine identity for display and export.
func (r ExtractionResult) SourceLabel() string {
	if r.Engine == EngineEnsemble || r.FusedCount > 1 {
		n := len(r.Engines)
		if n == 0 {
			n = r.FusedCount
		}
		unit := "engines"
		if n == 1 {
			unit = "engine"
		}
		return fmt.Sprintf("%s (%d %s)", EngineEnsemble.DisplayName(), n, unit)
	}
	return r.Engine.DisplayName()
}

// ExtractionStatus is the lifecycle state of an extraction.
type ExtractionStatus string

const (
	StatusQueued     ExtractionStatus = "queued"
	StatusProcessing ExtractionStatus = "processing"
	StatusCompleted  ExtractionStatus = "completed"
	StatusNoResults  ExtractionStatus = "no_results"
	StatusFailed     ExtractionStatus = "failed"
)

// TextAccuracy compares recognized text with a known expected text.
type TextAccuracy struct {
	WER            float64 `json:"word_error_rate"`
	CER            float64 `json:"character_error_rate"`
	ReferenceWords int     `json:"reference_words"`
}

// PassSummary records the outcome of one engine pass.
type PassSummary struct {
	Engine     EngineID         `json:"engine"`
	Method     ProcessingMethod `json:"method"`
	Results    int              `json:"results"`
	Cells      int              `json:"cells,omitempty"`
	FailedOCR  int              `json:"failed_ocr_calls,omitempty"`
	Error      string           `json:"error,omitempty"`
	DurationMs int64            `json:"duration_ms"`
	Accuracy   *TextAccuracy    `json:"accuracy,omitempty"`
}

// QualityIssue is a non-blocking warning about the input image.
type QualityIssue struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	Severity    string  `json:"severity"`
	ActualValue float64 `json:"actual_value,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// PersistenceOutcome records the result of writing results to the schedule store.
type PersistenceOutcome struct {
	Table    string     `json:"table"`
	Inserted int        `json:"inserted"`
	Error    string     `json:"error,omitempty"`
	At       *time.Time `json:"at,omitempty"`
}

// ExtractionReport is the full outcome of one extraction request.
type ExtractionReport struct {
	ID               string              `json:"id"`
	Status           ExtractionStatus    `json:"status"`
	Source           string              `json:"source,omitempty"`
	Message          string              `json:"message,omitempty"`
	Progress         int                 `json:"progress"`
	Results          []ExtractionResult  `json:"results"`
	Table            *TableStructure     `json:"table,omitempty"`
	Passes           []PassSummary       `json:"passes,omitempty"`
	QualityIssues    []QualityIssue      `json:"quality_issues,omitempty"`
	Persistence      *PersistenceOutcome `json:"persistence,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	ProcessingTimeMs int64               `json:"processing_time_ms"`
}
