package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/anime-shed/fleet-schedule-extractor/internal/fieldparse"
	"github.com/anime-shed/fleet-schedule-extractor/internal/logger"
	"github.com/anime-shed/fleet-schedule-extractor/internal/ocr"
	"github.com/anime-shed/fleet-schedule-extractor/internal/raster"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/sirupsen/logrus"
)

// PassInput is everything one engine pass reads. Image is the preprocessed
// image and must not be modified.
type PassInput struct {
	Image        *raster.Image
	Table        models.TableStructure
	ExpectedText string
}

// PassOutcome is what one engine pass produced.
type PassOutcome struct {
	Results   []models.ExtractionResult
	Text      string
	Cells     int
	FailedOCR int
	Accuracy  *models.TextAccuracy
}

// PassStrategy turns recognizer output into extraction results.
type PassStrategy interface {
	Method() models.ProcessingMethod
	// Run returns an error only when the pass as a whole failed. Individual
	// OCR failures count in FailedOCR and contribute no results.
	Run(ctx context.Context, engine ocr.Engine, in PassInput) (PassOutcome, error)
}

// ForMethod returns the strategy implementing method.
func ForMethod(method models.ProcessingMethod, workers int) (PassStrategy, error) {
	switch method {
	case models.MethodCellOCR:
		return NewCellStrategy(workers), nil
	case models.MethodFullImageOCR:
		return NewFullImageStrategy(), nil
	default:
		return nil, fmt.Errorf("unknown processing method %q", method)
	}
}

// ParseMethod converts a configuration string into a ProcessingMethod.
func ParseMethod(s string) (models.ProcessingMethod, error) {
	m := models.ProcessingMethod(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case models.MethodCellOCR, models.MethodFullImageOCR:
		return m, nil
	}
	return "", fmt.Errorf("unknown processing method %q", s)
}

type cellText struct {
	text       string
	confidence float64
	ok         bool
}

// CellStrategy recognizes every detected cell separately and pairs the time
// column with each fleet column of the same row.
type CellStrategy struct {
	workers int
}

// NewCellStrategy creates a cell strategy running at most workers OCR calls
// at a time.
func NewCellStrategy(workers int) *CellStrategy {
	return &CellStrategy{workers: workers}
}

func (s *CellStrategy) Method() models.ProcessingMethod {
	return models.MethodCellOCR
}

func (s *CellStrategy) Run(ctx context.Context, engine ocr.Engine, in PassInput) (PassOutcome, error) {
	table := in.Table
	if in.Image == nil || table.Rows == 0 || table.Cols == 0 {
		return PassOutcome{}, nil
	}

	first := table.FirstDataRow()
	cells := make([]cellText, table.Rows*table.Cols)

	pool := NewWorkerPool(s.workers)
	pool.Start()
	for row := first; row < table.Rows; row++ {
		for col := 0; col < table.Cols; col++ {
			bounds, ok := table.Cell(row, col)
			if !ok || bounds.Empty() {
				continue
			}
			slot := row*table.Cols + col
			pool.Submit(func() {
				cells[slot] = s.recognize(ctx, engine, in.Image, bounds)
			})
		}
	}
	pool.Wait()
	pool.Close()

	out := PassOutcome{}
	for row := first; row < table.Rows; row++ {
		for col := 0; col < table.Cols; col++ {
			if b, ok := table.Cell(row, col); ok && !b.Empty() {
				out.Cells++
				if !cells[row*table.Cols+col].ok {
					out.FailedOCR++
				}
			}
		}
	}

	if table.Cols < 2 {
		out.Results = s.parseCellLines(engine.ID(), table, cells, first)
	} else {
		out.Results = s.pairColumns(engine.ID(), table, cells, first)
	}

	logger.WithFields(logrus.Fields{
		"engine":     engine.ID(),
		"cells":      out.Cells,
		"failed_ocr": out.FailedOCR,
		"results":    len(out.Results),
	}).Debug("Cell pass finished")

	return out, nil
}

func (s *CellStrategy) recognize(ctx context.Context, engine ocr.Engine, img *raster.Image, bounds models.CellBounds) cellText {
	if ctx.Err() != nil {
		return cellText{}
	}
	rec, err := engine.Recognize(ctx, img.Crop(bounds))
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"engine": engine.ID(),
			"cell":   bounds,
		}).Debug("Cell recognition failed")
		return cellText{}
	}
	return cellText{text: rec.Text, confidence: rec.Confidence, ok: true}
}

func (s *CellStrategy) pairColumns(id models.EngineID, table models.TableStructure, cells []cellText, first int) []models.ExtractionResult {
	var results []models.ExtractionResult
	for row := first; row < table.Rows; row++ {
		timeCell := cells[row*table.Cols]
		if !timeCell.ok {
			continue
		}
		for col := 1; col < table.Cols; col++ {
			if table.ColumnType(col) != models.ColumnFleet {
				continue
			}
			fleetCell := cells[row*table.Cols+col]
			if !fleetCell.ok {
				continue
			}
			cand, ok := fieldparse.ParseCellPair(timeCell.text, fleetCell.text)
			if !ok {
				continue
			}
			bounds, _ := table.Cell(row, col)
			results = append(results, models.ExtractionResult{
				FleetID:          cand.FleetID,
				TimeOfDay:        cand.TimeOfDay,
				Confidence:       (timeCell.confidence + fleetCell.confidence) / 2,
				Engine:           id,
				FusedCount:       1,
				Coordinates:      bounds,
				ProcessingMethod: models.MethodCellOCR,
			})
		}
	}
	return results
}

// parseCellLines handles tables without a separate fleet column: each cell
// is parsed as free text.
func (s *CellStrategy) parseCellLines(id models.EngineID, table models.TableStructure, cells []cellText, first int) []models.ExtractionResult {
	var results []models.ExtractionResult
	for row := first; row < table.Rows; row++ {
		for col := 0; col < table.Cols; col++ {
			c := cells[row*table.Cols+col]
			if !c.ok {
				continue
			}
			bounds, _ := table.Cell(row, col)
			for _, cand := range fieldparse.ParseLines(c.text) {
				results = append(results, models.ExtractionResult{
					FleetID:          cand.FleetID,
					TimeOfDay:        cand.TimeOfDay,
					Confidence:       c.confidence,
					Engine:           id,
					FusedCount:       1,
					Coordinates:      bounds,
					ProcessingMethod: models.MethodCellOCR,
				})
			}
		}
	}
	return results
}

// FullImageStrategy recognizes the whole image at once and parses it line by
// line.
type FullImageStrategy struct{}

// NewFullImageStrategy creates a full image strategy.
func NewFullImageStrategy() *FullImageStrategy {
	return &FullImageStrategy{}
}

func (s *FullImageStrategy) Method() models.ProcessingMethod {
	return models.MethodFullImageOCR
}

func (s *FullImageStrategy) Run(ctx context.Context, engine ocr.Engine, in PassInput) (PassOutcome, error) {
	if in.Image == nil || in.Image.Width == 0 || in.Image.Height == 0 {
		return PassOutcome{}, nil
	}

	rec, err := engine.Recognize(ctx, in.Image.NRGBA())
	if err != nil {
		return PassOutcome{Cells: 1, FailedOCR: 1}, err
	}

	out := PassOutcome{Text: rec.Text, Cells: 1}
	bounds := in.Image.Bounds()
	for _, cand := range fieldparse.ParseLines(rec.Text) {
		out.Results = append(out.Results, models.ExtractionResult{
			FleetID:          cand.FleetID,
			TimeOfDay:        cand.TimeOfDay,
			Confidence:       rec.Confidence,
			Engine:           engine.ID(),
			FusedCount:       1,
			Coordinates:      bounds,
			ProcessingMethod: models.MethodFullImageOCR,
		})
	}

	if strings.TrimSpace(in.ExpectedText) != "" {
		acc := ocr.Accuracy(in.ExpectedText, rec.Text)
		out.Accuracy = &acc
	}
	return out, nil
}
