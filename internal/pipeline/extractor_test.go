package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/anime-shed/fleet-schedule-extractor/internal/fusion"
	"github.com/anime-shed/fleet-schedule-extractor/internal/ocr"
	"github.com/anime-shed/fleet-schedule-extractor/internal/raster"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedEngine struct {
	id         models.EngineID
	text       string
	confidence float64
	err        error
}

func (f *fixedEngine) ID() models.EngineID { return f.id }
func (f *fixedEngine) Close() error        { return nil }

func (f *fixedEngine) Recognize(ctx context.Context, img image.Image) (ocr.Recognition, error) {
	if f.err != nil {
		return ocr.Recognition{}, f.err
	}
	return ocr.Recognition{Text: f.text, Confidence: f.confidence}, nil
}

func whiteImage(w, h int) *raster.Image {
	img := raster.New(w, h)
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func fullImageOptions(engines ...models.EngineID) Options {
	opts := DefaultOptions().
		WithEngines(engines...).
		WithMethods(models.MethodFullImageOCR).
		WithConfidenceThreshold(0)
	opts.Weights = fusion.EngineWeights{}
	opts.Workers = 2
	return opts
}

func newTestExtractor(engines ...ocr.Engine) Extractor {
	registry := make(map[models.EngineID]ocr.Engine)
	for _, e := range engines {
		registry[e.ID()] = e
	}
	return NewExtractor(Dependencies{Engines: registry})
}

func TestExtract_FusesAgreeingEngines(t *testing.T) {
	ex := newTestExtractor(
		&fixedEngine{id: models.EngineTesseractBlock, text: "13:00 40167 LAVAGEM", confidence: 90},
		&fixedEngine{id: models.EngineTesseractLine, text: "13:00 40167 LAVAGEM", confidence: 94},
	)

	out, err := ex.Extract(context.Background(), Job{
		ID:      "job-1",
		Image:   whiteImage(60, 40),
		Options: fullImageOptions(models.EngineTesseractBlock, models.EngineTesseractLine),
	})
	require.NoError(t, err)

	require.Len(t, out.Results, 1)
	r := out.Results[0]
	assert.Equal(t, "13:00", r.TimeOfDay)
	assert.Equal(t, "40167", r.FleetID)
	assert.InDelta(t, 96.0, r.Confidence, 1e-9)
	assert.Equal(t, models.EngineEnsemble, r.Engine)
	assert.Equal(t, 2, r.FusedCount)
	assert.Equal(t, "Ensemble Fusion (2 engines)", r.SourceLabel())
	assert.Equal(t, 100.0, r.ValidationScore)

	assert.True(t, out.Table.Degenerate)
	assert.Len(t, out.Passes, 2)
	for _, p := range out.Passes {
		assert.Empty(t, p.Error)
		assert.Equal(t, 1, p.Results)
	}
}

func TestExtract_IsolatesFailingPass(t *testing.T) {
	ex := newTestExtractor(
		&fixedEngine{id: models.EngineTesseractBlock, text: "07:30 4611 PREVENTIVA", confidence: 90},
		&fixedEngine{id: models.EngineTesseractLine, err: ocr.ErrRecognitionTimeout},
	)

	out, err := ex.Extract(context.Background(), Job{
		Image:   whiteImage(60, 40),
		Options: fullImageOptions(models.EngineTesseractBlock, models.EngineTesseractLine),
	})
	require.NoError(t, err)

	require.Len(t, out.Results, 1)
	assert.Equal(t, 90.0, out.Results[0].Confidence)
	assert.Equal(t, models.EngineTesseractBlock, out.Results[0].Engine)

	require.Len(t, out.Passes, 2)
	assert.Empty(t, out.Passes[0].Error)
	assert.Contains(t, out.Passes[1].Error, "timeout")
	assert.Equal(t, 1, out.Passes[1].FailedOCR)
}

func TestExtract_UnregisteredEngineIsReported(t *testing.T) {
	ex := newTestExtractor(&fixedEngine{id: models.EngineTesseractBlock, text: "07:30 4611 PREVENTIVA", confidence: 80})

	out, err := ex.Extract(context.Background(), Job{
		Image:   whiteImage(60, 40),
		Options: fullImageOptions(models.EngineTesseractSparse, models.EngineTesseractBlock),
	})
	require.NoError(t, err)

	require.Len(t, out.Passes, 2)
	assert.Equal(t, models.EngineTesseractSparse, out.Passes[0].Engine)
	assert.Equal(t, ocr.ErrEngineUnavailable.Error(), out.Passes[0].Error)
	assert.Len(t, out.Results, 1)
}

func TestExtract_NoEnginesAvailable(t *testing.T) {
	ex := newTestExtractor()

	_, err := ex.Extract(context.Background(), Job{
		Image:   whiteImage(10, 10),
		Options: fullImageOptions(models.EngineTesseractBlock),
	})
	assert.True(t, errors.Is(err, ocr.ErrEngineUnavailable))
}

func TestExtract_InvalidImage(t *testing.T) {
	ex := newTestExtractor(&fixedEngine{id: models.EngineTesseractBlock})

	_, err := ex.Extract(context.Background(), Job{Image: raster.New(0, 0)})
	assert.True(t, errors.Is(err, raster.ErrInvalidImage))

	_, err = ex.Extract(context.Background(), Job{})
	assert.True(t, errors.Is(err, raster.ErrInvalidImage))
}

func TestExtract_ThresholdLeavesNoResults(t *testing.T) {
	ex := newTestExtractor(&fixedEngine{id: models.EngineTesseractBlock, text: "07:30 4611 PREVENTIVA", confidence: 40})

	out, err := ex.Extract(context.Background(), Job{
		Image:   whiteImage(60, 40),
		Options: fullImageOptions(models.EngineTesseractBlock).WithConfidenceThreshold(60),
	})
	require.NoError(t, err)
	assert.Empty(t, out.Results)
	assert.Equal(t, 1, out.Passes[0].Results)
}

func TestExtract_ProgressIsMonotonic(t *testing.T) {
	ex := newTestExtractor(
		&fixedEngine{id: models.EngineTesseractBlock, text: "07:30 4611 PREVENTIVA", confidence: 80},
		&fixedEngine{id: models.EngineTesseractLine, text: "07:30 4611 PREVENTIVA", confidence: 80},
	)

	var seen []int
	_, err := ex.Extract(context.Background(), Job{
		Image:      whiteImage(60, 40),
		Options:    fullImageOptions(models.EngineTesseractBlock, models.EngineTesseractLine),
		OnProgress: func(p int) { seen = append(seen, p) },
	})
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 100, seen[len(seen)-1])
}

func TestExtract_ValidationScoresAgainstRegistry(t *testing.T) {
	ex := NewExtractor(Dependencies{
		Engines: map[models.EngineID]ocr.Engine{
			models.EngineTesseractBlock: &fixedEngine{id: models.EngineTesseractBlock, text: "07:30 4617 PREVENTIVA\n08:00 9999 PREVENTIVA", confidence: 80},
		},
		Validator: validation.NewResultValidator([]string{"4611"}),
	})

	opts := fullImageOptions(models.EngineTesseractBlock)
	opts.MinValidationScore = 70
	out, err := ex.Extract(context.Background(), Job{Image: whiteImage(60, 40), Options: opts})
	require.NoError(t, err)

	require.Len(t, out.Results, 1)
	assert.Equal(t, "4617", out.Results[0].FleetID)
	assert.Equal(t, 75.0, out.Results[0].ValidationScore)
}

func TestExtract_CancelledContextSkipsPasses(t *testing.T) {
	ex := newTestExtractor(&fixedEngine{id: models.EngineTesseractBlock, text: "07:30 4611 PREVENTIVA", confidence: 80})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := ex.Extract(ctx, Job{Image: whiteImage(60, 40), Options: fullImageOptions(models.EngineTesseractBlock)})
	require.NoError(t, err)
	assert.Empty(t, out.Results)
	require.Len(t, out.Passes, 1)
	assert.NotEmpty(t, out.Passes[0].Error)
}

func TestProgressTracker(t *testing.T) {
	var calls []int
	tr := newProgressTracker(func(p int) { calls = append(calls, p) })

	assert.True(t, tr.advance(10))
	assert.False(t, tr.advance(5))
	assert.False(t, tr.advance(10))
	assert.True(t, tr.advance(150))
	assert.Equal(t, 100, tr.current())
	assert.Equal(t, []int{10, 100}, calls)

	assert.Equal(t, progressDetected, passProgress(0, 4))
	assert.Equal(t, progressPassesDone, passProgress(4, 4))
	assert.Equal(t, progressPassesDone, passProgress(0, 0))
}

func TestOptionsNormalized(t *testing.T) {
	opts := Options{ConfidenceThreshold: 140, MinValidationScore: -3}.normalized()

	assert.Equal(t, models.RecognitionEngines(), opts.Engines)
	assert.Len(t, opts.Methods, 2)
	assert.Equal(t, 100.0, opts.ConfidenceThreshold)
	assert.Equal(t, 0.0, opts.MinValidationScore)
	assert.True(t, opts.Filters.NoiseReduction)
	assert.NotNil(t, opts.Weights)
}
