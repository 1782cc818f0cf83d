package preprocess

import (
	"runtime"
	"sync"
	"time"

	"github.com/anime-shed/fleet-schedule-extractor/internal/logger"
	"github.com/anime-shed/fleet-schedule-extractor/internal/raster"
	"github.com/sirupsen/logrus"
)

// Stage names a preprocessing step.
type Stage string

const (
	StageNoiseReduction Stage = "noise_reduction"
	StageContrast       Stage = "contrast"
	StageEqualization   Stage = "equalization"
	StageThreshold      Stage = "adaptive_threshold"
	StageMorphology     Stage = "morphology"
)

// Preprocessor prepares an image for table detection and OCR.
type Preprocessor interface {
	// Apply mutates img in place and returns the stages that ran, in order.
	Apply(img *raster.Image, settings FilterSettings) []Stage
}

type preprocessor struct {
	workers int
	bufPool sync.Pool
}

// NewPreprocessor creates a preprocessor that splits rows across workers.
// workers <= 0 uses runtime.NumCPU().
func NewPreprocessor(workers int) Preprocessor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &preprocessor{
		workers: workers,
		bufPool: sync.Pool{
			New: func() interface{} {
				return make([]uint8, 0, 64*1024)
			},
		},
	}
}

func (p *preprocessor) Apply(img *raster.Image, settings FilterSettings) []Stage {
	if img == nil || img.Width == 0 || img.Height == 0 {
		return nil
	}
	s := settings.Normalize()
	stages := make([]Stage, 0, 5)
	start := time.Now()

	if s.NoiseReduction {
		p.withSnapshot(img, func(snapshot []uint8) {
			bilateral(img, snapshot, p.workers)
		})
		stages = append(stages, StageNoiseReduction)
	}

	contrast(img, s.ContrastEnhancement/100)
	stages = append(stages, StageContrast)

	if s.HistogramEqualization || s.BrightnessAdjustment != 100 {
		equalize(img, s.HistogramEqualization, s.BrightnessAdjustment/100)
		stages = append(stages, StageEqualization)
	}

	if s.UseAdaptiveThreshold {
		adaptiveThreshold(img, s.AdaptiveBlockSize, s.AdaptiveC, p.workers)
		stages = append(stages, StageThreshold)
	}

	if s.MorphologyKernel > 1 {
		morphology(img, s.MorphologyKernel, s.ErosionOnly)
		stages = append(stages, StageMorphology)
	}

	logger.WithFields(logrus.Fields{
		"width":       img.Width,
		"height":      img.Height,
		"stages":      stages,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Image preprocessed")

	return stages
}

// withSnapshot hands fn a pooled copy of the pixel buffer taken before fn runs.
func (p *preprocessor) withSnapshot(img *raster.Image, fn func(snapshot []uint8)) {
	buf := p.bufPool.Get().([]uint8)
	if cap(buf) < len(img.Pix) {
		buf = make([]uint8, len(img.Pix))
	}
	buf = buf[:len(img.Pix)]
	copy(buf, img.Pix)
	fn(buf)
	p.bufPool.Put(buf[:0])
}

// parallelRows splits [0, height) into contiguous strips processed concurrently.
func parallelRows(height, workers int, fn func(startY, endY int)) {
	if height <= 0 {
		return
	}
	if workers > height {
		workers = height
	}
	if workers <= 0 {
		workers = 1
	}
	rowsPerWorker := (height + workers - 1) / workers

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		startY := i * rowsPerWorker
		if startY >= height {
			break
		}
		endY := startY + rowsPerWorker
		if endY > height {
			endY = height
		}
		wg.Add(1)
		go func(startY, endY int) {
			defer wg.Done()
			fn(startY, endY)
		}(startY, endY)
	}
	wg.Wait()
}
