package quality

import (
	"runtime"
	"sync"

	"github.com/anime-shed/fleet-schedule-extractor/internal/raster"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/validation"
	"gonum.org/v1/gonum/stat"
)

// Inspector measures how readable an input image is before OCR.
type Inspector interface {
	Measure(img *raster.Image) validation.ImageQualityMetrics
	Inspect(img *raster.Image) []models.QualityIssue
}

type inspector struct {
	validator *validation.QualityValidator
	slicePool sync.Pool
}

// NewInspector creates an inspector backed by the given validator.
func NewInspector(validator *validation.QualityValidator) Inspector {
	if validator == nil {
		validator = validation.NewQualityValidator()
	}
	return &inspector{
		validator: validator,
		slicePool: sync.Pool{
			New: func() interface{} {
				return make([]float64, 0, 1024)
			},
		},
	}
}

func (in *inspector) Inspect(img *raster.Image) []models.QualityIssue {
	return in.validator.Validate(in.Measure(img))
}

// Measure computes brightness, contrast and Laplacian sharpness on luminance.
func (in *inspector) Measure(img *raster.Image) validation.ImageQualityMetrics {
	if img == nil || img.Width == 0 || img.Height == 0 {
		return validation.ImageQualityMetrics{}
	}

	lum := luminancePlane(img)
	return validation.ImageQualityMetrics{
		Width:        img.Width,
		Height:       img.Height,
		Brightness:   stat.Mean(lum, nil),
		Contrast:     stat.StdDev(lum, nil),
		LaplacianVar: in.laplacianVariance(lum, img.Width, img.Height),
	}
}

// luminancePlane extracts luminance in parallel horizontal strips.
func luminancePlane(img *raster.Image) []float64 {
	w, h := img.Width, img.Height
	lum := make([]float64, w*h)

	numWorkers := runtime.NumCPU()
	if h < numWorkers {
		numWorkers = h
	}
	rowsPerWorker := (h + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		if startY >= h {
			break
		}
		endY := startY + rowsPerWorker
		if endY > h {
			endY = h
		}
		wg.Add(1)
		go func(startY, endY int) {
			defer wg.Done()
			for y := startY; y < endY; y++ {
				for x := 0; x < w; x++ {
					lum[y*w+x] = img.Luminance(x, y)
				}
			}
		}(startY, endY)
	}
	wg.Wait()
	return lum
}

// laplacianVariance applies the 4-neighbour Laplacian kernel and returns
// the variance of the response.
func (in *inspector) laplacianVariance(lum []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	data := in.slicePool.Get().([]float64)
	defer func() { in.slicePool.Put(data[:0]) }()

	if need := (w - 2) * (h - 2); cap(data) < need {
		data = make([]float64, 0, need)
	}
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := lum[y*w+x]
			data = append(data, lum[(y-1)*w+x]+lum[(y+1)*w+x]+lum[y*w+x-1]+lum[y*w+x+1]-4*c)
		}
	}
	return stat.Variance(data, nil)
}
