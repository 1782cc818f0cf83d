package preprocess

import "math"

const (
	minPercent = 0.0
	maxPercent = 300.0

	minBlockSize = 3
	maxBlockSize = 99

	minAdaptiveC = -64.0
	maxAdaptiveC = 64.0

	maxMorphologyKernel = 15
)

// FilterSettings controls the preprocessing stages. Values are clamped by
// Normalize before use, so any value is accepted.
type FilterSettings struct {
	NoiseReduction bool `json:"noise_reduction"`
	// ContrastEnhancement is a percentage; 100 leaves contrast unchanged.
	ContrastEnhancement float64 `json:"contrast_enhancement"`
	// BrightnessAdjustment is a percentage applied after equalization.
	BrightnessAdjustment  float64 `json:"brightness_adjustment"`
	HistogramEqualization bool    `json:"histogram_equalization"`
	UseAdaptiveThreshold  bool    `json:"adaptive_threshold"`
	AdaptiveBlockSize     int     `json:"adaptive_block_size"`
	AdaptiveC             float64 `json:"adaptive_c"`
	// MorphologyKernel is the side of the square structuring element; 1 disables it.
	MorphologyKernel int `json:"morphology_kernel"`
	// ErosionOnly skips the dilation half of the opening.
	ErosionOnly bool `json:"erosion_only"`
}

// DefaultFilterSettings returns the settings used for phone photos of printed tables.
func DefaultFilterSettings() FilterSettings {
	return FilterSettings{
		NoiseReduction:        true,
		ContrastEnhancement:   150,
		BrightnessAdjustment:  100,
		HistogramEqualization: true,
		UseAdaptiveThreshold:  true,
		AdaptiveBlockSize:     15,
		AdaptiveC:             10,
		MorphologyKernel:      3,
		ErosionOnly:           false,
	}
}

// ScanSettings returns lighter settings for clean flatbed scans.
func ScanSettings() FilterSettings {
	s := DefaultFilterSettings()
	s.NoiseReduction = false
	s.ContrastEnhancement = 120
	s.HistogramEqualization = false
	s.MorphologyKernel = 1
	return s
}

// WithContrast returns settings with the given contrast percentage.
func (s FilterSettings) WithContrast(percent float64) FilterSettings {
	s.ContrastEnhancement = percent
	return s
}

// WithBrightness returns settings with the given brightness percentage.
func (s FilterSettings) WithBrightness(percent float64) FilterSettings {
	s.BrightnessAdjustment = percent
	return s
}

// WithMorphology returns settings with the given kernel and erosion mode.
func (s FilterSettings) WithMorphology(kernel int, erosionOnly bool) FilterSettings {
	s.MorphologyKernel = kernel
	s.ErosionOnly = erosionOnly
	return s
}

// WithAdaptiveThreshold enables thresholding with the given block size and constant.
func (s FilterSettings) WithAdaptiveThreshold(blockSize int, c float64) FilterSettings {
	s.UseAdaptiveThreshold = true
	s.AdaptiveBlockSize = blockSize
	s.AdaptiveC = c
	return s
}

// Normalize clamps every value into its valid range. Even kernel and block
// sizes are rounded up to the next odd value.
func (s FilterSettings) Normalize() FilterSettings {
	def := DefaultFilterSettings()

	s.ContrastEnhancement = clampFloat(s.ContrastEnhancement, minPercent, maxPercent, def.ContrastEnhancement)
	s.BrightnessAdjustment = clampFloat(s.BrightnessAdjustment, minPercent, maxPercent, def.BrightnessAdjustment)
	s.AdaptiveC = clampFloat(s.AdaptiveC, minAdaptiveC, maxAdaptiveC, def.AdaptiveC)

	s.AdaptiveBlockSize = clampInt(oddCeil(s.AdaptiveBlockSize), minBlockSize, maxBlockSize)
	s.MorphologyKernel = clampInt(oddCeil(s.MorphologyKernel), 1, maxMorphologyKernel)
	return s
}

// oddCeil maps n < 1 to 1 and even n to n+1.
func oddCeil(n int) int {
	if n < 1 {
		return 1
	}
	if n%2 == 0 {
		return n + 1
	}
	return n
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return math.Max(lo, math.Min(hi, v))
}
