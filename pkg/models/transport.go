package models

// FilterOptions overrides individual preprocessing settings. Nil keeps the default.
type FilterOptions struct {
	NoiseReduction        *bool    `json:"noise_reduction,omitempty"`
	ContrastEnhancement   *float64 `json:"contrast_enhancement,omitempty"`
	BrightnessAdjustment  *float64 `json:"brightness_adjustment,omitempty"`
	HistogramEqualization *bool    `json:"histogram_equalization,omitempty"`
	AdaptiveThreshold     *bool    `json:"adaptive_threshold,omitempty"`
	AdaptiveBlockSize     *int     `json:"adaptive_block_size,omitempty"`
	AdaptiveC             *float64 `json:"adaptive_c,omitempty"`
	MorphologyKernel      *int     `json:"morphology_kernel,omitempty"`
	ErosionOnly           *bool    `json:"erosion_only,omitempty"`
}

// ExtractionOptionsRequest carries per-request overrides of the pipeline defaults.
type ExtractionOptionsRequest struct {
	Engines             []string        `json:"engines,omitempty"`
	Methods             []string        `json:"methods,omitempty"`
	ConfidenceThreshold *float64        `json:"confidence_threshold,omitempty"`
	MinValidationScore  *float64        `json:"min_validation_score,omitempty"`
	ExpectedText        string          `json:"expected_text,omitempty"`
	Filters             *FilterOptions  `json:"filters,omitempty"`
	Persist             *PersistRequest `json:"persist,omitempty"`
}

// URLExtractionRequest asks for an extraction of a remotely stored image.
type URLExtractionRequest struct {
	URL     string                    `json:"url" binding:"required,url"`
	Source  string                    `json:"source,omitempty"`
	Options *ExtractionOptionsRequest `json:"options,omitempty"`
}

// PersistRequest describes how results map onto maintenance schedule rows.
type PersistRequest struct {
	Location        string `json:"local,omitempty"`
	MaintenanceType string `json:"tipo_preventiva,omitempty"`
	ScheduledDate   string `json:"data_programada,omitempty"`
	Status          string `json:"situacao,omitempty"`
	Note            string `json:"observacao,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
