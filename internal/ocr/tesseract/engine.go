package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/anime-shed/fleet-schedule-extractor/internal/logger"
	"github.com/anime-shed/fleet-schedule-extractor/internal/ocr"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"
)

// minOCRHeight is the height below which inputs are upscaled before recognition.
const minOCRHeight = 48

// Config holds the recognizer settings for one engine variant.
type Config struct {
	Language    string
	PageSegMode gosseract.PageSegMode
	Whitelist   string
	Variables   map[string]string
}

// ConfigFor returns the recognizer settings of a variant.
func ConfigFor(id models.EngineID, language string) (Config, error) {
	if language == "" {
		language = "eng"
	}
	cfg := Config{
		Language:  language,
		Whitelist: ocr.ScheduleWhitelist,
		Variables: map[string]string{
			"load_system_dawg": "false",
			"load_freq_dawg":   "false",
		},
	}
	switch id {
	case models.EngineTesseractBlock:
		cfg.PageSegMode = gosseract.PSM_SINGLE_BLOCK
	case models.EngineTesseractLine:
		cfg.PageSegMode = gosseract.PSM_SINGLE_LINE
	case models.EngineTesseractSparse:
		cfg.PageSegMode = gosseract.PSM_SPARSE_TEXT
	default:
		return Config{}, fmt.Errorf("%w: no recognizer for %q", ocr.ErrEngineUnavailable, id)
	}
	return cfg, nil
}

// engine creates one client per call, so it is safe for concurrent use by
// the per-cell workers.
type engine struct {
	id  models.EngineID
	cfg Config
}

// NewEngine creates a Tesseract-backed engine for the given variant.
func NewEngine(id models.EngineID, language string) (ocr.Engine, error) {
	cfg, err := ConfigFor(id, language)
	if err != nil {
		return nil, err
	}
	return &engine{id: id, cfg: cfg}, nil
}

// Version reports the linked Tesseract version.
func Version() string {
	return gosseract.Version()
}

func (e *engine) ID() models.EngineID {
	return e.id
}

func (e *engine) Close() error {
	return nil
}

func (e *engine) Recognize(ctx context.Context, img image.Image) (ocr.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Recognition{}, err
	}
	start := time.Now()

	data, err := encodeForOCR(img)
	if err != nil {
		return ocr.Recognition{}, fmt.Errorf("%w: encode image: %v", ocr.ErrRecognitionFailed, err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := e.configure(client); err != nil {
		return ocr.Recognition{}, err
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return ocr.Recognition{}, fmt.Errorf("%w: set image: %v", ocr.ErrRecognitionFailed, err)
	}

	text, err := client.Text()
	if err != nil {
		return ocr.Recognition{}, fmt.Errorf("%w: %v", ocr.ErrEngineUnavailable, err)
	}

	words := e.words(client)
	rec := ocr.Recognition{
		Text:       strings.TrimSpace(text),
		Confidence: meanConfidence(words),
		Words:      words,
		Duration:   time.Since(start),
	}

	logger.WithFields(logrus.Fields{
		"engine":      e.id,
		"chars":       len(rec.Text),
		"words":       len(words),
		"confidence":  rec.Confidence,
		"duration_ms": rec.Duration.Milliseconds(),
	}).Debug("OCR call completed")

	return rec, nil
}

func (e *engine) configure(client *gosseract.Client) error {
	if err := client.SetLanguage(e.cfg.Language); err != nil {
		return fmt.Errorf("%w: set language %q: %v", ocr.ErrEngineUnavailable, e.cfg.Language, err)
	}
	if err := client.SetPageSegMode(e.cfg.PageSegMode); err != nil {
		return fmt.Errorf("%w: set page segmentation mode: %v", ocr.ErrEngineUnavailable, err)
	}
	if e.cfg.Whitelist != "" {
		if err := client.SetWhitelist(e.cfg.Whitelist); err != nil {
			return fmt.Errorf("%w: set whitelist: %v", ocr.ErrEngineUnavailable, err)
		}
	}
	for k, v := range e.cfg.Variables {
		// Unknown variables are not fatal.
		if err := client.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			logger.WithError(err).WithField("variable", k).Debug("Ignoring OCR variable")
		}
	}
	return nil
}

func (e *engine) words(client *gosseract.Client) []ocr.Word {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		logger.WithError(err).WithField("engine", e.id).Debug("Word boxes unavailable")
		return nil
	}
	return toWords(boxes)
}

// toWords keeps non-blank word boxes. Tesseract scores are already percentages.
func toWords(boxes []gosseract.BoundingBox) []ocr.Word {
	words := make([]ocr.Word, 0, len(boxes))
	for _, b := range boxes {
		w := strings.TrimSpace(b.Word)
		if w == "" {
			continue
		}
		words = append(words, ocr.Word{Text: w, Confidence: ocr.ClampConfidence(b.Confidence), Box: b.Box})
	}
	return words
}

func meanConfidence(words []ocr.Word) float64 {
	if len(words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range words {
		sum += w.Confidence
	}
	return sum / float64(len(words))
}

// encodeForOCR upscales short images and encodes them as PNG.
func encodeForOCR(img image.Image) ([]byte, error) {
	if h := img.Bounds().Dy(); h > 0 && h < minOCRHeight {
		img = imaging.Resize(img, 0, minOCRHeight, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
