package tesseract

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/anime-shed/fleet-schedule-extractor/internal/ocr"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestConfigFor(t *testing.T) {
	tests := []struct {
		id   models.EngineID
		mode gosseract.PageSegMode
	}{
		{models.EngineTesseractBlock, gosseract.PSM_SINGLE_BLOCK},
		{models.EngineTesseractLine, gosseract.PSM_SINGLE_LINE},
		{models.EngineTesseractSparse, gosseract.PSM_SPARSE_TEXT},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			cfg, err := ConfigFor(tt.id, "")
			require.NoError(t, err)
			assert.Equal(t, tt.mode, cfg.PageSegMode)
			assert.Equal(t, "eng", cfg.Language)
			assert.Equal(t, ocr.ScheduleWhitelist, cfg.Whitelist)
		})
	}

	_, err := ConfigFor(models.EngineEnsemble, "por")
	assert.True(t, errors.Is(err, ocr.ErrEngineUnavailable))
}

func TestNewEngine_RejectsEnsemble(t *testing.T) {
	_, err := NewEngine(models.EngineEnsemble, "eng")
	assert.Error(t, err)

	e, err := NewEngine(models.EngineTesseractLine, "eng")
	require.NoError(t, err)
	assert.Equal(t, models.EngineTesseractLine, e.ID())
	assert.NoError(t, e.Close())
}

func TestMeanConfidence(t *testing.T) {
	assert.Equal(t, 0.0, meanConfidence(nil))
	assert.InDelta(t, 85.0, meanConfidence([]ocr.Word{{Confidence: 80}, {Confidence: 90}}), 1e-9)
}

func TestToWords_KeepsPercentScale(t *testing.T) {
	words := toWords([]gosseract.BoundingBox{
		{Word: "07:30", Confidence: 0.9, Box: image.Rect(0, 0, 10, 10)},
		{Word: "  ", Confidence: 95},
		{Word: "4611", Confidence: 1.5},
		{Word: "REFEIÇÃO", Confidence: 93.5},
	})

	require.Len(t, words, 3)
	assert.Equal(t, "07:30", words[0].Text)
	assert.InDelta(t, 0.9, words[0].Confidence, 1e-9)
	assert.InDelta(t, 1.5, words[1].Confidence, 1e-9)
	assert.InDelta(t, 93.5, words[2].Confidence, 1e-9)
	assert.Less(t, meanConfidence(words[:2]), 60.0)
}

func TestEncodeForOCR_UpscalesShortImages(t *testing.T) {
	data, err := encodeForOCR(createTestImage(40, 12, color.Black))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, minOCRHeight, img.Bounds().Dy())
	assert.Equal(t, 160, img.Bounds().Dx())

	data, err = encodeForOCR(createTestImage(40, 60, color.Black))
	require.NoError(t, err)
	img, err = png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 60, img.Bounds().Dy())
}
