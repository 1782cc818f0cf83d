package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ErrInvalidImage is returned when the input cannot be decoded or has no pixels.
var ErrInvalidImage = errors.New("invalid image input")

// Image is a mutable RGBA buffer with stride 4*Width.
type Image struct {
	Width  int
	Height int
	Pix    []uint8
}

// New allocates a zeroed (transparent black) image.
func New(width, height int) *Image {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Image{Width: width, Height: height, Pix: make([]uint8, width*height*4)}
}

// DefaultMaxPixels is the pixel budget of Decode.
const DefaultMaxPixels = 40_000_000

// Decode reads JPEG, PNG, BMP or TIFF bytes. EXIF orientation is applied.
func Decode(data []byte) (*Image, error) {
	return DecodeLimited(data, DefaultMaxPixels)
}

// DecodeLimited is Decode with a pixel budget checked against the image
// header before any pixels are allocated. maxPixels <= 0 disables the check.
func DecodeLimited(data []byte, maxPixels int) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrInvalidImage)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, maxPixels)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	out := FromImage(img)
	if out.Width == 0 || out.Height == 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrInvalidImage)
	}
	return out, nil
}

// FromImage copies any image.Image into a new raster.
func FromImage(img image.Image) *Image {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	out := New(b.Dx(), b.Dy())
	for y := 0; y < out.Height; y++ {
		src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+out.Width*4]
		copy(out.Pix[y*out.Width*4:], src)
	}
	return out
}

// Clone returns an independent copy.
func (m *Image) Clone() *Image {
	out := &Image{Width: m.Width, Height: m.Height, Pix: make([]uint8, len(m.Pix))}
	copy(out.Pix, m.Pix)
	return out
}

// Offset returns the index of the red byte of pixel (x, y).
func (m *Image) Offset(x, y int) int {
	return (y*m.Width + x) * 4
}

// Luminance returns 0.299R + 0.587G + 0.114B for pixel (x, y).
func (m *Image) Luminance(x, y int) float64 {
	i := m.Offset(x, y)
	return Luminance(m.Pix[i], m.Pix[i+1], m.Pix[i+2])
}

// Luminance is the Rec. 601 weighted sum used throughout the pipeline.
func Luminance(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// SetGray writes v to the three color channels of pixel (x, y), keeping alpha.
func (m *Image) SetGray(x, y int, v uint8) {
	i := m.Offset(x, y)
	m.Pix[i], m.Pix[i+1], m.Pix[i+2] = v, v, v
}

// NRGBA wraps the buffer without copying. Writes through the result affect m.
func (m *Image) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    m.Pix,
		Stride: m.Width * 4,
		Rect:   image.Rect(0, 0, m.Width, m.Height),
	}
}

// Crop returns an independently allocated copy of the region, clipped to the image.
func (m *Image) Crop(b models.CellBounds) *image.NRGBA {
	return imaging.Crop(m.NRGBA(), b.Rect())
}

// Bounds returns the whole-image rectangle as cell bounds.
func (m *Image) Bounds() models.CellBounds {
	return models.CellBounds{X: 0, Y: 0, Width: m.Width, Height: m.Height}
}

// Clamp rounds v to the nearest integer in [0, 255].
func Clamp(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
