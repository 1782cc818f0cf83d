package preprocess

import (
	"math"

	"github.com/anime-shed/fleet-schedule-extractor/internal/raster"
)

const (
	bilateralRadius     = 2
	bilateralSigmaSpace = 2.0
	bilateralSigmaColor = 30.0
)

// bilateral smooths img using src (an unmodified copy of img.Pix) as input.
// Color weights factor per channel, so a 256-entry table covers them.
func bilateral(img *raster.Image, src []uint8, workers int) {
	size := 2*bilateralRadius + 1
	spatial := make([]float64, size*size)
	for dy := -bilateralRadius; dy <= bilateralRadius; dy++ {
		for dx := -bilateralRadius; dx <= bilateralRadius; dx++ {
			d2 := float64(dx*dx + dy*dy)
			spatial[(dy+bilateralRadius)*size+dx+bilateralRadius] = math.Exp(-d2 / (2 * bilateralSigmaSpace * bilateralSigmaSpace))
		}
	}
	var colorLUT [256]float64
	for d := range colorLUT {
		colorLUT[d] = math.Exp(-float64(d*d) / (2 * bilateralSigmaColor * bilateralSigmaColor))
	}

	w, h := img.Width, img.Height
	parallelRows(h, workers, func(startY, endY int) {
		for y := startY; y < endY; y++ {
			for x := 0; x < w; x++ {
				ci := (y*w + x) * 4
				cr, cg, cb := src[ci], src[ci+1], src[ci+2]

				var sumR, sumG, sumB, sumW float64
				for dy := -bilateralRadius; dy <= bilateralRadius; dy++ {
					ny := y + dy
					if ny < 0 || ny >= h {
						continue
					}
					for dx := -bilateralRadius; dx <= bilateralRadius; dx++ {
						nx := x + dx
						if nx < 0 || nx >= w {
							continue
						}
						ni := (ny*w + nx) * 4
						r, g, b := src[ni], src[ni+1], src[ni+2]
						wt := spatial[(dy+bilateralRadius)*size+dx+bilateralRadius] *
							colorLUT[absDiff(r, cr)] * colorLUT[absDiff(g, cg)] * colorLUT[absDiff(b, cb)]
						sumR += wt * float64(r)
						sumG += wt * float64(g)
						sumB += wt * float64(b)
						sumW += wt
					}
				}
				// sumW includes the center pixel with weight 1, so it is never zero.
				img.Pix[ci] = raster.Clamp(sumR / sumW)
				img.Pix[ci+1] = raster.Clamp(sumG / sumW)
				img.Pix[ci+2] = raster.Clamp(sumB / sumW)
			}
		}
	})
}

// contrast converts to grayscale and stretches luminance around 128.
func contrast(img *raster.Image, factor float64) {
	for i := 0; i < len(img.Pix); i += 4 {
		l := raster.Luminance(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		v := raster.Clamp((l-128)*factor + 128)
		img.Pix[i], img.Pix[i+1], img.Pix[i+2] = v, v, v
	}
}

// equalize remaps luminance through the normalized CDF when enabled and then
// scales by brightness. A flat histogram is left unchanged by equalization.
func equalize(img *raster.Image, equalization bool, brightness float64) {
	var lut [256]float64
	for v := range lut {
		lut[v] = float64(v)
	}

	if equalization {
		var hist [256]int
		for i := 0; i < len(img.Pix); i += 4 {
			hist[raster.Clamp(raster.Luminance(img.Pix[i], img.Pix[i+1], img.Pix[i+2]))]++
		}
		total := len(img.Pix) / 4

		var cdf [256]int
		running, cdfMin := 0, 0
		for v := 0; v < 256; v++ {
			running += hist[v]
			cdf[v] = running
			if cdfMin == 0 && running > 0 {
				cdfMin = running
			}
		}
		if total > cdfMin {
			for v := range lut {
				if cdf[v] < cdfMin {
					lut[v] = 0
					continue
				}
				lut[v] = math.Round(float64(cdf[v]-cdfMin) / float64(total-cdfMin) * 255)
			}
		}
	}

	for i := 0; i < len(img.Pix); i += 4 {
		l := raster.Clamp(raster.Luminance(img.Pix[i], img.Pix[i+1], img.Pix[i+2]))
		v := raster.Clamp(lut[l] * brightness)
		img.Pix[i], img.Pix[i+1], img.Pix[i+2] = v, v, v
	}
}

// adaptiveThreshold binarizes against the mean of a blockSize window minus c.
// Windows are clipped at the borders.
func adaptiveThreshold(img *raster.Image, blockSize int, c float64, workers int) {
	w, h := img.Width, img.Height
	lum := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			lum[y*w+x] = img.Luminance(x, y)
		}
	}

	// integral[(y+1)*(w+1)+(x+1)] holds the sum over [0,x]x[0,y].
	stride := w + 1
	integral := make([]float64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var row float64
		for x := 0; x < w; x++ {
			row += lum[y*w+x]
			integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + row
		}
	}

	half := blockSize / 2
	parallelRows(h, workers, func(startY, endY int) {
		for y := startY; y < endY; y++ {
			y0, y1 := max(0, y-half), min(h-1, y+half)
			for x := 0; x < w; x++ {
				x0, x1 := max(0, x-half), min(w-1, x+half)
				sum := integral[(y1+1)*stride+x1+1] - integral[y0*stride+x1+1] -
					integral[(y1+1)*stride+x0] + integral[y0*stride+x0]
				count := float64((x1 - x0 + 1) * (y1 - y0 + 1))

				var v uint8
				if lum[y*w+x] > sum/count-c {
					v = 255
				}
				img.SetGray(x, y, v)
			}
		}
	})
}

// morphology applies a grayscale opening (erosion then dilation) with a
// square kernel. erosionOnly stops after the erosion.
func morphology(img *raster.Image, kernel int, erosionOnly bool) {
	w, h := img.Width, img.Height
	lum := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			lum[y*w+x] = raster.Clamp(img.Luminance(x, y))
		}
	}

	half := kernel / 2
	lum = rankFilter(lum, w, h, half, minUint8)
	if !erosionOnly {
		lum = rankFilter(lum, w, h, half, maxUint8)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, lum[y*w+x])
		}
	}
}

// rankFilter runs a separable min or max filter over a square window.
func rankFilter(src []uint8, w, h, half int, pick func(a, b uint8) uint8) []uint8 {
	tmp := make([]uint8, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := src[y*w+x]
			for nx := max(0, x-half); nx <= min(w-1, x+half); nx++ {
				v = pick(v, src[y*w+nx])
			}
			tmp[y*w+x] = v
		}
	}

	out := make([]uint8, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := tmp[y*w+x]
			for ny := max(0, y-half); ny <= min(h-1, y+half); ny++ {
				v = pick(v, tmp[ny*w+x])
			}
			out[y*w+x] = v
		}
	}
	return out
}

func minUint8(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}

func maxUint8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
