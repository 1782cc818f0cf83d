package detect

import (
	"github.com/anime-shed/fleet-schedule-extractor/internal/logger"
	"github.com/anime-shed/fleet-schedule-extractor/internal/raster"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/sirupsen/logrus"
)

// Options holds the detector thresholds.
type Options struct {
	// DarkLuminance is the luminance below which a pixel counts as dark.
	DarkLuminance float64
	// LineFraction is the share of dark pixels a row or column needs to be a line.
	LineFraction float64
	// MergeRows and MergeCols are the distances within which lines collapse
	// into the first occurrence.
	MergeRows int
	MergeCols int
	// HeaderBand is the top fraction of the image searched for a header.
	HeaderBand float64
	// HeaderFraction is the share of highlight pixels that marks a header.
	HeaderFraction float64
}

// DefaultOptions returns the thresholds used for printed schedule boards.
func DefaultOptions() Options {
	return Options{
		DarkLuminance:  128,
		LineFraction:   0.70,
		MergeRows:      10,
		MergeCols:      20,
		HeaderBand:     0.20,
		HeaderFraction: 0.30,
	}
}

// Detector finds the table grid in a preprocessed image.
type Detector interface {
	// Detect finds grid lines on lines and reads header colors from color.
	// color may be nil, in which case lines is used for both.
	Detect(lines, color *raster.Image) models.TableStructure
}

type detector struct {
	opts Options
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(opts Options) Detector {
	return &detector{opts: opts}
}

func (d *detector) Detect(lines, color *raster.Image) models.TableStructure {
	if lines == nil || lines.Width == 0 || lines.Height == 0 {
		return models.TableStructure{Degenerate: true}
	}
	if color == nil || color.Width != lines.Width || color.Height != lines.Height {
		color = lines
	}

	rowDark := d.darkProfile(lines, true)
	colDark := d.darkProfile(lines, false)

	hLines, hFallback := d.axisLines(rowDark, lines.Width, lines.Height, d.opts.MergeRows)
	vLines, vFallback := d.axisLines(colDark, lines.Height, lines.Width, d.opts.MergeCols)

	table := buildCells(hLines, vLines)
	table.Degenerate = hFallback || vFallback
	table.HeaderDetected = d.detectHeader(color, table)
	table.ColumnTypes = columnTypes(table.Cols)

	logger.WithFields(logrus.Fields{
		"rows":        table.Rows,
		"cols":        table.Cols,
		"header":      table.HeaderDetected,
		"degenerate":  table.Degenerate,
		"h_lines":     len(hLines),
		"v_lines":     len(vLines),
		"image_width": lines.Width,
	}).Debug("Table structure detected")

	return table
}

// darkProfile counts dark pixels per row (rows=true) or per column.
func (d *detector) darkProfile(img *raster.Image, rows bool) []int {
	n := img.Width
	if rows {
		n = img.Height
	}
	counts := make([]int, n)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			if img.Luminance(x, y) < d.opts.DarkLuminance {
				if rows {
					counts[y]++
				} else {
					counts[x]++
				}
			}
		}
	}
	return counts
}

// axisLines turns a dark-pixel profile into merged line positions. span is
// the number of pixels per profile entry and extent the axis length. The
// second return value reports whether the boundary fallback was used.
func (d *detector) axisLines(profile []int, span, extent, merge int) ([]int, bool) {
	var found []int
	dark := 0
	for pos, count := range profile {
		if float64(count)/float64(span) > d.opts.LineFraction {
			dark++
			if len(found) == 0 || pos-found[len(found)-1] > merge {
				found = append(found, pos)
			}
		}
	}

	// A solid fill is background, not ruling.
	if len(found) < 2 || dark == len(profile) {
		return []int{0, extent}, true
	}
	return found, false
}

func buildCells(hLines, vLines []int) models.TableStructure {
	var rows, cols [][2]int
	for i := 0; i+1 < len(hLines); i++ {
		if hLines[i+1]-hLines[i] > 0 {
			rows = append(rows, [2]int{hLines[i], hLines[i+1]})
		}
	}
	for i := 0; i+1 < len(vLines); i++ {
		if vLines[i+1]-vLines[i] > 0 {
			cols = append(cols, [2]int{vLines[i], vLines[i+1]})
		}
	}

	cells := make([]models.CellBounds, 0, len(rows)*len(cols))
	for _, r := range rows {
		for _, c := range cols {
			cells = append(cells, models.CellBounds{
				X:      c[0],
				Y:      r[0],
				Width:  c[1] - c[0],
				Height: r[1] - r[0],
			})
		}
	}
	return models.TableStructure{Rows: len(rows), Cols: len(cols), CellBounds: cells}
}

// detectHeader looks for the highlight color (orange/yellow) in cells that
// start inside the top band of the image.
func (d *detector) detectHeader(img *raster.Image, table models.TableStructure) bool {
	band := int(float64(img.Height) * d.opts.HeaderBand)
	var highlighted, total int
	for _, cell := range table.CellBounds {
		if cell.Y >= band {
			continue
		}
		for y := cell.Y; y < cell.Y+cell.Height && y < img.Height; y++ {
			for x := cell.X; x < cell.X+cell.Width && x < img.Width; x++ {
				i := img.Offset(x, y)
				if isHighlight(img.Pix[i], img.Pix[i+1], img.Pix[i+2]) {
					highlighted++
				}
				total++
			}
		}
	}
	if total == 0 {
		return false
	}
	return float64(highlighted)/float64(total) > d.opts.HeaderFraction
}

func isHighlight(r, g, b uint8) bool {
	return r > 200 && g > 100 && b < 100
}

// columnTypes assigns time to the first column and fleet to the rest.
func columnTypes(cols int) []models.ColumnType {
	types := make([]models.ColumnType, cols)
	for i := range types {
		if i == 0 {
			types[i] = models.ColumnTime
		} else {
			types[i] = models.ColumnFleet
		}
	}
	return types
}
