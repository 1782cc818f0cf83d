package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
)

// Header is the first CSV record.
var Header = []string{
	"Horário", "Frota", "Confiança", "Fonte", "Método",
	"Score_Validação", "Coordenadas_X", "Coordenadas_Y", "Largura", "Altura",
}

// WriteCSV writes the header followed by one record per result.
func WriteCSV(w io.Writer, results []models.ExtractionResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range results {
		if err := cw.Write(Record(r)); err != nil {
			return fmt.Errorf("write csv record %s: %w", r.Key(), err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Record renders one result as a CSV record.
func Record(r models.ExtractionResult) []string {
	return []string{
		r.TimeOfDay,
		r.FleetID,
		fmt.Sprintf("%.2f%%", r.Confidence),
		r.SourceLabel(),
		string(r.ProcessingMethod),
		strconv.FormatFloat(r.ValidationScore, 'f', -1, 64),
		strconv.Itoa(r.Coordinates.X),
		strconv.Itoa(r.Coordinates.Y),
		strconv.Itoa(r.Coordinates.Width),
		strconv.Itoa(r.Coordinates.Height),
	}
}

// CSV renders the results into memory.
func CSV(results []models.ExtractionResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, results); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName is the attachment name for an extraction export.
func FileName(extractionID string) string {
	return "escala-frota-" + extractionID + ".csv"
}
