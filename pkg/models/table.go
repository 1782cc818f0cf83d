package models

// ColumnType is the semantic role of a table column.
type ColumnType string

const (
	ColumnTime  ColumnType = "time"
	ColumnFleet ColumnType = "fleet"
)

// TableStructure is the grid found by the detector. CellBounds is row-major.
type TableStructure struct {
	Rows           int          `json:"rows"`
	Cols           int          `json:"cols"`
	CellBounds     []CellBounds `json:"cell_bounds"`
	HeaderDetected bool         `json:"header_detected"`
	ColumnTypes    []ColumnType `json:"column_types"`
	// Degenerate is set when either axis fell back to the image boundaries.
	Degenerate bool `json:"degenerate"`
}

// Cell returns the bounds at (row, col). ok is false when out of range.
func (t TableStructure) Cell(row, col int) (CellBounds, bool) {
	if row < 0 || col < 0 || row >= t.Rows || col >= t.Cols {
		return CellBounds{}, false
	}
	i := row*t.Cols + col
	if i >= len(t.CellBounds) {
		return CellBounds{}, false
	}
	return t.CellBounds[i], true
}

// ColumnType returns the role of column col, defaulting to fleet.
func (t TableStructure) ColumnType(col int) ColumnType {
	if col >= 0 && col < len(t.ColumnTypes) {
		return t.ColumnTypes[col]
	}
	return ColumnFleet
}

// FirstDataRow is the first row that holds schedule entries.
func (t TableStructure) FirstDataRow() int {
	if t.HeaderDetected && t.Rows > 1 {
		return 1
	}
	return 0
}
