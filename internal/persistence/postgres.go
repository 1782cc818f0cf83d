package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/lib/pq"
)

const (
	// DefaultTable receives the extracted schedule rows.
	DefaultTable = "preventivas"

	defaultStatus          = "pendente"
	defaultMaintenanceType = "preventiva"
	dateLayout             = "2006-01-02"
)

// ScheduleRow is one maintenance schedule entry built from an extraction result.
type ScheduleRow struct {
	FleetID         string
	Location        string
	MaintenanceType string
	ScheduledDate   time.Time
	Status          string
	ScheduledTime   string
	Note            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Sink writes schedule rows to the schedule store.
type Sink interface {
	// Insert writes all rows atomically and returns how many were written.
	Insert(ctx context.Context, rows []ScheduleRow) (int, error)
	Table() string
	Close() error
}

// BuildRows maps results onto schedule rows. Missing request fields fall back
// to a pending preventive maintenance scheduled for the day of now.
func BuildRows(results []models.ExtractionResult, req models.PersistRequest, now time.Time) ([]ScheduleRow, error) {
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if s := strings.TrimSpace(req.ScheduledDate); s != "" {
		d, err := time.ParseInLocation(dateLayout, s, now.Location())
		if err != nil {
			return nil, fmt.Errorf("data_programada must be YYYY-MM-DD: %w", err)
		}
		date = d
	}

	status := orDefault(req.Status, defaultStatus)
	kind := orDefault(req.MaintenanceType, defaultMaintenanceType)

	rows := make([]ScheduleRow, 0, len(results))
	for _, r := range results {
		note := strings.TrimSpace(req.Note)
		if note == "" {
			note = fmt.Sprintf("Extraído automaticamente (%.2f%%, %s)", r.Confidence, r.SourceLabel())
		}
		rows = append(rows, ScheduleRow{
			FleetID:         r.FleetID,
			Location:        strings.TrimSpace(req.Location),
			MaintenanceType: kind,
			ScheduledDate:   date,
			Status:          status,
			ScheduledTime:   r.TimeOfDay,
			Note:            note,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return rows, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

// PostgresSink inserts schedule rows with database/sql and lib/pq.
type PostgresSink struct {
	db    *sql.DB
	table string
}

// NewPostgresSink opens and pings the database.
func NewPostgresSink(ctx context.Context, databaseURL, table string) (*PostgresSink, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresSink{db: db, table: orDefault(table, DefaultTable)}, nil
}

// Table returns the target table name.
func (s *PostgresSink) Table() string {
	return s.table
}

// Close closes the connection pool.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

// InsertStatement builds the parameterized insert for table.
func InsertStatement(table string) string {
	return "INSERT INTO " + quoteTable(table) + ` (
		frota, local, tipo_preventiva, data_programada, situacao,
		horario_agendado, observacao, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
}

// quoteTable quotes each dot-separated part, so schema.table works.
func quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// Insert writes rows in one transaction. Nothing is written on error.
func (s *PostgresSink) Insert(ctx context.Context, rows []ScheduleRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", describe(err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, InsertStatement(s.table))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", describe(err))
	}
	defer stmt.Close()

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.FleetID, nullable(r.Location), r.MaintenanceType, r.ScheduledDate, r.Status,
			r.ScheduledTime, r.Note, r.CreatedAt, r.UpdatedAt,
		); err != nil {
			return 0, fmt.Errorf("insert row %d (frota %s): %w", i, r.FleetID, describe(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", describe(err))
	}
	return len(rows), nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// describe adds the SQLSTATE name to PostgreSQL errors.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s (%s): %w", pqErr.Code.Name(), pqErr.Code, err)
	}
	return err
}
