package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ppg-screening/internal/models"
	"ppg-screening/internal/report"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Repository stores BP readings in SQLite (default) or Postgres.
type Repository struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
	now    func() time.Time
}

// NewRepository opens the database and makes sure the schema exists.
func NewRepository(driver, dsn string, logger *zap.Logger) (*Repository, error) {
	driver, err := normalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite3 allows a single writer.
		db.SetMaxOpenConns(1)
	}

	repo := NewRepositoryWithDB(db, driver, logger)
	if err := repo.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewRepositoryWithDB wraps an existing handle without touching the schema.
func NewRepositoryWithDB(db *sql.DB, driver string, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if d, err := normalizeDriver(driver); err == nil {
		driver = d
	}
	return &Repository{db: db, driver: driver, logger: logger, now: time.Now}
}

func (r *Repository) InitSchema(ctx context.Context) error {
	createReadingsTable := `
    CREATE TABLE IF NOT EXISTS bp_readings (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        systolic INTEGER NOT NULL,
        diastolic INTEGER NOT NULL,
        heart_rate INTEGER,
        method TEXT NOT NULL,
        confidence REAL,
        ppg_signal TEXT,
        notes TEXT,
        measured_at BIGINT NOT NULL,
        created_at BIGINT NOT NULL
    );`
	createIndex := `CREATE INDEX IF NOT EXISTS idx_bp_readings_user_time ON bp_readings (user_id, measured_at);`

	for _, stmt := range []string{createReadingsTable, createIndex} {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

// CreateReading inserts a reading and returns its id. A missing id is
// generated.
func (r *Repository) CreateReading(ctx context.Context, reading models.BPReading) (string, error) {
	if reading.ID == "" {
		reading.ID = uuid.NewString()
	}
	if reading.MeasuredAt.IsZero() {
		reading.MeasuredAt = r.now()
	}

	var signal sql.NullString
	if reading.PPGSignal != nil {
		data, err := report.EncodeSignal(*reading.PPGSignal)
		if err != nil {
			return "", err
		}
		signal = sql.NullString{String: string(data), Valid: true}
	}

	query := r.rebind(`INSERT INTO bp_readings (id, user_id, systolic, diastolic, heart_rate, method, confidence, ppg_signal, notes, measured_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		reading.ID,
		reading.UserID,
		reading.Systolic,
		reading.Diastolic,
		nullInt(reading.HeartRateBPM),
		string(reading.Method),
		nullFloat(reading.Confidence),
		signal,
		nullString(reading.Notes),
		reading.MeasuredAt.UnixMilli(),
		r.now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert reading for user %s: %w", reading.UserID, err)
	}
	r.logger.Debug("reading stored",
		zap.String("reading_id", reading.ID),
		zap.String("user_id", reading.UserID),
		zap.String("method", string(reading.Method)),
	)
	return reading.ID, nil
}

// ListReadings returns a user's readings from the last sinceDays days, newest
// first. sinceDays <= 0 returns the full history.
func (r *Repository) ListReadings(ctx context.Context, userID string, sinceDays int) ([]models.BPReading, error) {
	var since int64
	if sinceDays > 0 {
		since = r.now().Add(-time.Duration(sinceDays) * 24 * time.Hour).UnixMilli()
	}
	query := r.rebind(`SELECT id, user_id, systolic, diastolic, heart_rate, method, confidence, ppg_signal, notes, measured_at FROM bp_readings WHERE user_id = ? AND measured_at >= ? ORDER BY measured_at DESC`)
	rows, err := r.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings for user %s: %w", userID, err)
	}
	defer rows.Close()

	readings := []models.BPReading{}
	for rows.Next() {
		var reading models.BPReading
		var method string
		var heartRate sql.NullInt64
		var confidence sql.NullFloat64
		var signal, notes sql.NullString
		var measuredAt int64

		if err := rows.Scan(
			&reading.ID,
			&reading.UserID,
			&reading.Systolic,
			&reading.Diastolic,
			&heartRate,
			&method,
			&confidence,
			&signal,
			&notes,
			&measuredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		reading.Method = models.Method(method)
		reading.MeasuredAt = time.UnixMilli(measuredAt).UTC()
		if heartRate.Valid {
			hr := int(heartRate.Int64)
			reading.HeartRateBPM = &hr
		}
		if confidence.Valid {
			c := confidence.Float64
			reading.Confidence = &c
		}
		if notes.Valid {
			n := notes.String
			reading.Notes = &n
		}
		if signal.Valid {
			sig, err := report.DecodeSignal([]byte(signal.String))
			if err != nil {
				r.logger.Warn("skipping unreadable ppg signal", zap.String("reading_id", reading.ID), zap.Error(err))
			} else {
				reading.PPGSignal = sig
			}
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}
	return readings, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
