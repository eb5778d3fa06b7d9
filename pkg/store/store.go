// Package store persists measurements to SQLite.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"lidarextract/pkg/geometry"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Run identifies one conversion in the database.
type Run struct {
	ID          string
	CapturePath string
	CalibPath   string
	ChunkSize   int
	Started     time.Time
}

// NewRun returns a run with a fresh id.
func NewRun(capturePath, calibPath string, chunkSize int) Run {
	return Run{
		ID:          uuid.New().String(),
		CapturePath: capturePath,
		CalibPath:   calibPath,
		ChunkSize:   chunkSize,
		Started:     time.Now(),
	}
}

// SQLiteWriter writes every chunk of one run in its own transaction.
type SQLiteWriter struct {
	db  *sql.DB
	run Run
}

func Open(path string, run Run) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err = db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	_, err = db.Exec(`INSERT INTO runs (run_id, capture_path, calibration_path, chunk_size, started_unix_nanos)
		VALUES (?, ?, ?, ?, ?)`, run.ID, run.CapturePath, run.CalibPath, run.ChunkSize, run.Started.UnixNano())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("recording run: %w", err)
	}
	return &SQLiteWriter{db: db, run: run}, nil
}

func (w *SQLiteWriter) WriteChunk(index int, ms []geometry.Measurement) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO measurements (run_id, chunk, timestamp_ns, frame_id, measurement_id,
		horizontal_angle_deg, vertical_angle_deg, range_m, intensity, reflectance, ambient,
		x_lidar, y_lidar, z_lidar, x_sensor, y_sensor, z_sensor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range ms {
		m := &ms[i]
		_, err = stmt.Exec(w.run.ID, index, int64(m.Timestamp), m.FrameID, m.MeasurementID,
			m.HorizontalAngle, m.VerticalAngle, m.Range, m.Intensity, m.Reflectance, m.Ambient,
			m.Lidar.X, m.Lidar.Y, m.Lidar.Z, m.Sensor.X, m.Sensor.Y, m.Sensor.Z)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting measurement %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of measurements stored for the writer's run.
func (w *SQLiteWriter) Count() (int, error) {
	var n int
	err := w.db.QueryRow(`SELECT COUNT(*) FROM measurements WHERE run_id = ?`, w.run.ID).Scan(&n)
	return n, err
}

func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
