package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"lidarextract/pkg/geometry"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func measurements(n int) []geometry.Measurement {
	ms := make([]geometry.Measurement, n)
	for i := range ms {
		lidar := r3.Vec{X: float64(i), Y: -1, Z: 0.5}
		ms[i] = geometry.Measurement{
			Timestamp:       uint64(1000 + i),
			FrameID:         2,
			MeasurementID:   uint16(i),
			HorizontalAngle: float64(i) * 0.35,
			VerticalAngle:   -4.5,
			Range:           r3.Norm(lidar),
			Intensity:       300,
			Reflectance:     12,
			Ambient:         40,
			Lidar:           lidar,
			Sensor:          geometry.ToSensorFrame(lidar),
		}
	}
	return ms
}

func TestNewRun(t *testing.T) {
	a := NewRun("a.pcap", "a.json", 10)
	b := NewRun("a.pcap", "a.json", 10)
	assert.NotEqual(t, a.ID, b.ID)
	_, err := uuid.Parse(a.ID)
	assert.NoError(t, err)
}

func TestSQLiteWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.db")
	run := NewRun("drive.pcap", "beams.json", 100)

	w, err := Open(path, run)
	require.NoError(t, err)
	require.NoError(t, w.WriteChunk(1, measurements(5)))
	require.NoError(t, w.WriteChunk(2, measurements(3)))

	n, err := w.Count()
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	require.NoError(t, w.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var capture string
	var chunkSize int
	require.NoError(t, db.QueryRow(`SELECT capture_path, chunk_size FROM runs WHERE run_id = ?`, run.ID).Scan(&capture, &chunkSize))
	assert.Equal(t, "drive.pcap", capture)
	assert.Equal(t, 100, chunkSize)

	var zSensor, zLidar float64
	var ts int64
	require.NoError(t, db.QueryRow(`SELECT timestamp_ns, z_lidar, z_sensor FROM measurements
		WHERE run_id = ? AND chunk = 2 AND measurement_id = 1`, run.ID).Scan(&ts, &zLidar, &zSensor))
	assert.Equal(t, int64(1001), ts)
	assert.InDelta(t, zLidar+geometry.SensorFrameZOffset, zSensor, 1e-12)
}

func TestSQLiteWriterRunsShareDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.db")

	first, err := Open(path, NewRun("a.pcap", "c.json", 1))
	require.NoError(t, err)
	require.NoError(t, first.WriteChunk(1, measurements(2)))
	require.NoError(t, first.Close())

	second, err := Open(path, NewRun("b.pcap", "c.json", 1))
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.WriteChunk(1, measurements(4)))

	n, err := second.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestOpenBadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "points.db"), NewRun("a", "b", 1))
	assert.Error(t, err)
}
