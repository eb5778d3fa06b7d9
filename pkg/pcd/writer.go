package pcd

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"lidarextract/pkg/geometry"

	"github.com/seqsense/pcgol/pc"
	lzf "github.com/zhuyie/golzf"
)

type Encoding string

const (
	Binary           Encoding = "binary"
	BinaryCompressed Encoding = "binary_compressed"
)

var ErrUnsupportEncoding = errors.New("unsupport pcd encoding")

// Measurement fields, one to one with the LAS dimensions of the sensor
// export: GpsTime, X, Y, Z, Intensity, PointSourceId and the three auxiliary
// channels.
var (
	MeasurementFields = []string{"timestamp", "x", "y", "z", "intensity", "point_source_id", "frame_id", "reflectance", "ambient"}
	measurementSizes  = []int{8, 4, 4, 4, 2, 2, 2, 2, 2}
	measurementTypes  = []string{"U", "F", "F", "F", "U", "U", "U", "U", "U"}
)

const MeasurementPointSize = 30

// NewPointCloud packs measurements into a pcgol point cloud, lidar frame
// coordinates in x/y/z.
func NewPointCloud(ms []geometry.Measurement) *pc.PointCloud {
	counts := make([]int, len(MeasurementFields))
	for i := range counts {
		counts[i] = 1
	}
	pp := &pc.PointCloud{
		PointCloudHeader: pc.PointCloudHeader{
			Version:   0.7,
			Fields:    MeasurementFields,
			Size:      measurementSizes,
			Type:      measurementTypes,
			Count:     counts,
			Width:     len(ms),
			Height:    1,
			Viewpoint: []float32{0, 0, 0, 1, 0, 0, 0},
		},
		Points: len(ms),
		Data:   make([]byte, len(ms)*MeasurementPointSize),
	}
	for i := range ms {
		putMeasurement(pp.Data[i*MeasurementPointSize:], &ms[i])
	}
	return pp
}

func putMeasurement(b []byte, m *geometry.Measurement) {
	binary.LittleEndian.PutUint64(b[0:], m.Timestamp)
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(float32(m.Lidar.X)))
	binary.LittleEndian.PutUint32(b[12:], math.Float32bits(float32(m.Lidar.Y)))
	binary.LittleEndian.PutUint32(b[16:], math.Float32bits(float32(m.Lidar.Z)))
	binary.LittleEndian.PutUint16(b[20:], m.Intensity)
	binary.LittleEndian.PutUint16(b[22:], m.MeasurementID)
	binary.LittleEndian.PutUint16(b[24:], m.FrameID)
	binary.LittleEndian.PutUint16(b[26:], m.Reflectance)
	binary.LittleEndian.PutUint16(b[28:], m.Ambient)
}

// Encode writes measurements as one PCD document.
func Encode(w io.Writer, ms []geometry.Measurement, enc Encoding) error {
	switch enc {
	case Binary, "":
		return pc.Marshal(NewPointCloud(ms), w)
	case BinaryCompressed:
		return encodeCompressed(w, NewPointCloud(ms))
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportEncoding, enc)
	}
}

// encodeCompressed transposes the packed points to field-major order before
// LZF compression, as PCL expects.
func encodeCompressed(w io.Writer, pp *pc.PointCloud) error {
	err := writeHeader(w, pp.Fields, pp.Size, pp.Type, pp.Points, string(BinaryCompressed))
	if err != nil {
		return err
	}

	columns := make([]byte, len(pp.Data))
	var src, dst int
	for f, size := range pp.Size {
		for p := 0; p < pp.Points; p++ {
			copy(columns[dst:dst+size], pp.Data[p*MeasurementPointSize+src:])
			dst += size
		}
		src += size * pp.Count[f]
	}

	sizes := make([]byte, BinaryCompressedSize)
	if len(columns) == 0 {
		_, err = w.Write(sizes)
		return err
	}
	out := make([]byte, len(columns)+len(columns)/8+64)
	n, err := lzf.Compress(columns, out)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(sizes[:4], uint32(n))
	binary.LittleEndian.PutUint32(sizes[4:], uint32(len(columns)))
	if _, err = w.Write(sizes); err != nil {
		return err
	}
	_, err = w.Write(out[:n])
	return err
}

// ChunkWriter writes each chunk to <Dir>/<Prefix>_<index>.pcd.
type ChunkWriter struct {
	Dir      string
	Prefix   string
	Encoding Encoding

	Paths []string
}

// NewChunkWriter names chunk files after the capture file. An empty dir puts
// them next to the capture.
func NewChunkWriter(capturePath, dir string, enc Encoding) *ChunkWriter {
	if dir == "" {
		dir = filepath.Dir(capturePath)
	}
	base := filepath.Base(capturePath)
	return &ChunkWriter{
		Dir:      dir,
		Prefix:   strings.TrimSuffix(base, filepath.Ext(base)),
		Encoding: enc,
	}
}

func (cw *ChunkWriter) Path(index int) string {
	return filepath.Join(cw.Dir, fmt.Sprintf("%s_%d.pcd", cw.Prefix, index))
}

func (cw *ChunkWriter) WriteChunk(index int, ms []geometry.Measurement) (err error) {
	path := cw.Path(index)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriterSize(f, 1<<20)
	if err = Encode(bw, ms, cw.Encoding); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	cw.Paths = append(cw.Paths, path)
	return nil
}
