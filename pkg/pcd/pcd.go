package pcd

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	lzf "github.com/zhuyie/golzf"
)

var (
	ErrUnsupportPcdVersion   = errors.New("unsupport pcd version")
	ErrUnsupportPcdFieldSize = errors.New("unsupport pcd field size")
	ErrUnsupportPcdFieldType = errors.New("unsupport pcd field type")
	ErrUnsupportPcdDataType  = errors.New("unsupport pcd data type")
	ErrInvalidPcdFormat      = errors.New("invalid pcd format")
)

type Point struct {
	X, Y, Z   float32
	Intensity float32
}

type Pcd struct {
	Fields []string
	Points []Point
}

func (pcd *Pcd) AddPoint(pt Point) {
	pcd.Points = append(pcd.Points, pt)
}

// layout describes the per-point fields declared by a PCD header.
type layout struct {
	fields map[string]int
	sizes  []int
	types  []string
	counts []int
}

func (l *layout) pointSize() int {
	var n int
	for i := range l.sizes {
		n += l.sizes[i] * l.counts[i]
	}
	return n
}

func DecodePcd(r io.Reader) (pcd *Pcd, err error) {
	bio := bufio.NewReader(r)
	var version string
	for {
		version, err = bio.ReadString('\n')
		if err != nil {
			return
		}
		if !strings.HasPrefix(version, "#") {
			break
		}
	}

	if !strings.HasPrefix(version, "VERSION 0.7") && !strings.HasPrefix(version, "VERSION .7") {
		return nil, ErrUnsupportPcdVersion
	}

	var headers = map[string][]string{}
	for i := 0; i < 9; i++ {
		header, err := bio.ReadString('\n')
		if err != nil {
			return nil, err
		}
		h := strings.Fields(header)
		if len(h) < 1 {
			return nil, ErrInvalidPcdFormat
		}
		headers[h[0]] = h[1:]
	}

	l := &layout{fields: map[string]int{}}
	for i, f := range headers["FIELDS"] {
		l.fields[f] = i
	}
	if l.sizes, err = getIntHeaders(headers, "SIZE"); err != nil {
		return
	}
	if l.counts, err = getIntHeaders(headers, "COUNT"); err != nil {
		return
	}
	l.types = headers["TYPE"]
	n := len(headers["FIELDS"])
	if n == 0 || len(l.sizes) != n || len(l.types) != n || len(l.counts) != n {
		return nil, ErrInvalidPcdFormat
	}
	for i := range l.sizes {
		if err = checkType(l.types[i], l.sizes[i]); err != nil {
			return
		}
	}

	if len(headers["DATA"]) != 1 {
		return nil, ErrInvalidPcdFormat
	}
	dataType := strings.ToLower(headers["DATA"][0])

	if len(headers["WIDTH"]) != 1 || len(headers["HEIGHT"]) != 1 {
		return nil, ErrInvalidPcdFormat
	}
	width, _ := strconv.Atoi(headers["WIDTH"][0])
	height, _ := strconv.Atoi(headers["HEIGHT"][0])

	pcd = &Pcd{
		Fields: headers["FIELDS"],
		Points: []Point{},
	}
	switch dataType {
	case "binary":
		err = pcd.LoadBinPoints(bio, l)
	case "ascii":
		err = pcd.LoadAsciiPoints(bio, l)
	case "binary_compressed":
		err = pcd.LoadBinCompressedPoints(bio, width*height, l)
	default:
		return nil, ErrUnsupportPcdDataType
	}
	if err != nil {
		return nil, err
	}
	return
}

const (
	BinaryCompressedSize = 8
)

// LoadBinCompressedPoints reads LZF compressed data stored field by field:
// every value of the first field, then every value of the second, and so on.
func (pcd *Pcd) LoadBinCompressedPoints(r io.Reader, points int, l *layout) (err error) {
	compressedSizesRaw := make([]byte, BinaryCompressedSize)
	if _, err = io.ReadFull(r, compressedSizesRaw); err != nil {
		return
	}
	compressedSize := binary.LittleEndian.Uint32(compressedSizesRaw[:4])
	uncompressedSize := binary.LittleEndian.Uint32(compressedSizesRaw[4:])
	if uncompressedSize != uint32(points*l.pointSize()) {
		return ErrInvalidPcdFormat
	}
	if points == 0 {
		return nil
	}

	raw := make([]byte, compressedSize)
	if _, err = io.ReadFull(r, raw); err != nil {
		return
	}
	uncompressed := make([]byte, uncompressedSize)
	n, err := lzf.Decompress(raw, uncompressed)
	if err != nil {
		return
	}
	if n != int(uncompressedSize) {
		return ErrInvalidPcdFormat
	}

	xi, yi, zi, ii := l.fieldIndex("x"), l.fieldIndex("y"), l.fieldIndex("z"), l.fieldIndex("intensity")
	if xi < 0 || yi < 0 || zi < 0 {
		return ErrInvalidPcdFormat
	}
	columns := make([]int, len(l.sizes))
	var off int
	for i := range l.sizes {
		columns[i] = off
		off += l.sizes[i] * l.counts[i] * points
	}
	value := func(field, p int) float32 {
		w := l.sizes[field] * l.counts[field]
		b := uncompressed[columns[field]+p*w:]
		return float32(readValue(b, l.sizes[field], l.types[field]))
	}
	for p := 0; p < points; p++ {
		pt := Point{X: value(xi, p), Y: value(yi, p), Z: value(zi, p)}
		if ii >= 0 {
			pt.Intensity = value(ii, p)
		}
		pcd.AddPoint(pt)
	}
	return nil
}

func (pcd *Pcd) LoadBinPoints(r io.Reader, l *layout) (err error) {
	xb, yb, zb, ib := l.fieldOffset("x"), l.fieldOffset("y"), l.fieldOffset("z"), l.fieldOffset("intensity")
	if xb < 0 || yb < 0 || zb < 0 {
		return ErrInvalidPcdFormat
	}
	value := func(bs []byte, field string, off int) float32 {
		i := l.fields[field]
		return float32(readValue(bs[off:], l.sizes[i], l.types[i]))
	}

	bs := make([]byte, l.pointSize())
	for {
		_, err = io.ReadFull(r, bs)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		pt := Point{
			X: value(bs, "x", xb),
			Y: value(bs, "y", yb),
			Z: value(bs, "z", zb),
		}
		if ib >= 0 {
			pt.Intensity = value(bs, "intensity", ib)
		}
		pcd.AddPoint(pt)
	}

	return nil
}

func (pcd *Pcd) LoadAsciiPoints(r *bufio.Reader, l *layout) error {
	var fs []float64
	var err error
	xi, yi, zi, ii := l.valueIndex("x"), l.valueIndex("y"), l.valueIndex("z"), l.valueIndex("intensity")
	if !(xi >= 0 && yi >= 0 && zi >= 0) {
		return ErrInvalidPcdFormat
	}
	var n int
	for _, i := range l.counts {
		n += i
	}
	fs = make([]float64, n)
	for {
		fs = fs[:0]
		err = AsciiGetFloats(r, &fs)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if len(fs) != n {
			return ErrInvalidPcdFormat
		}

		pt := Point{
			X: float32(fs[xi]),
			Y: float32(fs[yi]),
			Z: float32(fs[zi]),
		}
		if ii >= 0 {
			pt.Intensity = float32(fs[ii])
		}
		pcd.AddPoint(pt)
	}
	return nil
}

func (pcd *Pcd) PointCount() int {
	return len(pcd.Points)
}

// XYArea returns the ground footprint covered by the cloud. precision is the
// number of grid cells per meter; 1 counts square meters.
func (pcd *Pcd) XYArea(precision float32) float32 {
	areas := make(map[int]map[int]bool)
	var x, y, sum int
	var l map[int]bool
	var ok bool
	for _, p := range pcd.Points {
		x = int(math.Floor(float64(p.X * precision)))
		y = int(math.Floor(float64(p.Y * precision)))
		l, ok = areas[x]
		if !ok {
			areas[x] = make(map[int]bool)
			l = areas[x]
		}
		l[y] = true
	}
	for _, l := range areas {
		sum += len(l)
	}
	return float32(sum) / precision / precision
}

func getIntHeaders(headers map[string][]string, field string) ([]int, error) {
	vals := []int{}
	for _, v := range headers[field] {
		vi, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid int field %s", field)
		}
		vals = append(vals, vi)
	}
	return vals, nil
}

func checkType(typ string, size int) error {
	switch typ {
	case "F":
		if size != 4 && size != 8 {
			return ErrUnsupportPcdFieldSize
		}
	case "U", "I":
		if size != 1 && size != 2 && size != 4 && size != 8 {
			return ErrUnsupportPcdFieldSize
		}
	default:
		return ErrUnsupportPcdFieldType
	}
	return nil
}

func readValue(b []byte, size int, typ string) float64 {
	switch {
	case typ == "F" && size == 4:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case typ == "F" && size == 8:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case typ == "U" && size == 1:
		return float64(b[0])
	case typ == "U" && size == 2:
		return float64(binary.LittleEndian.Uint16(b))
	case typ == "U" && size == 4:
		return float64(binary.LittleEndian.Uint32(b))
	case typ == "U" && size == 8:
		return float64(binary.LittleEndian.Uint64(b))
	case typ == "I" && size == 1:
		return float64(int8(b[0]))
	case typ == "I" && size == 2:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case typ == "I" && size == 4:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case typ == "I" && size == 8:
		return float64(int64(binary.LittleEndian.Uint64(b)))
	}
	return math.NaN()
}

func (l *layout) fieldIndex(field string) int {
	id, ok := l.fields[field]
	if !ok {
		return -1
	}
	return id
}

// fieldOffset is the byte offset of field inside one packed point.
func (l *layout) fieldOffset(field string) int {
	id, ok := l.fields[field]
	if !ok {
		return -1
	}
	var begin int
	for i := 0; i < id; i++ {
		begin += l.sizes[i] * l.counts[i]
	}
	return begin
}

// valueIndex is the position of field among the values of one ascii line.
func (l *layout) valueIndex(field string) int {
	id, ok := l.fields[field]
	if !ok {
		return -1
	}
	var idx int
	for i := 0; i < id; i++ {
		idx += l.counts[i]
	}
	return idx
}

func AsciiGetFloats(r *bufio.Reader, fs *[]float64) (err error) {
	line, _, err := r.ReadLine()
	if err != nil {
		return
	}
	var v float64
	for _, r := range strings.Fields(string(line)) {
		v, err = strconv.ParseFloat(r, 64)
		if err != nil {
			return
		}
		*fs = append(*fs, v)
	}
	return
}

func writeHeader(w io.Writer, fields []string, sizes []int, types []string, points int, data string) error {
	byf := bytes.NewBuffer(make([]byte, 0, 256))
	byf.WriteString("# .PCD v0.7 - Point Cloud Data file format\n")
	byf.WriteString("VERSION 0.7\n")
	byf.WriteString("FIELDS " + strings.Join(fields, " ") + "\n")
	byf.WriteString("SIZE " + joinInts(sizes) + "\n")
	byf.WriteString("TYPE " + strings.Join(types, " ") + "\n")
	counts := make([]int, len(fields))
	for i := range counts {
		counts[i] = 1
	}
	byf.WriteString("COUNT " + joinInts(counts) + "\n")
	byf.WriteString(fmt.Sprintf("WIDTH %d\n", points))
	byf.WriteString("HEIGHT 1\n")
	byf.WriteString("VIEWPOINT 0 0 0 1 0 0 0\n")
	byf.WriteString(fmt.Sprintf("POINTS %d\n", points))
	byf.WriteString("DATA " + data + "\n")
	_, err := w.Write(byf.Bytes())
	return err
}

func joinInts(vs []int) string {
	s := make([]string, len(vs))
	for i, v := range vs {
		s[i] = strconv.Itoa(v)
	}
	return strings.Join(s, " ")
}
