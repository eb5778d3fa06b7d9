// Package pipeline drives frame filtering, packet decoding and geometry
// conversion over a capture in bounded chunks.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"time"

	"lidarextract/pkg/calib"
	"lidarextract/pkg/capture"
	"lidarextract/pkg/geometry"
	"lidarextract/pkg/packet"
)

// DefaultChunkSize bounds a chunk to roughly 1.3 GB of decoded records.
const DefaultChunkSize = 100000

type State int

const (
	Reading State = iota
	Finished
)

func (s State) String() string {
	switch s {
	case Reading:
		return "reading"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stats counts what happened to every frame pulled from the source.
// FirstFrame and LastFrame span the capture times of the accepted frames.
type Stats struct {
	FramesRead       int       `json:"frames_read"`
	FramesAccepted   int       `json:"frames_accepted"`
	FramesRejected   int       `json:"frames_rejected"`
	TruncatedPackets int       `json:"truncated_packets"`
	RecordsDecoded   int       `json:"records_decoded"`
	Measurements     int       `json:"measurements"`
	ChunksWritten    int       `json:"chunks_written"`
	FirstFrame       time.Time `json:"first_frame"`
	LastFrame        time.Time `json:"last_frame"`
}

// Pipeline owns the read cursor of one capture source. It is not safe for
// concurrent use.
type Pipeline struct {
	src   capture.Source
	conv  *geometry.Converter
	state State
	stats Stats
}

func New(src capture.Source, cal *calib.Set) *Pipeline {
	return &Pipeline{
		src:  src,
		conv: geometry.NewConverter(cal),
	}
}

func (p *Pipeline) State() State {
	return p.state
}

func (p *Pipeline) Stats() Stats {
	return p.stats
}

// Advance pulls frames until capacity records were decoded or the source is
// exhausted. A capacity of 0 or less reads the rest of the source into one
// chunk. Truncated packets are counted and skipped; read errors abort.
func (p *Pipeline) Advance(capacity int) ([]*packet.RawRecord, error) {
	var chunk []*packet.RawRecord
	for p.state == Reading && (capacity <= 0 || len(chunk) < capacity) {
		f, err := p.src.NextFrame()
		if errors.Is(err, io.EOF) {
			p.state = Finished
			break
		}
		if err != nil {
			return chunk, fmt.Errorf("reading frame %d: %w", p.stats.FramesRead+1, err)
		}
		p.stats.FramesRead++

		if !packet.Accept(f.Data, f.Length) {
			p.stats.FramesRejected++
			continue
		}
		p.stats.FramesAccepted++
		if p.stats.FirstFrame.IsZero() {
			p.stats.FirstFrame = f.Timestamp
		}
		p.stats.LastFrame = f.Timestamp

		data := f.Data
		if f.Length > 0 && f.Length < len(data) {
			data = data[:f.Length]
		}
		rec, err := packet.DecodeFrame(data)
		if err != nil {
			p.stats.TruncatedPackets++
			Logf("skipping frame %d: %v", p.stats.FramesRead, err)
			continue
		}
		p.stats.RecordsDecoded++
		chunk = append(chunk, rec)
	}
	return chunk, nil
}

// Convert expands every record of chunk into measurements, in order.
func (p *Pipeline) Convert(chunk []*packet.RawRecord) []geometry.Measurement {
	var out []geometry.Measurement
	for _, rec := range chunk {
		out = p.conv.Convert(out, rec)
	}
	p.stats.Measurements += len(out)
	return out
}
