package pipeline

import (
	"context"
	"fmt"

	"lidarextract/pkg/calib"
	"lidarextract/pkg/capture"
	"lidarextract/pkg/geometry"

	"github.com/google/gopacket/layers"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Writer receives the measurements of each non-empty chunk. Chunk indices
// start at 1.
type Writer interface {
	WriteChunk(index int, ms []geometry.Measurement) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(index int, ms []geometry.Measurement) error

func (f WriterFunc) WriteChunk(index int, ms []geometry.Measurement) error {
	return f(index, ms)
}

// ChunkSummary describes one written chunk.
type ChunkSummary struct {
	Index        int     `json:"index"`
	Records      int     `json:"records"`
	Measurements int     `json:"measurements"`
	MinRange     float64 `json:"min_range_m"`
	MaxRange     float64 `json:"max_range_m"`
	MeanRange    float64 `json:"mean_range_m"`
}

// Report is the outcome of Run.
type Report struct {
	Stats     Stats          `json:"stats"`
	Chunks    []ChunkSummary `json:"chunks"`
	Cancelled bool           `json:"cancelled,omitempty"`
}

// Run converts the whole source chunk by chunk and hands each chunk to w.
// Cancelling ctx stops the run after the chunk in progress. The caller keeps
// ownership of src and must close it.
func Run(ctx context.Context, src capture.Source, cal *calib.Set, capacity int, w Writer) (*Report, error) {
	if capacity <= 0 {
		Logf("chunk size %d: the whole capture is loaded into memory at once", capacity)
	}
	if lt := src.LinkType(); lt != layers.LinkTypeEthernet {
		Logf("capture link type is %v, frames are decoded as Ethernet", lt)
	}

	p := New(src, cal)
	report := &Report{}
	index := 0
	for p.State() == Reading {
		if ctx.Err() != nil {
			report.Cancelled = true
			Logf("run cancelled after %d chunks: %v", index, ctx.Err())
			break
		}

		chunk, err := p.Advance(capacity)
		if err != nil {
			report.Stats = p.Stats()
			return report, err
		}
		if len(chunk) == 0 {
			continue
		}

		index++
		ms := p.Convert(chunk)
		if len(ms) > 0 {
			if err := w.WriteChunk(index, ms); err != nil {
				report.Stats = p.Stats()
				return report, fmt.Errorf("writing chunk %d: %w", index, err)
			}
			p.stats.ChunksWritten++
		}
		report.Chunks = append(report.Chunks, summarize(index, len(chunk), ms))
		Logf("chunk %d: %d records, %d measurements", index, len(chunk), len(ms))
	}

	report.Stats = p.Stats()
	if report.Stats.TruncatedPackets > 0 {
		Logf("%d truncated packets were skipped", report.Stats.TruncatedPackets)
	}
	return report, nil
}

func summarize(index, records int, ms []geometry.Measurement) ChunkSummary {
	s := ChunkSummary{Index: index, Records: records, Measurements: len(ms)}
	if len(ms) == 0 {
		return s
	}
	ranges := make([]float64, len(ms))
	for i := range ms {
		ranges[i] = ms[i].Range
	}
	s.MinRange = floats.Min(ranges)
	s.MaxRange = floats.Max(ranges)
	s.MeanRange = stat.Mean(ranges, nil)
	return s
}
