// Package geometry turns decoded lidar records into calibrated points.
package geometry

import (
	"math"

	"lidarextract/pkg/calib"
	"lidarextract/pkg/packet"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	MaxRangeMM         = 100000
	EncoderTicksPerRev = 90112

	// SensorFrameZOffset is the height of the lidar origin above the sensor
	// origin, in meters.
	SensorFrameZOffset = 36.18 / 1000
)

// Measurement is one calibrated return.
type Measurement struct {
	Timestamp       uint64 // nanoseconds
	FrameID         uint16
	MeasurementID   uint16
	HorizontalAngle float64 // degrees
	VerticalAngle   float64 // degrees
	Range           float64 // meters
	Intensity       uint16
	Reflectance     uint16
	Ambient         uint16
	Lidar           r3.Vec
	Sensor          r3.Vec
}

// Converter applies one calibration set to records.
type Converter struct {
	cal *calib.Set
}

func NewConverter(cal *calib.Set) *Converter {
	return &Converter{cal: cal}
}

// Convert appends the measurements of rec to dst in block then channel order.
// Blocks with zero status and samples outside (0, MaxRangeMM] are skipped.
func (c *Converter) Convert(dst []Measurement, rec *packet.RawRecord) []Measurement {
	for i := range rec.Blocks {
		b := &rec.Blocks[i]
		if !b.Valid() {
			continue
		}
		for j := range b.Channels {
			s := &b.Channels[j]
			if s.Range == 0 || s.Range > MaxRangeMM {
				continue
			}
			dst = append(dst, c.measure(b, j, s))
		}
	}
	return dst
}

func (c *Converter) measure(b *packet.AzimuthBlock, channel int, s *packet.ChannelSample) Measurement {
	rng := float64(s.Range) / 1000
	h := 2 * math.Pi * (float64(b.EncoderCount)/EncoderTicksPerRev + c.cal.Azimuth[channel]/360)
	v := 2 * math.Pi * (c.cal.Altitude[channel] / 360)

	lidar := r3.Vec{
		X: rng * math.Cos(h) * math.Cos(v),
		Y: -rng * math.Sin(h) * math.Cos(v),
		Z: rng * math.Sin(v),
	}
	return Measurement{
		Timestamp:       b.Timestamp,
		FrameID:         b.FrameID,
		MeasurementID:   b.MeasurementID,
		HorizontalAngle: h * 180 / math.Pi,
		VerticalAngle:   v * 180 / math.Pi,
		Range:           rng,
		Intensity:       s.Intensity,
		Reflectance:     s.Reflectance,
		Ambient:         s.Ambient,
		Lidar:           lidar,
		Sensor:          ToSensorFrame(lidar),
	}
}

// ToSensorFrame maps a lidar-frame point into the sensor frame: a half turn
// about z followed by the fixed vertical offset.
func ToSensorFrame(p r3.Vec) r3.Vec {
	return r3.Add(r3.Vec{X: -p.X, Y: -p.Y, Z: p.Z}, r3.Vec{Z: SensorFrameZOffset})
}
