package geometry

import (
	"math"
	"testing"

	"lidarextract/pkg/calib"
	"lidarextract/pkg/packet"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func oneReturn(encoder, rangeMM uint32) *packet.RawRecord {
	rec := &packet.RawRecord{}
	b := &rec.Blocks[0]
	b.Timestamp = 123456789
	b.MeasurementID = 512
	b.FrameID = 9
	b.EncoderCount = encoder
	b.Status = 1
	b.Channels[0] = packet.ChannelSample{Range: rangeMM, Intensity: 10, Reflectance: 20, Ambient: 30}
	return rec
}

func TestConvertSingleReturn(t *testing.T) {
	c := NewConverter(&calib.Set{})
	got := c.Convert(nil, oneReturn(0, 1000))
	require.Len(t, got, 1)

	want := Measurement{
		Timestamp:     123456789,
		FrameID:       9,
		MeasurementID: 512,
		Range:         1.0,
		Intensity:     10,
		Reflectance:   20,
		Ambient:       30,
		Lidar:         r3.Vec{X: 1.0, Y: 0, Z: 0},
		Sensor:        r3.Vec{X: -1.0, Y: 0, Z: 0.03618},
	}
	if diff := cmp.Diff(want, got[0], cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("measurement mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, math.Signbit(got[0].Lidar.Y), "lidar y is negative zero")
	assert.False(t, math.Signbit(got[0].Sensor.Y))
}

func TestConvertRangeWindow(t *testing.T) {
	c := NewConverter(&calib.Set{})
	cases := []struct {
		rangeMM uint32
		kept    bool
	}{
		{0, false},
		{1, true},
		{MaxRangeMM, true},
		{MaxRangeMM + 1, false},
		{math.MaxUint32, false},
	}
	for _, tc := range cases {
		got := c.Convert(nil, oneReturn(0, tc.rangeMM))
		if tc.kept {
			assert.Len(t, got, 1, "range %d", tc.rangeMM)
		} else {
			assert.Empty(t, got, "range %d", tc.rangeMM)
		}
	}
}

func TestConvertSkipsInvalidBlocks(t *testing.T) {
	rec := &packet.RawRecord{}
	for i := range rec.Blocks {
		for j := range rec.Blocks[i].Channels {
			rec.Blocks[i].Channels[j].Range = 5000
		}
	}
	c := NewConverter(&calib.Set{})
	assert.Empty(t, c.Convert(nil, rec))

	rec.Blocks[4].Status = 0x1
	got := c.Convert(nil, rec)
	assert.Len(t, got, packet.ChannelsPerBlock)

	zero, err := packet.Decode(make([]byte, packet.RecordSize), 0)
	require.NoError(t, err)
	assert.Empty(t, c.Convert(nil, zero))
}

func TestConvertOrdering(t *testing.T) {
	rec := &packet.RawRecord{}
	for _, i := range []int{2, 7} {
		b := &rec.Blocks[i]
		b.Status = 1
		b.MeasurementID = uint16(i)
		for _, j := range []int{0, 31, 63} {
			b.Channels[j] = packet.ChannelSample{Range: 2000, Intensity: uint16(j)}
		}
	}
	got := NewConverter(&calib.Set{}).Convert(nil, rec)
	require.Len(t, got, 6)

	var order [][2]uint16
	for _, m := range got {
		order = append(order, [2]uint16{m.MeasurementID, m.Intensity})
	}
	assert.Equal(t, [][2]uint16{{2, 0}, {2, 31}, {2, 63}, {7, 0}, {7, 31}, {7, 63}}, order)
}

func TestConvertAppends(t *testing.T) {
	c := NewConverter(&calib.Set{})
	dst := c.Convert(nil, oneReturn(0, 1000))
	dst = c.Convert(dst, oneReturn(22528, 2000))
	require.Len(t, dst, 2)
	assert.InDelta(t, 2.0, dst[1].Range, 1e-12)
}

func TestAnglesAndFrames(t *testing.T) {
	cal := &calib.Set{}
	for j := range cal.Altitude {
		cal.Altitude[j] = 20 - float64(j)*0.7
		cal.Azimuth[j] = 4.2 - float64(j%4)*2.8
	}
	c := NewConverter(cal)

	for _, encoder := range []uint32{0, 1, 22528, 45056, 90111} {
		rec := &packet.RawRecord{}
		b := &rec.Blocks[3]
		b.Status = 1
		b.EncoderCount = encoder
		for j := range b.Channels {
			b.Channels[j].Range = uint32(500 + j*1500)
		}

		got := c.Convert(nil, rec)
		require.Len(t, got, packet.ChannelsPerBlock)
		for j, m := range got {
			h := 2 * math.Pi * (float64(encoder)/EncoderTicksPerRev + cal.Azimuth[j]/360)
			v := 2 * math.Pi * (cal.Altitude[j] / 360)

			assert.InDelta(t, h*180/math.Pi, m.HorizontalAngle, 1e-9)
			assert.InDelta(t, v*180/math.Pi, m.VerticalAngle, 1e-9)
			assert.Equal(t, m.Lidar.Z+SensorFrameZOffset, m.Sensor.Z)
			assert.Equal(t, -m.Lidar.X, m.Sensor.X)
			assert.Equal(t, -m.Lidar.Y, m.Sensor.Y)
			assert.InDelta(t, m.Range, r3.Norm(m.Lidar), 1e-9)
		}
	}
}

func TestToSensorFrame(t *testing.T) {
	p := ToSensorFrame(r3.Vec{X: 3, Y: -4, Z: -1.5})
	assert.Equal(t, r3.Vec{X: -3, Y: 4, Z: -1.5 + SensorFrameZOffset}, p)
}
