package packet_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"lidarextract/pkg/packet"
	"lidarextract/pkg/packet/packettest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutSizes(t *testing.T) {
	assert.Equal(t, 788, packet.BlockSize)
	assert.Equal(t, 12608, packet.RecordSize)
	assert.Equal(t, 12616, packet.DatagramLength)
	assert.Equal(t, 42, packet.PayloadOffset)
}

func TestAccept(t *testing.T) {
	rec := packettest.SingleReturn(0, 1000)
	good := packettest.RecordFrame(rec)
	require.Len(t, good, packet.PayloadOffset+packet.RecordSize)

	assert.True(t, packet.Accept(good, len(good)))
	assert.True(t, packet.Accept(good, 0), "zero declared length means whole buffer")

	t.Run("wrong port", func(t *testing.T) {
		f := packettest.Frame(packet.Encode(rec), 7503)
		assert.False(t, packet.Accept(f, len(f)))
	})

	t.Run("wrong length", func(t *testing.T) {
		f := packettest.Frame(make([]byte, 1024), packet.SensorPort)
		assert.False(t, packet.Accept(f, len(f)))
	})

	t.Run("imu sized payload", func(t *testing.T) {
		f := packettest.Frame(make([]byte, 48), 7503)
		assert.False(t, packet.Accept(f, len(f)))
	})

	t.Run("declared length shorter than header", func(t *testing.T) {
		assert.False(t, packet.Accept(good, 41))
	})
}

func TestAcceptShortFrames(t *testing.T) {
	// Header bytes that would match if read past the end.
	full := make([]byte, packet.PayloadOffset)
	binary.BigEndian.PutUint16(full[36:38], packet.SensorPort)
	binary.BigEndian.PutUint16(full[38:40], packet.DatagramLength)
	require.True(t, packet.Accept(full, len(full)))

	for n := 0; n < packet.PayloadOffset; n++ {
		short := full[:n:n]
		assert.False(t, packet.Accept(short, n), "len %d", n)
	}
	assert.False(t, packet.Accept(nil, 0))
}

func TestDecodeRoundTrip(t *testing.T) {
	rec := &packet.RawRecord{}
	for i := range rec.Blocks {
		b := &rec.Blocks[i]
		b.Timestamp = uint64(1_600_000_000_000_000_000 + i)
		b.MeasurementID = uint16(i * 16)
		b.FrameID = 42
		b.EncoderCount = uint32(i * 88)
		b.Status = uint32(i % 2)
		for j := range b.Channels {
			b.Channels[j] = packet.ChannelSample{
				Range:       uint32(i*1000 + j),
				Intensity:   uint16(j),
				Reflectance: uint16(j + 1),
				Ambient:     uint16(j + 2),
			}
		}
	}

	got, err := packet.DecodeFrame(packettest.RecordFrame(rec))
	require.NoError(t, err)
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("decoded record mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeFieldOffsets(t *testing.T) {
	data := make([]byte, packet.RecordSize)
	blk := data[packet.BlockSize : 2*packet.BlockSize] // second block
	binary.LittleEndian.PutUint64(blk[0:], 0x0102030405060708)
	binary.LittleEndian.PutUint16(blk[8:], 0x1112)
	binary.LittleEndian.PutUint16(blk[10:], 0x2122)
	binary.LittleEndian.PutUint32(blk[12:], 90111)
	ch := blk[16+3*12:] // channel 3
	binary.LittleEndian.PutUint32(ch[0:], 100000)
	binary.LittleEndian.PutUint16(ch[4:], 11)
	binary.LittleEndian.PutUint16(ch[6:], 22)
	binary.LittleEndian.PutUint16(ch[8:], 33)
	binary.LittleEndian.PutUint16(ch[10:], 0xffff) // unused word is ignored
	binary.LittleEndian.PutUint32(blk[packet.BlockSize-4:], 0xffffffff)

	rec, err := packet.Decode(data, 0)
	require.NoError(t, err)
	b := rec.Blocks[1]
	assert.Equal(t, uint64(0x0102030405060708), b.Timestamp)
	assert.Equal(t, uint16(0x1112), b.MeasurementID)
	assert.Equal(t, uint16(0x2122), b.FrameID)
	assert.Equal(t, uint32(90111), b.EncoderCount)
	assert.Equal(t, packet.ChannelSample{Range: 100000, Intensity: 11, Reflectance: 22, Ambient: 33}, b.Channels[3])
	assert.True(t, b.Valid())
	assert.False(t, rec.Blocks[0].Valid())
}

func TestDecodeAllZero(t *testing.T) {
	rec, err := packet.Decode(make([]byte, packet.RecordSize), 0)
	require.NoError(t, err)
	for i, b := range rec.Blocks {
		assert.False(t, b.Valid(), "block %d", i)
	}
}

func TestDecodeTruncated(t *testing.T) {
	frame := packettest.RecordFrame(packettest.SingleReturn(0, 1000))

	cases := map[string]struct {
		frame  []byte
		offset int
	}{
		"one byte short":  {frame[:len(frame)-1], packet.PayloadOffset},
		"headers only":    {frame[:packet.PayloadOffset], packet.PayloadOffset},
		"offset past end": {frame, len(frame) + 10},
		"negative offset": {frame, -1},
		"empty":           {nil, 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec, err := packet.Decode(tc.frame, tc.offset)
			assert.Nil(t, rec)
			assert.True(t, errors.Is(err, packet.ErrTruncatedPacket), "got %v", err)
		})
	}
}
