// Package packet recognises lidar data packets inside captured Ethernet
// frames and decodes their fixed binary layout.
//
// A data packet is one UDP datagram sent to port 7502 whose payload holds
// 16 azimuth blocks of 64 channel samples each:
//
//	AzimuthBlock (788 bytes, little endian)
//	├── timestamp       u64  ns
//	├── measurement id  u16
//	├── frame id        u16  rotation count
//	├── encoder count   u32  [0, 90112)
//	├── 64 × channel    12 bytes each
//	│   ├── range       u32  mm, 0 = no return
//	│   ├── intensity   u16
//	│   ├── reflectance u16
//	│   ├── ambient     u16
//	│   └── unused      u16
//	└── status          u32  nonzero = valid
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	EthernetHeaderSize = 14
	IPv4HeaderSize     = 20
	UDPHeaderSize      = 8

	// PayloadOffset is where the UDP payload starts inside a frame.
	PayloadOffset = EthernetHeaderSize + IPv4HeaderSize + UDPHeaderSize

	SensorPort = 7502

	ChannelsPerBlock = 64
	BlocksPerRecord  = 16

	ChannelSampleSize = 12
	BlockHeaderSize   = 16
	BlockStatusSize   = 4
	BlockSize         = BlockHeaderSize + ChannelsPerBlock*ChannelSampleSize + BlockStatusSize
	RecordSize        = BlocksPerRecord * BlockSize

	// DatagramLength is the UDP length field of a data packet: header plus record.
	DatagramLength = UDPHeaderSize + RecordSize
)

var (
	ErrTruncatedPacket = errors.New("truncated lidar packet")
)

// ChannelSample is one return of one channel.
type ChannelSample struct {
	Range       uint32 // millimeters
	Intensity   uint16
	Reflectance uint16
	Ambient     uint16
}

// AzimuthBlock shares one encoder position and timestamp across all channels.
type AzimuthBlock struct {
	Timestamp     uint64 // nanoseconds
	MeasurementID uint16
	FrameID       uint16
	EncoderCount  uint32
	Channels      [ChannelsPerBlock]ChannelSample
	Status        uint32
}

// Valid reports whether the sensor flagged the block as carrying data.
func (b *AzimuthBlock) Valid() bool {
	return b.Status != 0
}

// RawRecord is one decoded data packet.
type RawRecord struct {
	Blocks [BlocksPerRecord]AzimuthBlock
}

// Accept reports whether frame carries a lidar data packet. length is the
// length declared by the capture; when it is positive and smaller than the
// buffer only that prefix is inspected. Short frames are rejected.
func Accept(frame []byte, length int) bool {
	if length > 0 && length < len(frame) {
		frame = frame[:length]
	}
	if len(frame) < PayloadOffset {
		return false
	}
	udp := frame[EthernetHeaderSize+IPv4HeaderSize:]
	dstPort := binary.BigEndian.Uint16(udp[2:4])
	udpLen := binary.BigEndian.Uint16(udp[4:6])
	return dstPort == SensorPort && udpLen == DatagramLength
}

// Decode reads the record found at offset in frame.
func Decode(frame []byte, offset int) (*RawRecord, error) {
	if offset < 0 || offset > len(frame) || len(frame)-offset < RecordSize {
		have := 0
		if offset >= 0 && offset < len(frame) {
			have = len(frame) - offset
		}
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncatedPacket, RecordSize, offset, have)
	}
	rec := &RawRecord{}
	data := frame[offset : offset+RecordSize]
	for i := range rec.Blocks {
		decodeBlock(data[i*BlockSize:(i+1)*BlockSize], &rec.Blocks[i])
	}
	return rec, nil
}

// DecodeFrame decodes the record carried by an accepted frame.
func DecodeFrame(frame []byte) (*RawRecord, error) {
	return Decode(frame, PayloadOffset)
}

func decodeBlock(data []byte, b *AzimuthBlock) {
	b.Timestamp = binary.LittleEndian.Uint64(data[0:8])
	b.MeasurementID = binary.LittleEndian.Uint16(data[8:10])
	b.FrameID = binary.LittleEndian.Uint16(data[10:12])
	b.EncoderCount = binary.LittleEndian.Uint32(data[12:16])

	off := BlockHeaderSize
	for j := range b.Channels {
		ch := data[off : off+ChannelSampleSize]
		b.Channels[j] = ChannelSample{
			Range:       binary.LittleEndian.Uint32(ch[0:4]),
			Intensity:   binary.LittleEndian.Uint16(ch[4:6]),
			Reflectance: binary.LittleEndian.Uint16(ch[6:8]),
			Ambient:     binary.LittleEndian.Uint16(ch[8:10]),
		}
		off += ChannelSampleSize
	}
	b.Status = binary.LittleEndian.Uint32(data[off : off+BlockStatusSize])
}

// Encode writes rec in the wire layout. The unused channel word is zero.
func Encode(rec *RawRecord) []byte {
	data := make([]byte, RecordSize)
	for i := range rec.Blocks {
		b := &rec.Blocks[i]
		blk := data[i*BlockSize : (i+1)*BlockSize]
		binary.LittleEndian.PutUint64(blk[0:8], b.Timestamp)
		binary.LittleEndian.PutUint16(blk[8:10], b.MeasurementID)
		binary.LittleEndian.PutUint16(blk[10:12], b.FrameID)
		binary.LittleEndian.PutUint32(blk[12:16], b.EncoderCount)
		off := BlockHeaderSize
		for j := range b.Channels {
			ch := blk[off : off+ChannelSampleSize]
			binary.LittleEndian.PutUint32(ch[0:4], b.Channels[j].Range)
			binary.LittleEndian.PutUint16(ch[4:6], b.Channels[j].Intensity)
			binary.LittleEndian.PutUint16(ch[6:8], b.Channels[j].Reflectance)
			binary.LittleEndian.PutUint16(ch[8:10], b.Channels[j].Ambient)
			off += ChannelSampleSize
		}
		binary.LittleEndian.PutUint32(blk[off:off+BlockStatusSize], b.Status)
	}
	return data
}
