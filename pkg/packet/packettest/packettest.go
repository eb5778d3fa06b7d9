// Package packettest builds synthetic Ethernet/IPv4/UDP frames carrying
// lidar records for tests.
package packettest

import (
	"net"

	"lidarextract/pkg/packet"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Frame wraps payload in Ethernet, IPv4 and UDP headers addressed to dstPort.
// Lengths are fixed up by gopacket, so the UDP length is len(payload)+8.
func Frame(payload []byte, dstPort uint16) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0xbc, 0x0f, 0xa7, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(169, 254, 0, 2).To4(),
		DstIP:    net.IPv4(169, 254, 0, 1).To4(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(7502),
		DstPort: layers.UDPPort(dstPort),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// RecordFrame encodes rec and wraps it in a frame sent to the sensor port.
func RecordFrame(rec *packet.RawRecord) []byte {
	return Frame(packet.Encode(rec), packet.SensorPort)
}

// SingleReturn returns a record with one valid block holding a single return
// on channel 0.
func SingleReturn(encoder, rangeMM uint32) *packet.RawRecord {
	rec := &packet.RawRecord{}
	b := &rec.Blocks[0]
	b.Timestamp = 1_000_000
	b.MeasurementID = 7
	b.FrameID = 3
	b.EncoderCount = encoder
	b.Status = 1
	b.Channels[0] = packet.ChannelSample{Range: rangeMM, Intensity: 100, Reflectance: 50, Ambient: 25}
	return rec
}
