//go:build pcap
// +build pcap

package capture

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

type libpcapSource struct {
	h *pcap.Handle
}

// OpenLibpcap opens a capture file through libpcap. A BPF filter limits the
// frames handed back to UDP traffic for dstPort.
func OpenLibpcap(path string, dstPort int) (Source, error) {
	h, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrOpen, path, err)
	}
	filter := fmt.Sprintf("udp dst port %d", dstPort)
	if err := h.SetBPFFilter(filter); err != nil {
		h.Close()
		return nil, fmt.Errorf("%w %s: BPF filter %q: %v", ErrOpen, path, filter, err)
	}
	return &libpcapSource{h: h}, nil
}

func (s *libpcapSource) NextFrame() (Frame, error) {
	data, ci, err := s.h.ReadPacketData()
	if err != nil {
		return Frame{}, err
	}
	return Frame{Data: data, Length: ci.CaptureLength, Timestamp: ci.Timestamp}, nil
}

func (s *libpcapSource) LinkType() layers.LinkType {
	return s.h.LinkType()
}

func (s *libpcapSource) Close() error {
	s.h.Close()
	return nil
}
