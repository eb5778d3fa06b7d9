// Package capture reads link-layer frames from capture files one at a time.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var (
	ErrOpen = errors.New("cannot open capture")
)

// pcapng section header block type
const ngMagic = 0x0A0D0D0A

// Frame is one captured link-layer frame. Length is the captured length
// declared by the capture record.
type Frame struct {
	Data      []byte
	Length    int
	Timestamp time.Time
}

// Source yields frames until io.EOF. Any other error is a read failure.
type Source interface {
	NextFrame() (Frame, error)
	LinkType() layers.LinkType
	Close() error
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

type fileSource struct {
	f *os.File
	r packetReader
}

// Open opens a pcap or pcapng file, chosen by its magic number.
func Open(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrOpen, path, err)
	}
	r, err := newPacketReader(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w %s: %v", ErrOpen, path, err)
	}
	return &fileSource{f: f, r: r}, nil
}

func newPacketReader(br *bufio.Reader) (packetReader, error) {
	magic, err := br.Peek(4)
	if err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(magic) == ngMagic {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

func (s *fileSource) NextFrame() (Frame, error) {
	data, ci, err := s.r.ReadPacketData()
	if err != nil {
		return Frame{}, err
	}
	return Frame{Data: data, Length: ci.CaptureLength, Timestamp: ci.Timestamp}, nil
}

func (s *fileSource) LinkType() layers.LinkType {
	return s.r.LinkType()
}

func (s *fileSource) Close() error {
	return s.f.Close()
}
