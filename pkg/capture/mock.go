package capture

import (
	"errors"
	"io"
	"sync"

	"github.com/google/gopacket/layers"
)

// MockSource serves frames from memory for tests.
type MockSource struct {
	mu sync.Mutex

	Frames []Frame

	// ReadIndex tracks the current position in Frames.
	ReadIndex int

	// ErrAt, when ReadIndex reaches it, makes NextFrame return ReadErr.
	ErrAt   int
	ReadErr error

	// Reads counts NextFrame calls, including the ones returning io.EOF.
	Reads int

	Closed bool

	MockLinkType layers.LinkType
}

// NewMockSource returns a source over Ethernet frames built from data.
func NewMockSource(data ...[]byte) *MockSource {
	m := &MockSource{ErrAt: -1, MockLinkType: layers.LinkTypeEthernet}
	for _, d := range data {
		m.Frames = append(m.Frames, Frame{Data: d, Length: len(d)})
	}
	return m
}

func (m *MockSource) NextFrame() (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Reads++
	if m.Closed {
		return Frame{}, errors.New("source closed")
	}
	if m.ReadErr != nil && m.ReadIndex == m.ErrAt {
		return Frame{}, m.ReadErr
	}
	if m.ReadIndex >= len(m.Frames) {
		return Frame{}, io.EOF
	}
	f := m.Frames[m.ReadIndex]
	m.ReadIndex++
	return f, nil
}

func (m *MockSource) LinkType() layers.LinkType {
	return m.MockLinkType
}

func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Closed = true
	return nil
}
