//go:build !pcap
// +build !pcap

package capture

import (
	"fmt"
)

// OpenLibpcap is a stub when libpcap support is disabled.
// Build with -tags=pcap to enable it.
func OpenLibpcap(path string, dstPort int) (Source, error) {
	return nil, fmt.Errorf("%w %s: libpcap support not enabled: rebuild with -tags=pcap", ErrOpen, path)
}
