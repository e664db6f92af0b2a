package dispatch

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Forwarder receives every frame that passed.
type Forwarder interface {
	Forward(f Frame) error
}

// PcapForwarder writes passed frames to a pcap file. Lanes share it, so
// writes are serialized.
type PcapForwarder struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	writer *pcapgo.Writer
	count  uint64
}

// NewPcapForwarder creates path and writes the pcap file header.
func NewPcapForwarder(path string, snaplen uint32, linkType layers.LinkType) (*PcapForwarder, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create forward directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward file: %w", err)
	}
	buf := bufio.NewWriter(file)
	w := pcapgo.NewWriter(buf)
	if err := w.WriteFileHeader(snaplen, linkType); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write pcap file header: %w", err)
	}
	log.Printf("Forwarding passed frames to %s", path)
	return &PcapForwarder{file: file, buf: buf, writer: w}, nil
}

func (p *PcapForwarder) Forward(f Frame) error {
	ci := gopacket.CaptureInfo{
		Timestamp:     f.Timestamp,
		CaptureLength: len(f.Data),
		Length:        f.WireLen,
	}
	if ci.Length < ci.CaptureLength {
		ci.Length = ci.CaptureLength
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.writer.WritePacket(ci, f.Data); err != nil {
		return fmt.Errorf("failed to write forwarded frame: %w", err)
	}
	p.count++
	return nil
}

// Count returns how many frames were written.
func (p *PcapForwarder) Count() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Close flushes and closes the file.
func (p *PcapForwarder) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.buf.Flush(); err != nil {
		p.file.Close()
		return fmt.Errorf("failed to flush forward file: %w", err)
	}
	log.Printf("Forward file closed after %d frames.", p.count)
	return p.file.Close()
}
