// Package pcapsource turns pcap and pcapng captures into tcpdump-style text
// so they flow through the same line parser as text logs.
package pcapsource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Source reads packets and renders each as a line.
type Source struct {
	r       packetReader
	packets int
	skipped int
}

// NewSource detects pcap or pcapng from the file magic.
func NewSource(r io.Reader) (*Source, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}

	var pr packetReader
	if bytes.Equal(magic, ngMagic) {
		pr, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		pr, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	return &Source{r: pr}, nil
}

// Next returns the next rendered line, skipping packets with nothing to
// render. It returns io.EOF at the end of the capture.
func (s *Source) Next() (string, error) {
	for {
		data, ci, err := s.r.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", fmt.Errorf("read packet %d: %w", s.packets+1, err)
		}
		s.packets++
		pkt := gopacket.NewPacket(data, s.r.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		if line, ok := FormatPacket(ci.Timestamp, pkt); ok {
			return line, nil
		}
		s.skipped++
	}
}

// Packets is the number of packets read so far.
func (s *Source) Packets() int { return s.packets }

// Skipped is the number of packets that produced no line.
func (s *Source) Skipped() int { return s.skipped }

// WriteTo writes every remaining line to w.
func (s *Source) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for {
		line, err := s.Next()
		if err == io.EOF {
			return n, bw.Flush()
		}
		if err != nil {
			_ = bw.Flush()
			return n, err
		}
		m, werr := bw.WriteString(line + "\n")
		n += int64(m)
		if werr != nil {
			return n, werr
		}
	}
}

// Lines exposes a capture as a text stream. A capture read failure reaches
// the consumer as a read error. Close the result to stop the conversion.
func Lines(ctx context.Context, r io.Reader) (io.ReadCloser, error) {
	src, err := NewSource(r)
	if err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	go func() {
		stop := context.AfterFunc(ctx, func() { pw.CloseWithError(ctx.Err()) })
		defer stop()
		_, err := src.WriteTo(pw)
		pw.CloseWithError(err)
	}()
	return pr, nil
}
