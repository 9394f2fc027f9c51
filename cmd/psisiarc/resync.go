/*
NAME
  resync.go

DESCRIPTION
  resync.go provides a minimal transport stream framing detector:
  locating the packet size (188, 192 or 204 bytes) by searching for
  consecutive sync bytes, so that src need not already be trimmed to
  bare 188-byte packets.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"bufio"
	"io"

	"github.com/ausocean/psisiarc/tspacket"
)

// candidateSizes are the framing sizes resync looks for, in the order
// tried: bare 188-byte packets, 192-byte packets with a leading 4-byte
// timestamp, and 204-byte packets with a trailing 16-byte Reed-Solomon
// block.
var candidateSizes = [...]int{tspacket.Size, tspacket.Size + 4, tspacket.Size + 16}

// packetReader frames raw bytes from a transport stream into fixed-size
// packets, each returned with its framing overhead trimmed so the result
// is always exactly tspacket.Size bytes starting at the sync byte.
type packetReader struct {
	r      *bufio.Reader
	size   int
	synced bool
}

func newPacketReader(r io.Reader) *packetReader {
	return &packetReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// next returns the next packet's payload, trimmed to tspacket.Size bytes
// beginning at its sync byte. It returns io.EOF once src is exhausted.
func (p *packetReader) next() ([]byte, error) {
	if !p.synced {
		if err := p.resync(); err != nil {
			return nil, err
		}
	}
	buf := make([]byte, p.size)
	if _, err := io.ReadFull(p.r, buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, err
	}
	if buf[0] != tspacket.SyncByte {
		p.synced = false
		return p.next()
	}
	return buf[:tspacket.Size], nil
}

// resync finds the framing size by checking for sync bytes at offsets 0
// and size of the lookahead window, for each candidate size in turn. Near
// the end of src, where the window is too short to hold the second
// offset, only the byte at offset 0 is checked.
func (p *packetReader) resync() error {
	lookahead := candidateSizes[len(candidateSizes)-1]*3 + 1
	peek, err := p.r.Peek(lookahead)
	if err != nil && len(peek) == 0 {
		return err
	}
	for _, size := range candidateSizes {
		if hasSyncPattern(peek, size) {
			p.size = size
			p.synced = true
			return nil
		}
	}
	if len(peek) < lookahead {
		// Not enough data left to confirm a pattern; assume bare packets
		// and let next() resync again if that assumption proves wrong.
		p.size = tspacket.Size
		p.synced = true
		return nil
	}
	// No candidate matched at this offset: drop one byte and retry.
	if _, err := p.r.Discard(1); err != nil {
		return err
	}
	return p.resync()
}

func hasSyncPattern(buf []byte, size int) bool {
	for i := 0; i+2*size < len(buf); i += size {
		if buf[i] != tspacket.SyncByte {
			return false
		}
	}
	return len(buf) > 0 && buf[0] == tspacket.SyncByte
}
