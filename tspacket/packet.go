/*
NAME
  packet.go

DESCRIPTION
  packet.go decodes the fixed 188-byte MPEG-2 transport stream packet header
  and, where present, the adaptation field's program clock reference. This is
  deliberately a thin decode: demultiplexing of the PSI payload itself is the
  job of the psi package.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package tspacket provides decoding of MPEG-2 transport stream packet
// headers and adaptation-field program clock references.
package tspacket

import (
	gotspacket "github.com/Comcast/gots/v2/packet"
	"github.com/pkg/errors"
)

// Size is the length in bytes of a transport stream packet payload unit.
// Packet sizes of 192 (4-byte timecode prefix) and 204 (16-byte Reed-Solomon
// suffix) are the caller's concern; only the leading Size bytes of any such
// unit are handed to Decode.
const Size = 188

// SyncByte is the first byte of every transport stream packet.
const SyncByte = 0x47

// NoPCR is returned from Decode for a packet that carries no PCR.
const NoPCR int64 = -1

// Adaptation field control values (bits 5-4 of header byte 3).
const (
	AdaptationNone    = 0x0 // Reserved.
	AdaptationPayload = 0x1 // Payload only, no adaptation field.
	AdaptationOnly    = 0x2 // Adaptation field only, no payload.
	AdaptationBoth    = 0x3 // Adaptation field followed by payload.
)

// Errors returned by Decode.
var (
	ErrShortPacket   = errors.New("tspacket: packet shorter than 188 bytes")
	ErrBadSync       = errors.New("tspacket: sync byte mismatch")
	ErrAdaptationLen = errors.New("tspacket: adaptation field length overruns packet")
)

// Packet holds the decoded header fields of a single transport stream
// packet that are relevant to PSI/SI extraction. Payload aliases the input
// slice; callers that retain it beyond the current call must copy it.
type Packet struct {
	UnitStart bool   // Payload unit start indicator.
	PID       uint16 // 13-bit packet identifier.
	AFC       byte   // Adaptation field control, 2 bits.
	CC        byte   // Continuity counter, 4 bits.
	PCR       int64  // 90kHz program clock reference, or NoPCR if absent.
	Payload   []byte // Payload bytes, nil if AFC indicates no payload.
}

// Decode parses the header (and adaptation-field PCR, if any) of a single
// Size-byte transport stream packet. buf must be at least Size bytes; only
// the first Size bytes are consumed. The unit_start flag, PID, continuity
// counter and payload are read via github.com/Comcast/gots/v2/packet's
// Packet accessors; the adaptation field's PCR is read directly since gots
// exposes adaptation-field presence but not a PCR accessor.
func Decode(buf []byte) (Packet, error) {
	var p Packet
	if len(buf) < Size {
		return p, ErrShortPacket
	}
	if buf[0] != SyncByte {
		return p, ErrBadSync
	}

	var gp gotspacket.Packet
	copy(gp[:], buf[:Size])

	p.UnitStart = gp.PayloadUnitStartIndicator()
	p.PID = uint16(gp.PID())
	p.CC = byte(gp.ContinuityCounter())
	p.AFC = (buf[3] >> 4) & 0x3
	p.PCR = NoPCR

	if gotspacket.ContainsAdaptationField(&gp) {
		afLen := int(buf[4])
		if 5+afLen > Size {
			return p, ErrAdaptationLen
		}
		if afLen > 0 {
			flags := buf[5]
			if flags&0x10 != 0 && afLen >= 6 { // PCR flag.
				p.PCR = decodePCRBase(buf[6:12])
			}
		}
	}

	switch p.AFC {
	case AdaptationPayload, AdaptationBoth:
		if payload, err := gp.Payload(); err == nil {
			p.Payload = payload
		}
	}

	return p, nil
}

// decodePCRBase extracts the 33-bit, 90kHz PCR base from the 6-byte PCR
// field (base:33, reserved:6, extension:9). The 27MHz extension is not
// needed at the 90kHz granularity this archive records timestamps at.
func decodePCRBase(b []byte) int64 {
	base := uint64(b[0])<<25 | uint64(b[1])<<17 | uint64(b[2])<<9 | uint64(b[3])<<1 | uint64(b[4])>>7
	return int64(base)
}
