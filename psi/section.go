/*
NAME
  section.go

DESCRIPTION
  section.go reassembles PSI/SI section fragments carried across the
  payloads of consecutive transport stream packets on a single PID into
  complete, length-delimited sections.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package psi implements PSI/SI section reassembly and PAT/PMT tracking and
// synthesis for the archiver pipeline.
package psi

// MaxSectionSize is the largest section a SectionBuffer can hold.
const MaxSectionSize = 4096

// neverSeen marks a SectionBuffer that has not yet observed a unit-start
// packet. Once seen, the state carries 0x20 ("has ever received a
// unit_start") OR'd with the last accepted 4-bit continuity counter; bit
// 0x10 is never set, so the state space mirrors the teacher's
// DiscontinuityRepairer sentinel pattern (mts.go's expCC==16 sentinel)
// generalized to a PSI section's synthetic counter.
const neverSeen = 0x00
const seenFlag = 0x20

// SectionBuffer holds the in-progress reassembly state for one PID.
type SectionBuffer struct {
	cc    byte // internal 6-bit counter state, masked to 0x2f.
	buf   [MaxSectionSize]byte
	count int
}

// Reset clears the buffer, discarding any partially reassembled section.
// Feed performs the same reset itself on a continuity discontinuity, and a
// zero SectionBuffer is already in the reset state.
func (s *SectionBuffer) Reset() {
	s.cc = neverSeen
	s.count = 0
}

// Feed appends payload bytes from one transport stream packet on this PID's
// SectionBuffer, invoking emit for each complete section produced. emit is
// called synchronously and the byte slice it receives aliases the buffer's
// backing array; it must be copied if retained past the call.
func (s *SectionBuffer) Feed(payload []byte, unitStart bool, counter byte, emit func([]byte)) {
	copyPos := 0

	if unitStart {
		if len(payload) < 1 {
			s.cc = neverSeen
			s.count = 0
			return
		}
		pointer := int(payload[0])
		s.cc = (s.cc + 1) & 0x2f
		if pointer > 0 && s.cc == (seenFlag|counter) {
			copyPos = 1
			if copyPos+pointer <= len(payload) {
				n := pointer
				if n > MaxSectionSize-s.count {
					n = MaxSectionSize - s.count
				}
				copy(s.buf[s.count:], payload[copyPos:copyPos+n])
				s.count += n
			}
			s.emitIfComplete(emit)
		}
		s.cc = seenFlag | counter
		s.count = 0
		copyPos = 1 + pointer
	} else {
		if len(payload) < 1 {
			return
		}
		s.cc = (s.cc + 1) & 0x2f
		if s.cc != (seenFlag | counter) {
			s.cc = neverSeen
			s.count = 0
			return
		}
	}

	for {
		if copyPos < len(payload) {
			n := len(payload) - copyPos
			if n > MaxSectionSize-s.count {
				n = MaxSectionSize - s.count
			}
			copy(s.buf[s.count:], payload[copyPos:copyPos+n])
			s.count += n
			copyPos += n
		}
		if s.count < 3 || s.buf[0] == 0xff {
			return
		}
		sectionLen := int(s.buf[1]&0x0f)<<8 | int(s.buf[2])
		if s.count < 3+sectionLen {
			return
		}
		emit(s.buf[:3+sectionLen])
		copy(s.buf[:], s.buf[3+sectionLen:s.count])
		s.count -= 3 + sectionLen
	}
}

// emitIfComplete emits the buffered section if it is complete and is not a
// stuffing section (first byte 0xFF).
func (s *SectionBuffer) emitIfComplete(emit func([]byte)) {
	if s.count < 3 || s.buf[0] == 0xff {
		return
	}
	sectionLen := int(s.buf[1]&0x0f)<<8 | int(s.buf[2])
	if s.count < 3+sectionLen {
		return
	}
	emit(s.buf[:3+sectionLen])
}
