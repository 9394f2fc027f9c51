/*
NAME
  pat.go

DESCRIPTION
  pat.go maintains a mirror of the most recently parsed Program Association
  Table and synthesizes a minimal replacement PAT containing only the
  selected program (and, if present in the source, the NIT reference).

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package psi

const (
	patTableID = 0x00
	pmtTableID = 0x02
)

// initialVersion is the version byte ausocean's archived tables and the
// original psisiarc synthesizer both start from: version_number=0,
// current_next_indicator=1, reserved bits set.
const initialVersion = 0xc1

// PMTRef is one program's entry in a PAT: its program number and the PID
// of the PMT section that describes it. A PMTRef with ProgramNumber==0
// refers to the NIT, not a program.
type PMTRef struct {
	ProgramNumber uint16
	PMTPID        uint16
}

// PAT is a parsed mirror of a Program Association Table section.
type PAT struct {
	TransportStreamID uint16
	Refs              []PMTRef
}

// ParsePAT parses a complete PAT section (as produced by SectionBuffer.Feed,
// i.e. beginning with the table_id byte). It returns false if the section
// is not a current PAT or is too short to be one.
func ParsePAT(section []byte) (PAT, bool) {
	var pat PAT
	if len(section) < 8+4 || section[0] != patTableID {
		return pat, false
	}
	sectionLen := int(section[1]&0x0f)<<8 | int(section[2])
	if 3+sectionLen > len(section) || sectionLen < 5+4 {
		return pat, false
	}
	currentNext := section[5]&0x01 != 0
	if !currentNext {
		return pat, false
	}
	pat.TransportStreamID = uint16(section[3])<<8 | uint16(section[4])

	end := 3 + sectionLen - 4 // exclude trailing CRC.
	for pos := 8; pos+4 <= end; pos += 4 {
		prog := uint16(section[pos])<<8 | uint16(section[pos+1])
		pid := (uint16(section[pos+2]&0x1f) << 8) | uint16(section[pos+3])
		pat.Refs = append(pat.Refs, PMTRef{ProgramNumber: prog, PMTPID: pid})
	}
	return pat, true
}

// NIT returns the NIT PID referenced by the PAT (program_number == 0), if
// any.
func (p PAT) NIT() (uint16, bool) {
	for _, r := range p.Refs {
		if r.ProgramNumber == 0 {
			return r.PMTPID, true
		}
	}
	return 0, false
}

// Select applies the target-program selection rule: a positive
// programOrIndex picks the entry with that program number; a negative one
// picks the |programOrIndex|-th non-NIT program, 1-based. It returns false
// if no entry matches.
func (p PAT) Select(programOrIndex int) (PMTRef, bool) {
	if programOrIndex < 0 {
		k := -programOrIndex
		for _, r := range p.Refs {
			if r.ProgramNumber != 0 {
				k--
				if k == 0 {
					return r, true
				}
			}
		}
		return PMTRef{}, false
	}
	for _, r := range p.Refs {
		if int(r.ProgramNumber) == programOrIndex {
			return r, true
		}
	}
	return PMTRef{}, false
}

// PATSynthesizer builds a minimal replacement PAT section containing one
// program and, optionally, the NIT reference, applying the version-bump
// rule described in the archive format's design notes: the version number
// (and CRC) only change when the synthesized content actually changes.
type PATSynthesizer struct {
	last []byte // previously synthesized PAT, including its CRC.
}

// Synthesize builds the replacement PAT for transport stream id tsid,
// selected program prog, and NIT PID nitPID (nitPresent indicates whether
// the source PAT carried a NIT reference at all).
func (s *PATSynthesizer) Synthesize(tsid uint16, prog PMTRef, nitPID uint16, nitPresent bool) []byte {
	sectionLen := 13
	if nitPresent {
		sectionLen = 17
	}
	buf := make([]byte, 0, 8+4+4)
	buf = append(buf, patTableID)
	buf = append(buf, 0xb0|byte(sectionLen>>8), byte(sectionLen))
	buf = append(buf, byte(tsid>>8), byte(tsid))

	version := byte(initialVersion)
	if len(s.last) > 5 {
		version = s.last[5]
	}
	buf = append(buf, version, 0, 0)

	if nitPresent {
		buf = append(buf, 0, 0, 0xe0|byte(nitPID>>8), byte(nitPID))
	}
	buf = append(buf, byte(prog.ProgramNumber>>8), byte(prog.ProgramNumber))
	buf = append(buf, 0xe0|byte(prog.PMTPID>>8), byte(prog.PMTPID))

	return finishTable(&s.last, buf)
}

// finishTable applies the version/CRC reuse rule shared by PAT and PMT
// synthesis: if buf (up to but excluding the CRC) is byte-identical to the
// previously synthesized table, the old version byte and CRC are reused;
// otherwise the 5-bit version number is bumped (mod 32) and the CRC is
// recomputed. The first table synthesized keeps its initial version byte.
// last is updated to the final, CRC-terminated table.
func finishTable(last *[]byte, buf []byte) []byte {
	if len(*last) == len(buf)+4 && bytesEqualPrefix(*last, buf) {
		out := make([]byte, len(buf)+4)
		copy(out, buf)
		copy(out[len(buf):], (*last)[len(buf):])
		*last = out
		return out
	}
	if len(*last) > 0 {
		buf[5] = 0xc1 | (((buf[5]>>1)+1)&0x1f)<<1
	}
	out := AppendCRC(buf)
	*last = out
	return out
}

func bytesEqualPrefix(full, prefix []byte) bool {
	if len(full) < len(prefix) {
		return false
	}
	for i := range prefix {
		if full[i] != prefix[i] {
			return false
		}
	}
	return true
}
