/*
NAME
  pmt.go

DESCRIPTION
  pmt.go parses a Program Map Table section and synthesizes a replacement
  PMT containing only the elementary streams whose stream_type is in the
  caller's target set, marking each such stream's PID as a target for
  section extraction.

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

// MaxPMTSize is the cap on a synthesized PMT's size. If copying an ES entry
// or the descriptor loop would overflow it, the rewrite for that round is
// aborted and no PMT is emitted.
const MaxPMTSize = 1024

// NoPCRPID is the PCR_PID value (all 13 bits set) used in a synthesized
// PMT to indicate that it carries no PCR of its own; the archiver's time
// track carries timing instead.
const NoPCRPID uint16 = 0x1fff

// PMTRewriter synthesizes a filtered replacement PMT from a parsed PMT
// section, tracking the version/CRC continuity rule across calls.
type PMTRewriter struct {
	last []byte
}

// Rewrite parses section (a complete PMT section as produced by
// SectionBuffer.Feed) and, if it is current, builds a replacement PMT
// containing only ES entries whose stream_type is in targetTypes. mark is
// called once for every matched ES entry's PID. It returns the synthesized
// PMT bytes, the PCR_PID found in the source PMT, and ok=false if the
// section was not a usable current PMT or the synthesized table would
// overflow MaxPMTSize.
func (r *PMTRewriter) Rewrite(section []byte, targetTypes map[byte]bool, mark func(pid uint16)) (out []byte, pcrPID uint16, ok bool) {
	if len(section) < 12+4 || section[0] != pmtTableID {
		return nil, 0, false
	}
	sectionLen := int(section[1]&0x0f)<<8 | int(section[2])
	if 3+sectionLen > len(section) || sectionLen < 9+4 {
		return nil, 0, false
	}
	if section[5]&0x01 == 0 { // current_next_indicator
		return nil, 0, false
	}

	pcrPID = uint16(section[8]&0x1f)<<8 | uint16(section[9])
	programInfoLen := int(section[10]&0x03)<<8 | int(section[11])
	pos := 3 + 9 + programInfoLen
	tableLen := 3 + sectionLen - 4 // exclude trailing CRC.
	if pos > tableLen {
		return nil, 0, false
	}
	if pos > MaxPMTSize {
		return nil, pcrPID, false
	}

	buf := make([]byte, pos, MaxPMTSize)
	buf[0] = pmtTableID
	buf[3] = section[3]
	buf[4] = section[4]
	if len(r.last) > 5 {
		buf[5] = r.last[5]
	} else {
		buf[5] = initialVersion
	}
	buf[6] = 0
	buf[7] = 0
	buf[8] = 0xff
	buf[9] = 0xff
	buf[10] = section[10]
	buf[11] = section[11]
	copy(buf[12:pos], section[12:pos])

	for p := pos; p+4 < tableLen; {
		streamType := section[p]
		esPID := uint16(section[p+1]&0x1f)<<8 | uint16(section[p+2])
		esInfoLen := int(section[p+3]&0x03)<<8 | int(section[p+4])
		entryLen := 5 + esInfoLen
		if p+entryLen > tableLen {
			break
		}
		if targetTypes[streamType] {
			if len(buf)+entryLen > MaxPMTSize {
				return nil, pcrPID, false
			}
			buf = append(buf, section[p:p+entryLen]...)
			mark(esPID)
		}
		p += entryLen
	}

	newSectionLen := len(buf) + 4 - 3
	buf[1] = 0xb0 | byte(newSectionLen>>8)
	buf[2] = byte(newSectionLen)

	out = finishTable(&r.last, buf)
	return out, pcrPID, true
}
