/*
NAME
  packet_test.go

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package tspacket

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func packetBytes(unitStart bool, pid uint16, afc, cc byte) []byte {
	b := make([]byte, Size)
	b[0] = SyncByte
	b[1] = byte(pid >> 8 & 0x1f)
	if unitStart {
		b[1] |= 0x40
	}
	b[2] = byte(pid)
	b[3] = afc<<4 | cc&0xf
	return b
}

func TestDecodeHeader(t *testing.T) {
	cases := []struct {
		name string
		pid  uint16
		us   bool
		afc  byte
		cc   byte
	}{
		{"pat", 0, true, AdaptationPayload, 0},
		{"high pid", 0x1fff, false, AdaptationPayload, 15},
		{"adaptation only", 0x100, false, AdaptationOnly, 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf := packetBytes(c.us, c.pid, c.afc, c.cc)
			if c.afc == AdaptationOnly {
				buf[4] = 183 // fill rest of packet as stuffing.
			}
			got, err := Decode(buf)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			want := Packet{UnitStart: c.us, PID: c.pid, AFC: c.afc, CC: c.cc, PCR: NoPCR}
			got.Payload = nil
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeShort(t *testing.T) {
	_, err := Decode(make([]byte, Size-1))
	if err != ErrShortPacket {
		t.Errorf("got %v, want ErrShortPacket", err)
	}
}

func TestDecodeBadSync(t *testing.T) {
	buf := packetBytes(true, 0, AdaptationPayload, 0)
	buf[0] = 0x00
	_, err := Decode(buf)
	if err != ErrBadSync {
		t.Errorf("got %v, want ErrBadSync", err)
	}
}

func TestDecodePCR(t *testing.T) {
	buf := packetBytes(false, 0x100, AdaptationBoth, 0)
	buf[4] = 7 // adaptation_field_length
	buf[5] = 0x10 // PCR_flag
	// PCR base = 12345, laid out as 33 bits across the first 4.5 bytes.
	const base = uint64(12345)
	buf[6] = byte(base >> 25)
	buf[7] = byte(base >> 17)
	buf[8] = byte(base >> 9)
	buf[9] = byte(base >> 1)
	buf[10] = byte(base<<7) | 0x7f

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.PCR != int64(base) {
		t.Errorf("PCR = %d, want %d", got.PCR, base)
	}
}

func TestDecodeAdaptationOverrun(t *testing.T) {
	buf := packetBytes(false, 0x100, AdaptationOnly, 0)
	buf[4] = 255 // can't possibly fit.
	_, err := Decode(buf)
	if err != ErrAdaptationLen {
		t.Errorf("got %v, want ErrAdaptationLen", err)
	}
}
