/*
NAME
  extract_test.go

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package extract

import (
	"testing"

	"github.com/ausocean/psisiarc/psi"
	"github.com/ausocean/psisiarc/tspacket"
)

type dumbLogger struct{}

func (dumbLogger) Log(l int8, m string, a ...interface{})  {}
func (dumbLogger) SetLevel(l int8)                         {}
func (dumbLogger) Debug(msg string, args ...interface{})   {}
func (dumbLogger) Info(msg string, args ...interface{})    {}
func (dumbLogger) Warning(msg string, args ...interface{}) {}
func (dumbLogger) Error(msg string, args ...interface{})   {}
func (dumbLogger) Fatal(msg string, args ...interface{})   {}

func patSection(refs []struct {
	prog uint16
	pid  uint16
}) []byte {
	sectionLen := 5 + 4*len(refs) + 4
	buf := []byte{0x00, 0xb0 | byte(sectionLen>>8), byte(sectionLen), 0x00, 0x01, 0xc1, 0, 0}
	for _, r := range refs {
		buf = append(buf, byte(r.prog>>8), byte(r.prog), 0xe0|byte(r.pid>>8), byte(r.pid))
	}
	return psi.AppendCRC(buf)
}

func pmtSection(pcrPID uint16, streamType byte, esPID uint16) []byte {
	buf := []byte{0x02, 0, 0, 0x00, 0x01, 0xc1, 0, 0, 0xe0 | byte(pcrPID>>8), byte(pcrPID), 0xf0, 0x00}
	buf = append(buf, streamType, 0xe0|byte(esPID>>8), byte(esPID), 0xf0, 0x00)
	out := psi.AppendCRC(buf)
	sectionLen := len(out) - 3
	out[1] = 0xb0 | byte(sectionLen>>8)
	out[2] = byte(sectionLen)
	return out
}

func feedSection(e *Extractor, pid uint16, section []byte, sink Sink) {
	payload := append([]byte{0x00}, section...)
	pkt := tspacket.Packet{UnitStart: true, PID: pid, AFC: tspacket.AdaptationPayload, CC: 0, PCR: tspacket.NoPCR, Payload: payload}
	e.Feed(pkt, sink)
}

func TestExtractorTracksProgramAndPMT(t *testing.T) {
	e := New(1, dumbLogger{})
	e.AddTargetStreamType(0x1b)

	var sinks []struct {
		pid     uint16
		section []byte
	}
	sink := func(pid uint16, pcr int64, section []byte) {
		sinks = append(sinks, struct {
			pid     uint16
			section []byte
		}{pid, append([]byte(nil), section...)})
	}

	pat := patSection([]struct {
		prog uint16
		pid  uint16
	}{{1, 0x100}})
	feedSection(e, PatPID, pat, sink)

	if len(sinks) != 1 || sinks[0].pid != PatPID {
		t.Fatalf("expected one synthesized PAT section, got %+v", sinks)
	}

	pmt := pmtSection(0x101, 0x1b, 0x101)
	feedSection(e, 0x100, pmt, sink)

	if len(sinks) != 2 || sinks[1].pid != 0x100 {
		t.Fatalf("expected a synthesized PMT section on PID 0x100, got %+v", sinks)
	}

	if _, ok := e.targets[0x101]; !ok {
		t.Error("expected PID 0x101 to become a capture target after PMT rewrite")
	}
}

func TestExtractorIgnoresUntrackedPID(t *testing.T) {
	e := New(1, dumbLogger{})
	var called bool
	sink := func(pid uint16, pcr int64, section []byte) { called = true }

	pkt := tspacket.Packet{UnitStart: true, PID: 0x999, AFC: tspacket.AdaptationPayload, Payload: []byte{0x00, 0x42, 0xb0, 0x01, 0, 0, 0, 0, 0}}
	e.Feed(pkt, sink)
	if called {
		t.Error("sink invoked for a PID that is neither the PAT nor a tracked target")
	}
}
