/*
NAME
  archiver_test.go

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package archive

import (
	"bytes"
	"testing"
)

type dumbLogger struct{}

func (dumbLogger) Log(l int8, m string, a ...interface{})  {}
func (dumbLogger) SetLevel(l int8)                         {}
func (dumbLogger) Debug(msg string, args ...interface{})   {}
func (dumbLogger) Info(msg string, args ...interface{})    {}
func (dumbLogger) Warning(msg string, args ...interface{}) {}
func (dumbLogger) Error(msg string, args ...interface{})   {}
func (dumbLogger) Fatal(msg string, args ...interface{})   {}

func readHeader(t *testing.T, b []byte) (timeListLen, dictCount, windowSize int, dictDataSize, dictBufSize, codeCount int) {
	t.Helper()
	if len(b) < headerSize {
		t.Fatalf("buffer shorter than a header: %d bytes", len(b))
	}
	if !bytes.Equal(b[0:8], chunkMagic[:]) {
		t.Fatalf("bad magic: %x", b[0:8])
	}
	timeListLen = int(b[8]) | int(b[9])<<8 | int(b[10])<<16 | int(b[11])<<24
	dictCount = int(b[12]) | int(b[13])<<8
	windowSize = int(b[14]) | int(b[15])<<8
	dictDataSize = int(b[16]) | int(b[17])<<8 | int(b[18])<<16 | int(b[19])<<24
	dictBufSize = int(b[20]) | int(b[21])<<8 | int(b[22])<<16 | int(b[23])<<24
	codeCount = int(b[24]) | int(b[25])<<8 | int(b[26])<<16 | int(b[27])<<24
	return
}

func TestFlushOnEmptyArchiverIsNoop(t *testing.T) {
	var buf bytes.Buffer
	a := NewArchiver(&buf, dumbLogger{})
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no bytes written, got %d", buf.Len())
	}
}

func TestAddSingleSectionThenFlush(t *testing.T) {
	var buf bytes.Buffer
	a := NewArchiver(&buf, dumbLogger{})
	section := []byte{0x00, 0xb0, 0x0d, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	if err := a.Add(0x100, 90000, section); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	out := buf.Bytes()
	_, dictCount, _, dictDataSize, dictBufSize, codeCount := readHeader(t, out)
	if dictCount != 1 {
		t.Errorf("dict_entry_count = %d, want 1", dictCount)
	}
	if codeCount != 1 {
		t.Errorf("code_count = %d, want 1", codeCount)
	}
	if dictDataSize != 2+len(section) {
		t.Errorf("dict_data_size = %d, want %d", dictDataSize, 2+len(section))
	}
	if dictBufSize != dictDataSize {
		t.Errorf("dict_buf_size = %d, want %d (no back-references yet)", dictBufSize, dictDataSize)
	}
}

func TestAddDuplicateSectionReusesDictEntry(t *testing.T) {
	var buf bytes.Buffer
	a := NewArchiver(&buf, dumbLogger{})
	section := []byte{0x00, 0xb0, 0x0d, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	if err := a.Add(0x100, 90000, section); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.Add(0x100, 90003, append([]byte(nil), section...)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	_, dictCount, _, _, _, codeCount := readHeader(t, buf.Bytes())
	if dictCount != 1 {
		t.Errorf("dict_entry_count = %d, want 1 (duplicate should not grow the dictionary)", dictCount)
	}
	if codeCount != 2 {
		t.Errorf("code_count = %d, want 2 (one per Add call)", codeCount)
	}
}

func TestAddDistinctPIDsDoNotCollideByToken(t *testing.T) {
	var buf bytes.Buffer
	a := NewArchiver(&buf, dumbLogger{})
	section := []byte{0x00, 0xb0, 0x0d, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	if err := a.Add(0x100, 90000, section); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.Add(0x200, 90003, append([]byte(nil), section...)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	_, dictCount, _, _, _, codeCount := readHeader(t, buf.Bytes())
	if dictCount != 2 {
		t.Errorf("dict_entry_count = %d, want 2 (same bytes on different PIDs are distinct)", dictCount)
	}
	if codeCount != 2 {
		t.Errorf("code_count = %d, want 2", codeCount)
	}
}

func TestBackReferenceAcrossChunkBoundary(t *testing.T) {
	var buf bytes.Buffer
	a := NewArchiver(&buf, dumbLogger{})
	section := []byte{0x00, 0xb0, 0x0d, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	if err := a.Add(0x100, 90000, section); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.Flush(); err != nil { // force a chunk boundary.
		t.Fatalf("Flush: %v", err)
	}
	firstChunkLen := buf.Len()

	if err := a.Add(0x100, 90010, append([]byte(nil), section...)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	secondChunk := buf.Bytes()[firstChunkLen:]
	_, dictCount, _, dictDataSize, dictBufSize, codeCount := readHeader(t, secondChunk)
	if dictCount != 1 {
		t.Errorf("dict_entry_count = %d, want 1", dictCount)
	}
	if codeCount != 1 {
		t.Errorf("code_count = %d, want 1", codeCount)
	}
	if dictDataSize != 0 {
		t.Errorf("dict_data_size = %d, want 0 (entry is a back-reference, not a literal)", dictDataSize)
	}
	if dictBufSize == 0 {
		t.Error("dict_buf_size should still account for the back-reference entry")
	}
}

func TestPCRGoingBackwardsTriggersAbsoluteRecord(t *testing.T) {
	var buf bytes.Buffer
	a := NewArchiver(&buf, dumbLogger{})
	sec1 := []byte{0x00, 0xb0, 0x06, 1, 2, 3}
	sec2 := []byte{0x00, 0xb0, 0x06, 4, 5, 6}

	if err := a.Add(0x100, 1_000_000, sec1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// PCR goes backwards relative to the first section.
	if err := a.Add(0x100, 10_000, sec2); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// absolute(125000), the flushed relative record for the single sample
	// at that time, absolute(1250) once the backwards jump forces a fresh
	// absolute record, then the trailing relative record Flush writes for
	// the sample at 1250: 16 bytes in all.
	timeListLen, _, _, _, _, _ := readHeader(t, buf.Bytes())
	if timeListLen != 16 {
		t.Fatalf("time_list_size = %d, want 16", timeListLen)
	}
	rec3 := buf.Bytes()[headerSize+8 : headerSize+12]
	if rec3[3]&0x80 == 0 {
		t.Error("record following a backwards PCR jump should be absolute")
	}
}

func TestWriteIntervalExtendsWindowWithoutDuplicatingTokens(t *testing.T) {
	var buf bytes.Buffer
	a := NewArchiver(&buf, dumbLogger{}, WithWriteInterval(11000))
	section1 := []byte{0x00, 0xb0, 0x0d, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	section2 := []byte{0x00, 0xb0, 0x06, 9, 9, 9}

	if err := a.Add(0x100, 90000, section1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	firstChunkLen := buf.Len()

	// Nothing in this chunk references section1's PID, so it should be
	// carried forward into the window by extension, not re-literalized.
	if err := a.Add(0x200, 90010, append([]byte(nil), section2...)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	secondChunk := buf.Bytes()[firstChunkLen:]
	_, dictCount, windowSize, dictDataSize, dictBufSize, codeCount := readHeader(t, secondChunk)
	if dictCount != 1 {
		t.Errorf("dict_entry_count = %d, want 1 (only this chunk's own literal)", dictCount)
	}
	if windowSize != 2 {
		t.Errorf("dictionary_window_size = %d, want 2 (this chunk's entry plus the carried-forward one)", windowSize)
	}
	if dictDataSize != 2+len(section2) {
		t.Errorf("dict_data_size = %d, want %d (a carried-forward entry is not re-literalized)", dictDataSize, 2+len(section2))
	}
	if dictBufSize <= dictDataSize {
		t.Error("dict_buf_size should still be inflated by the carried-forward entry's reserved bytes")
	}
	if codeCount != 1 {
		t.Errorf("code_count = %d, want 1", codeCount)
	}

	// A third chunk reusing section1's bytes should resolve as a
	// back-reference, proving the carried-forward entry survived in the
	// in-memory dictionary despite never being serialized in the second
	// chunk.
	thirdChunkStart := buf.Len()
	if err := a.Add(0x100, 90020, append([]byte(nil), section1...)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	thirdChunk := buf.Bytes()[thirdChunkStart:]
	_, dictCount, _, dictDataSize, _, codeCount = readHeader(t, thirdChunk)
	if dictCount != 1 {
		t.Errorf("dict_entry_count = %d, want 1", dictCount)
	}
	if dictDataSize != 0 {
		t.Errorf("dict_data_size = %d, want 0 (section1 resolves as a back-reference)", dictDataSize)
	}
	if codeCount != 1 {
		t.Errorf("code_count = %d, want 1", codeCount)
	}
}

func TestAddEmptySectionIsDropped(t *testing.T) {
	// An empty section fed to Add should not panic or error; it
	// is simply dropped, mirroring the archiver's "only sink writes are
	// fatal" error model.
	var buf bytes.Buffer
	a := NewArchiver(&buf, dumbLogger{})
	if err := a.Add(0x100, 90000, nil); err != nil {
		t.Fatalf("Add(nil section) returned an error: %v", err)
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output for an archiver fed only an empty section, got %d bytes", buf.Len())
	}
}
