/*
NAME
  archiver.go

DESCRIPTION
  archiver.go implements section intake for the dictionary-coded PSI/SI
  archiver: deduplication against the current and previous chunk
  dictionaries, time-track accumulation, and the flush predicate that
  bounds a chunk's size and age.

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
	"io"

	"github.com/ausocean/utils/logging"
)

// Size limits and defaults.
const (
	maxTimeRecords       = 65536 - 4
	defaultDictBufMax    = 16 * 1024 * 1024
	minDictBufMax        = 8 * 1024
	maxDictBufMax        = 1024 * 1024 * 1024
	maxLiteralTokenBytes = 4096
)

// Archiver deduplicates PSI/SI sections across a sliding window of chunks
// and writes the fixed-layout chunk archive format to dst as chunks fill
// or age out. It is not safe for concurrent use.
type Archiver struct {
	dst io.Writer
	log logging.Logger

	tt       timeTrack
	dict     dictionary
	lastDict dictionary
	codeList []byte

	dictDataSize int
	dictBufSize  int
	dictBufMax   int

	lastWriteTime uint32
	writeInterval uint32
	trailerSize   int
}

// Option configures an Archiver at construction.
type Option func(*Archiver)

// WithWriteInterval sets the maximum age, in 11kHz ticks, a chunk may
// reach before being flushed. An interval of 0 disables age-based
// flushing.
func WithWriteInterval(interval11khz uint32) Option {
	return func(a *Archiver) {
		if interval11khz == 0 {
			a.writeInterval = unknownTime
		} else {
			a.writeInterval = interval11khz
		}
	}
}

// WithDictBufMax sets the memory cap on retained dictionary token bytes
// per chunk, clamped to [8 KiB, 1 GiB].
func WithDictBufMax(n int) Option {
	return func(a *Archiver) {
		if n < minDictBufMax {
			n = minDictBufMax
		}
		if n > maxDictBufMax {
			n = maxDictBufMax
		}
		a.dictBufMax = n
	}
}

// NewArchiver returns an Archiver writing chunks to dst.
func NewArchiver(dst io.Writer, log logging.Logger, opts ...Option) *Archiver {
	a := &Archiver{
		dst:           dst,
		log:           log,
		tt:            newTimeTrack(),
		dict:          newDictionary(),
		lastDict:      newDictionary(),
		dictBufMax:    defaultDictBufMax,
		lastWriteTime: unknownTime,
		writeInterval: unknownTime,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add intakes one (pid, pcr, section) tuple. pcr is a 90kHz program clock
// reference, or negative if unknown. Add does not retain section: it
// copies it into the dictionary on literal insertion, so the caller may
// reuse it once the call returns. Add may trigger an
// implicit chunk flush and so may return a write error from dst.
func (a *Archiver) Add(pid uint16, pcr int64, section []byte) error {
	if len(section) == 0 {
		return nil
	}
	if a.lastWriteTime == unknownTime {
		a.lastWriteTime = a.tt.currentTime
	}
	if a.shouldFlush() {
		if err := a.flush(true); err != nil {
			return err
		}
	}

	pcr11khz := unknownTime
	if pcr >= 0 {
		pcr11khz = uint32(pcr >> 3)
	}
	a.tt.push(pcr11khz)

	fp := fingerprint(pid, section)
	if idx, ok := a.dict.find(fp, pid, section); ok {
		a.appendCode(idx)
		return nil
	}

	e := entry{pid: pid}
	if idx, ok := a.lastDict.find(fp, pid, section); ok {
		e.codeOrSize = codeBegin + uint16(idx)
		e.token = a.lastDict.entries[idx].token
		a.lastDict.entries[idx].token = nil // one-shot ownership transfer.
	} else {
		e.codeOrSize = uint16(len(section) - 1)
		e.token = append([]byte(nil), section...)
		a.dictDataSize += 2 + len(e.token)
	}
	a.dictBufSize += 2 + len(e.token)
	idx := a.dict.append(fp, e)
	a.appendCode(idx)
	return nil
}

func (a *Archiver) appendCode(dictIndex int) {
	code := codeBegin + uint16(dictIndex)
	a.codeList = append(a.codeList, byte(code), byte(code>>8))
}

// shouldFlush evaluates the flush predicate: a chunk is flushed before it
// can exceed the on-disk format's size fields, before its retained token
// bytes can exceed dictBufMax, or once it has aged past writeInterval.
func (a *Archiver) shouldFlush() bool {
	if len(a.tt.list)/4 >= maxTimeRecords {
		return true
	}
	if len(a.dict.entries) >= maxDictEntries {
		return true
	}
	if a.dictBufSize+2+maxLiteralTokenBytes > a.dictBufMax {
		return true
	}
	if a.tt.currentTime != unknownTime && a.lastWriteTime != unknownTime &&
		wrap30(a.tt.currentTime, a.lastWriteTime) >= a.writeInterval {
		return true
	}
	return false
}

// Flush commits the current chunk, including any deferred trailer from
// the previous one. Calling Flush on an archiver with nothing buffered and
// no deferred trailer is a no-op.
func (a *Archiver) Flush() error {
	return a.flush(false)
}
