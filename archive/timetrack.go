/*
NAME
  timetrack.go

DESCRIPTION
  timetrack.go encodes the 11kHz PCR time track: a sequence of 4-byte
  records that are either absolute timestamps or runs of identically-timed
  codes expressed as a small relative delta plus a repeat count.

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

// unknownTime is the sentinel used for both an absent PCR and an
// un-started time track.
const unknownTime uint32 = 0xffffffff

// wrap30 computes (a - b) normalized into an unsigned 30-bit window
// centered near zero, tolerating both forward jitter and wraparound:
// (0x40000000 + a - b) & 0x3fffffff.
func wrap30(a, b uint32) uint32 {
	return (0x40000000 + a - b) & 0x3fffffff
}

// timeTrack holds the running state needed to append records to a chunk's
// time list.
type timeTrack struct {
	list           []byte
	currentTime    uint32 // unknownTime if not yet set this chunk.
	currentRelTime uint16
	sameTimeCount  uint16
}

func newTimeTrack() timeTrack {
	return timeTrack{currentTime: unknownTime}
}

// push appends the effect of one incoming (possibly unknown) 11kHz
// timestamp to the time track.
func (t *timeTrack) push(pcr11khz uint32) {
	var setAbsolute bool
	if t.currentTime == unknownTime {
		setAbsolute = pcr11khz != unknownTime
	} else {
		setAbsolute = pcr11khz == unknownTime || wrap30(pcr11khz, t.currentTime) > 0xffff
	}

	if t.sameTimeCount > 0x7fff || (t.sameTimeCount > 0 && (setAbsolute || pcr11khz != t.currentTime)) {
		t.flushRelative()
		if setAbsolute || pcr11khz == t.currentTime {
			t.currentRelTime = 0
		} else {
			t.currentRelTime = uint16(wrap30(pcr11khz, t.currentTime))
		}
	}

	t.sameTimeCount++
	t.currentTime = pcr11khz

	if setAbsolute {
		t.list = append(t.list,
			byte(t.currentTime), byte(t.currentTime>>8), byte(t.currentTime>>16),
			byte(t.currentTime>>24)|0x80)
	}
}

// flushRelative appends the pending relative-time record built from the
// run in progress and resets the run counter.
func (t *timeTrack) flushRelative() {
	cnt := t.sameTimeCount - 1
	t.list = append(t.list, byte(t.currentRelTime), byte(t.currentRelTime>>8), byte(cnt), byte(cnt>>8))
	t.sameTimeCount = 0
}

// finish appends the trailing relative record for a chunk about to be
// flushed, if a run is in progress.
func (t *timeTrack) finish() {
	if t.sameTimeCount > 0 {
		t.flushRelative()
	}
}

func (t *timeTrack) reset() {
	t.list = nil
	t.currentTime = unknownTime
	t.currentRelTime = 0
	t.sameTimeCount = 0
}
