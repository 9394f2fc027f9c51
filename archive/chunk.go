/*
NAME
  chunk.go

DESCRIPTION
  chunk.go serializes the archiver's current working chunk to the
  fixed-layout container format: a 32-byte header, a time list, the
  dictionary and PID directories, literal token bytes, the code list, and
  a deferred trailer. Trailer emission is a small state machine: the
  trailer's length is fixed when its chunk is written, but its bytes may be
  held back and written ahead of the next chunk, or by a final Flush.

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

// chunkMagic identifies a chunk header, mirroring the PNG signature's
// trick of mixing a high-bit byte and a CR/LF pair to catch both binary
// mangling and line-ending translation in transit.
var chunkMagic = [8]byte{0x50, 0x73, 0x73, 0x63, 0x0d, 0x0a, 0x9a, 0x0a}

// trailerByte is the single repeated byte making up a pending trailer.
const trailerByte = 0x3d

// headerSize is the fixed size, in bytes, of a chunk header.
const headerSize = 32

// flush serializes the current working chunk to dst, prefixed by any
// trailer deferred from the previous chunk. If suppressTrailer is true
// this chunk's own trailer is computed but held back, to be written
// ahead of the next chunk (or force-flushed by a later call with
// suppressTrailer false). Flushing an archiver with an empty chunk and
// no pending trailer is a no-op.
func (a *Archiver) flush(suppressTrailer bool) error {
	a.tt.finish()
	extension := a.extendWindow()

	empty := len(a.tt.list) == 0 && len(a.dict.entries) == 0 && len(a.codeList) == 0
	if empty {
		if a.trailerSize == 0 {
			return nil
		}
		return a.writePendingTrailer()
	}

	dictDir := make([]byte, 0, 2*len(a.dict.entries))
	pidDir := make([]byte, 0, 2*len(a.dict.entries))
	var tokens []byte
	for _, e := range a.dict.entries {
		dictDir = append(dictDir, byte(e.codeOrSize), byte(e.codeOrSize>>8))
		if e.isLiteral() {
			pidDir = append(pidDir, byte(e.pid), byte(e.pid>>8)|0xe0)
			if e.token != nil {
				tokens = append(tokens, e.token...)
			}
		}
	}
	padded := len(tokens)%2 != 0
	if padded {
		tokens = append(tokens, 0xff)
	}

	// The header, time list, directories, padded tokens and code list are
	// all individually a multiple of 4, 4, 2, 2, 2 and 2 bytes
	// respectively, so the chunk body is always even; the trailer's only
	// job is to round the total up to a multiple of 4.
	bodyLen := headerSize + len(a.tt.list) + len(dictDir) + len(pidDir) + len(tokens) + len(a.codeList)
	trailerSize := 4
	if bodyLen%4 == 2 {
		trailerSize = 2
	}

	// Window-extension entries are reserved for here and physically
	// folded into the back-reference dictionary by rollover, once this
	// chunk's own bytes are safely written; they are never re-serialized
	// as literal tokens or PID-directory records this chunk, so they count
	// towards dictionary_window_size and dict_buf_size but not towards
	// dict_data_size.
	extraSize := 0
	for _, e := range extension {
		extraSize += 2 + len(e.token)
	}

	hdr := make([]byte, headerSize)
	copy(hdr[0:8], chunkMagic[:])
	putU32(hdr[8:12], uint32(len(a.tt.list)))
	putU16(hdr[12:14], uint16(len(a.dict.entries)))
	putU16(hdr[14:16], uint16(len(a.dict.entries)+len(extension)))
	putU32(hdr[16:20], uint32(a.dictDataSize))
	putU32(hdr[20:24], uint32(a.dictBufSize+extraSize))
	putU32(hdr[24:28], uint32(len(a.codeList)/2))

	if err := a.writePendingTrailer(); err != nil {
		return err
	}

	for _, chunk := range [][]byte{hdr, a.tt.list, dictDir, pidDir, tokens, a.codeList} {
		if len(chunk) == 0 {
			continue
		}
		if _, err := a.dst.Write(chunk); err != nil {
			return err
		}
	}

	a.trailerSize = trailerSize
	if !suppressTrailer {
		if err := a.writePendingTrailer(); err != nil {
			return err
		}
	}

	a.rollover(extension)
	return nil
}

// writePendingTrailer writes and clears a deferred trailer, if any.
func (a *Archiver) writePendingTrailer() error {
	if a.trailerSize == 0 {
		return nil
	}
	buf := make([]byte, a.trailerSize)
	for i := range buf {
		buf[i] = trailerByte
	}
	a.trailerSize = 0
	_, err := a.dst.Write(buf)
	return err
}

// extendWindow selects previous-dictionary entries that were never
// referenced by the chunk now being flushed, so a later time-triggered
// flush doesn't needlessly shrink the effective back-reference window.
// The returned entries are counted and budget-checked here but are not
// serialized into this chunk: their token bytes already reached dst in
// an earlier chunk, so rollover folds them into the in-memory
// back-reference dictionary only after this chunk's write completes.
// Only active when a write interval is configured; without one, previous-
// dictionary entries not referenced by the chunk being flushed are dropped
// at rollover.
func (a *Archiver) extendWindow() []entry {
	if a.writeInterval == unknownTime {
		return nil
	}
	var extension []entry
	count := len(a.dict.entries)
	bufSize := a.dictBufSize
	for _, e := range a.lastDict.entries {
		if e.token == nil {
			continue
		}
		if count >= maxDictEntries {
			break
		}
		if bufSize+2+len(e.token) > a.dictBufMax {
			break
		}
		extension = append(extension, entry{
			codeOrSize: uint16(len(e.token) - 1),
			pid:        e.pid,
			token:      e.token,
		})
		count++
		bufSize += 2 + len(e.token)
	}
	return extension
}

// rollover prepares state for the next chunk: the dictionary just
// serialized becomes the back-reference source for the next one, extended
// with any entries carried forward by extendWindow, and all per-chunk
// accumulators reset.
func (a *Archiver) rollover(extension []entry) {
	a.lastWriteTime = unknownTime
	a.lastDict, a.dict = a.dict, a.lastDict
	for _, e := range extension {
		a.lastDict.append(fingerprint(e.pid, e.token), e)
	}
	a.dict.reset()
	a.codeList = nil
	a.dictDataSize = 0
	a.dictBufSize = 0
	a.tt.reset()
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
