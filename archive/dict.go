/*
NAME
  dict.go

DESCRIPTION
  dict.go defines the per-chunk dictionary used to deduplicate PSI/SI
  sections: a literal-or-back-reference entry table plus a fingerprint hash
  index for fast lookup within a chunk and across the chunk boundary.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package archive implements the dictionary-coded PSI/SI archiver: it
// deduplicates sections across a sliding window of chunks, compresses a
// PCR-derived time track, and writes the fixed-layout chunk format.
package archive

import "bytes"

// codeBegin is added to a dictionary index to form the 16-bit code stored
// in a chunk's code list.
const codeBegin = 4096

// maxDictEntries is the largest a chunk's dictionary may grow before a
// flush is forced (65536 - codeBegin).
const maxDictEntries = 65536 - codeBegin

// entry is one dictionary slot: either a literal token owned by this
// entry, or a back-reference into the previous chunk's dictionary.
type entry struct {
	codeOrSize uint16 // <4096: literal, token length-1. >=4096: codeBegin+prevIndex.
	pid        uint16
	token      []byte // nil for a consumed (moved-out) previous-dict entry.
}

func (e entry) isLiteral() bool { return e.codeOrSize < codeBegin }

// dictionary is one chunk's entry table and fingerprint index. The index
// is a multimap (fingerprint -> entry indices); collisions are resolved by
// exact (pid, token) comparison.
type dictionary struct {
	entries []entry
	index   map[uint32][]int
}

func newDictionary() dictionary {
	return dictionary{index: make(map[uint32][]int)}
}

// find returns the index of an entry in d whose pid and token exactly
// match, using fp to narrow the search.
func (d *dictionary) find(fp uint32, pid uint16, token []byte) (int, bool) {
	for _, idx := range d.index[fp] {
		e := d.entries[idx]
		if e.pid == pid && bytes.Equal(e.token, token) {
			return idx, true
		}
	}
	return 0, false
}

// append adds e to the dictionary and indexes it under fp, returning its
// new index.
func (d *dictionary) append(fp uint32, e entry) int {
	idx := len(d.entries)
	d.entries = append(d.entries, e)
	d.index[fp] = append(d.index[fp], idx)
	return idx
}

func (d *dictionary) reset() {
	d.entries = d.entries[:0]
	for k := range d.index {
		delete(d.index, k)
	}
}

// fingerprint hashes a (pid, token) pair for dictionary lookup: pid XORed
// with the little-endian uint32 formed by the token's last four bytes (0
// if the token is shorter than that).
func fingerprint(pid uint16, token []byte) uint32 {
	fp := uint32(pid)
	if n := len(token); n >= 4 {
		fp ^= uint32(token[n-4]) | uint32(token[n-3])<<8 | uint32(token[n-2])<<16 | uint32(token[n-1])<<24
	}
	return fp
}
