/*
NAME
  extract.go

DESCRIPTION
  extract.go is the PSI/SI extractor coordinator: it drives the packet
  decoder, section reassembler, PAT tracker and PMT rewriter over a stream
  of transport stream packets and surfaces (pid, pcr, section) tuples to a
  caller-supplied sink, the same functional-callback boundary
  container/mts.Encoder uses for its own write path.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package extract coordinates PSI/SI section reassembly, PAT tracking and
// PMT rewriting into one pipeline stage that emits (pid, pcr, section)
// tuples for the archiver.
package extract

import (
	"github.com/ausocean/utils/logging"

	"github.com/ausocean/psisiarc/psi"
	"github.com/ausocean/psisiarc/tspacket"
)

// PatPID is the well-known PID carrying the Program Association Table.
const PatPID = 0

// Sink receives one extracted or synthesized section. pcr is a 90kHz
// program clock reference, or a negative value if unknown at the time of
// extraction. section aliases internal buffers and must be copied if
// retained past the call.
type Sink func(pid uint16, pcr int64, section []byte)

// pidState tracks why a PID is being captured: because the caller asked
// for it directly (Specified), or because it currently appears in the
// tracked program's PMT (ExistsOnPMT, reset and re-evaluated every PMT
// rewrite pass).
type pidState struct {
	Specified   bool
	ExistsOnPMT bool
}

// Extractor drives PSI/SI section reassembly, PAT tracking and PMT
// rewriting across a sequence of transport stream packets for a single
// target program.
type Extractor struct {
	programOrIndex int
	streamTypes    map[byte]bool
	targets        map[uint16]*pidState
	bufs           map[uint16]*psi.SectionBuffer

	pat      psi.PAT
	patSynth psi.PATSynthesizer
	pmt      psi.PMTRewriter

	nitPID uint16
	pcrPID uint16
	pcr    int64

	log logging.Logger
}

// New returns an Extractor selecting a program as described by
// programOrIndex: positive selects by program_number, negative selects the
// |programOrIndex|-th non-NIT program (1-based). A programOrIndex of 0
// disables PAT/PMT tracking entirely — only caller-specified target PIDs
// are captured verbatim.
func New(programOrIndex int, log logging.Logger) *Extractor {
	return &Extractor{
		programOrIndex: programOrIndex,
		streamTypes:    make(map[byte]bool),
		targets:        make(map[uint16]*pidState),
		bufs:           make(map[uint16]*psi.SectionBuffer),
		pcr:            -1,
		log:            log,
	}
}

// AddTargetPID marks pid for verbatim section capture.
func (e *Extractor) AddTargetPID(pid uint16) {
	e.targets[pid] = &pidState{Specified: true}
}

// AddTargetStreamType adds streamType to the set of elementary-stream types
// copied into the synthesized PMT (and whose PIDs become capture targets).
func (e *Extractor) AddTargetStreamType(streamType byte) {
	e.streamTypes[streamType] = true
}

func (e *Extractor) bufFor(pid uint16) *psi.SectionBuffer {
	b, ok := e.bufs[pid]
	if !ok {
		b = &psi.SectionBuffer{}
		e.bufs[pid] = b
	}
	return b
}

// Feed processes one decoded transport stream packet, invoking sink for
// every section it produces (synthesized PAT/PMT replacements, or raw
// target sections).
func (e *Extractor) Feed(pkt tspacket.Packet, sink Sink) {
	if pkt.Payload == nil {
		return
	}

	if pkt.PID == PatPID && e.programOrIndex != 0 {
		e.feedPAT(pkt, sink)
	} else if e.programOrIndex != 0 {
		if ref, found := e.pat.Select(e.programOrIndex); found {
			if pkt.PID == ref.PMTPID {
				e.feedPMT(pkt, ref.PMTPID, sink)
			}
			if pkt.PID == e.pcrPID && pkt.PCR >= 0 {
				e.pcr = pkt.PCR
			}
		}
	}

	if _, ok := e.targets[pkt.PID]; ok {
		e.bufFor(pkt.PID).Feed(pkt.Payload, pkt.UnitStart, pkt.CC, func(section []byte) {
			sink(pkt.PID, e.pcr, section)
		})
	}
}

func (e *Extractor) feedPAT(pkt tspacket.Packet, sink Sink) {
	e.bufFor(PatPID).Feed(pkt.Payload, pkt.UnitStart, pkt.CC, func(section []byte) {
		pat, ok := psi.ParsePAT(section)
		if !ok {
			return
		}
		e.pat = pat
		ref, found := pat.Select(e.programOrIndex)
		if !found {
			e.pcrPID = 0
			e.pcr = -1
			if e.log != nil {
				e.log.Debug("target program not found in PAT")
			}
			return
		}
		if !pkt.UnitStart {
			return
		}
		nitPID, nitPresent := pat.NIT()
		e.updateNITTarget(nitPID, nitPresent)
		out := e.patSynth.Synthesize(pat.TransportStreamID, ref, nitPID, nitPresent)
		sink(PatPID, e.pcr, out)
	})
}

func (e *Extractor) feedPMT(pkt tspacket.Packet, pmtPID uint16, sink Sink) {
	e.bufFor(pmtPID).Feed(pkt.Payload, pkt.UnitStart, pkt.CC, func(section []byte) {
		out, pcrPID, ok := e.pmt.Rewrite(section, e.streamTypes, e.markExistsOnPMT)
		if !ok {
			if e.log != nil {
				e.log.Debug("pmt rewrite aborted")
			}
			return
		}
		e.pcrPID = pcrPID
		if pcrPID == psi.NoPCRPID {
			e.pcr = -1
		}
		e.evictStaleTargets()
		sink(pmtPID, e.pcr, out)
	})
}

// markExistsOnPMT is passed to psi.PMTRewriter.Rewrite as the callback
// invoked for every ES entry copied into the synthesized PMT.
func (e *Extractor) markExistsOnPMT(pid uint16) {
	st, ok := e.targets[pid]
	if !ok {
		st = &pidState{}
		e.targets[pid] = st
	}
	st.ExistsOnPMT = true
}

// evictStaleTargets drops target PIDs that are neither caller-specified
// nor present in the PMT just rewritten, and clears ExistsOnPMT on the
// rest ready for the next rewrite pass.
func (e *Extractor) evictStaleTargets() {
	for pid, st := range e.targets {
		if !st.Specified && !st.ExistsOnPMT {
			delete(e.targets, pid)
			delete(e.bufs, pid)
			continue
		}
		st.ExistsOnPMT = false
	}
}

// updateNITTarget keeps the NIT PID's section buffer tracked as a target
// so its raw sections are captured like any other specified PID, mirroring
// psisiarc's original extractor: when the NIT PID changes, the old one is
// dropped and the new one (if any) is added as a specified target.
func (e *Extractor) updateNITTarget(nitPID uint16, nitPresent bool) {
	newPID := uint16(0)
	if nitPresent {
		newPID = nitPID
	}
	if newPID == e.nitPID {
		return
	}
	if e.nitPID != 0 {
		delete(e.targets, e.nitPID)
		delete(e.bufs, e.nitPID)
	}
	if newPID != 0 {
		e.targets[newPID] = &pidState{Specified: true}
	}
	e.nitPID = newPID
}
