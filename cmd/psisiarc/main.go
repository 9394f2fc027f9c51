/*
NAME
  psisiarc

DESCRIPTION
  psisiarc reads an MPEG-2 transport stream, extracts and rewrites the
  PSI/SI sections for one program, and writes a dictionary-coded PSSC
  archive of those sections to dest.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package main implements the psisiarc command.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/psisiarc/archive"
	"github.com/ausocean/psisiarc/config"
	"github.com/ausocean/psisiarc/extract"
	"github.com/ausocean/psisiarc/tspacket"
)

// Logging configuration, mirroring the rest of the corpus's CLI tools.
const (
	logPath      = "psisiarc.log"
	logMaxSize   = 10 // MB
	logMaxBackup = 3
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = false
)

// Exit codes. An explicit -h/-help exits 2; every other failure this
// command reports (bad argument, open failure, write failure) is exit 1.
const (
	exitOK    = 0
	exitError = 1
	exitHelp  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	pidList := flag.String("p", "", "slash-separated list of additional PIDs to capture verbatim, e.g. 0x30/0x31")
	program := flag.Int("n", 1, "target program number (positive) or -index (negative); 0 disables PAT/PMT tracking")
	typeList := flag.String("t", "", "slash-separated list of elementary stream types to capture from the PMT, e.g. 0x1b")
	preset := flag.String("r", "", "named preset expanding to a PID/stream-type set, e.g. arib-data")
	interval := flag.Int("i", 0, "write interval in seconds; 0 flushes only on chunk size limits")
	bufMax := flag.Int("b", config.DefaultDictBufMax/1024, "per-chunk dictionary memory cap in KiB")
	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	if err := flag.CommandLine.Parse(os.Args[1:]); err == flag.ErrHelp {
		return exitHelp
	} else if err != nil {
		return exitError
	}

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: psisiarc [flags] src dest")
		flag.PrintDefaults()
		return exitError
	}

	cfg := config.Config{
		Src:           args[0],
		Dst:           args[1],
		Program:       *program,
		WriteInterval: time.Duration(*interval) * time.Second,
		DictBufMax:    *bufMax * 1024,
	}

	if err := addPIDs(&cfg, *pidList); err != nil {
		fmt.Fprintln(os.Stderr, "psisiarc:", err)
		return exitError
	}
	if err := addStreamTypes(&cfg, *typeList); err != nil {
		fmt.Fprintln(os.Stderr, "psisiarc:", err)
		return exitError
	}
	if *preset != "" {
		pids, types, ok := config.ResolvePreset(*preset)
		if !ok {
			fmt.Fprintln(os.Stderr, "psisiarc: unknown preset", *preset)
			return exitError
		}
		cfg.PIDs = append(cfg.PIDs, pids...)
		cfg.StreamTypes = append(cfg.StreamTypes, types...)
	}

	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	log := logging.New(logVerbosity, fileLog, logSuppress)
	log.Info("starting psisiarc", "src", cfg.Src, "dest", cfg.Dst)

	if err := process(cfg, log); err != nil {
		log.Error("psisiarc failed", "error", err.Error())
		fmt.Fprintln(os.Stderr, "psisiarc:", err)
		return exitError
	}
	return exitOK
}

func addPIDs(cfg *config.Config, s string) error {
	for _, f := range splitNonEmpty(s) {
		v, err := strconv.ParseUint(strings.TrimPrefix(f, "0x"), hexOrDecBase(f), 16)
		if err != nil {
			return fmt.Errorf("bad PID %q: %w", f, err)
		}
		cfg.PIDs = append(cfg.PIDs, uint16(v))
	}
	return nil
}

func addStreamTypes(cfg *config.Config, s string) error {
	for _, f := range splitNonEmpty(s) {
		v, err := strconv.ParseUint(strings.TrimPrefix(f, "0x"), hexOrDecBase(f), 8)
		if err != nil {
			return fmt.Errorf("bad stream type %q: %w", f, err)
		}
		cfg.StreamTypes = append(cfg.StreamTypes, byte(v))
	}
	return nil
}

func hexOrDecBase(s string) int {
	if strings.HasPrefix(s, "0x") {
		return 16
	}
	return 10
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, f := range strings.Split(s, "/") {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// process opens cfg.Src and cfg.Dst, and runs the extractor and archiver
// end to end until src is exhausted or a sink write fails.
func process(cfg config.Config, log logging.Logger) error {
	src, err := openSrc(cfg.Src)
	if err != nil {
		return fmt.Errorf("opening src: %w", err)
	}
	defer src.Close()

	dst, err := openDst(cfg.Dst)
	if err != nil {
		return fmt.Errorf("opening dest: %w", err)
	}
	defer dst.Close()

	ext := extract.New(cfg.Program, log)
	for _, pid := range cfg.PIDs {
		ext.AddTargetPID(pid)
	}
	for _, st := range cfg.StreamTypes {
		ext.AddTargetStreamType(st)
	}

	var opts []archive.Option
	opts = append(opts, archive.WithDictBufMax(cfg.DictBufMax))
	if iv := cfg.WriteInterval11kHz(); iv != 0 {
		opts = append(opts, archive.WithWriteInterval(iv))
	}
	arc := archive.NewArchiver(dst, log, opts...)

	var sinkErr error
	sink := func(pid uint16, pcr int64, section []byte) {
		if sinkErr != nil {
			return
		}
		sinkErr = arc.Add(pid, pcr, section)
	}

	r := newPacketReader(src)
	for {
		buf, err := r.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading src: %w", err)
		}
		pkt, err := tspacket.Decode(buf)
		if err != nil {
			log.Debug("dropping malformed packet", "error", err.Error())
			continue
		}
		ext.Feed(pkt, sink)
		if sinkErr != nil {
			return fmt.Errorf("writing dest: %w", sinkErr)
		}
	}

	if err := arc.Flush(); err != nil {
		return fmt.Errorf("writing dest: %w", err)
	}
	return nil
}

func openSrc(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func openDst(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
