// Package nlog is the engine's logger: leveled (Info/Warning/Error), with
// a caller-file:line header and a monotonic timestamp, the way the rest of
// the stack expects to log. Unlike the full aistore logger this package is
// modeled on, it does not buffer or rotate to disk - an engine embedded in
// a client application has no business owning log files; it writes
// line-buffered to stderr and leaves rotation to the host process.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ais-hpc/exstack/cmn/mono"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

const sevChar = "IWE"

var (
	mu  sync.Mutex
	out = os.Stderr

	// Level holds the verbosity set via SetLevel. The log functions do not
	// consult it: Info lines print at every level, as do Warning and Error.
	Level int
)

func SetLevel(lvl int)  { Level = lvl }
func SetOutput(w *os.File) { out = w }

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

// Flush is a no-op placeholder kept for API parity with the buffered
// logger this package stands in for; os.Stderr writes are unbuffered.
func Flush(...bool) {}

func log(sev severity, depth int, format string, args ...any) {
	var b strings.Builder
	writeHdr(&b, sev, depth+3)
	if format == "" {
		fmt.Fprintln(&b, args...)
	} else {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	mu.Lock()
	fmt.Fprint(out, b.String())
	mu.Unlock()
}

func writeHdr(b *strings.Builder, sev severity, depth int) {
	b.WriteByte(sevChar[sev])
	b.WriteByte(' ')
	b.WriteString(time.Unix(0, mono.NanoTime()).Format("15:04:05.000000"))
	b.WriteByte(' ')
	if _, fn, ln, ok := runtime.Caller(depth); ok {
		if idx := strings.LastIndexByte(fn, filepath.Separator); idx >= 0 {
			fn = fn[idx+1:]
		}
		b.WriteString(fn)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(ln))
		b.WriteByte(' ')
	}
}
