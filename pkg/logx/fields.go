package logx

import (
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field mutates a zerolog event. Later fields win on duplicate keys.
type Field func(e *zerolog.Event)

func String(k, v string) Field                 { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field                { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field            { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Uint64(k string, v uint64) Field          { return func(e *zerolog.Event) { e.Uint64(k, v) } }
func Bool(k string, v bool) Field              { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field { return func(e *zerolog.Event) { e.Dur(k, v) } }
func Time(k string, v time.Time) Field         { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field                { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Err is a no-op for nil errors.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

func Stack(stack string) Field {
	return func(e *zerolog.Event) {
		if strings.TrimSpace(stack) != "" {
			e.Str("stack", stack)
		}
	}
}

// StackTrace renders up to maxFrames frames of the calling goroutine as
// "function\n  file:line" pairs, skipping skip callers.
func StackTrace(skip, maxFrames int) string {
	if maxFrames <= 0 {
		maxFrames = 16
	}
	pcs := make([]uintptr, maxFrames)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(skip, pcs)])
	lines := make([]string, 0, maxFrames)
	for {
		fr, more := frames.Next()
		if fr.File != "" {
			lines = append(lines, fr.Function+"\n  "+fr.File+":"+strconv.Itoa(fr.Line))
		}
		if !more || len(lines) >= maxFrames {
			break
		}
	}
	return strings.Join(lines, "\n")
}

func callerField(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok || file == "" {
		return ""
	}
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}
	return file + ":" + strconv.Itoa(line)
}
