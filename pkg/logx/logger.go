package logx

import (
	"io"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	LevelTrace = zerolog.TraceLevel
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

// Logger writes structured events with a short caller.
//
// A Logger obtained from a Service follows every Service.Apply. The zero
// value discards everything.
type Logger struct {
	svc    *Service
	zl     *zerolog.Logger
	fields []Field
}

// Nop returns a logger that never writes.
func Nop() Logger {
	zl := zerolog.Nop()
	return Logger{zl: &zl}
}

// NewConsole builds a standalone human-readable logger on stderr, for use
// before a config is loaded.
func NewConsole(level string) Logger {
	setGlobals()
	zl := zerolog.New(consoleWriter(Stderr())).Level(parseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
	return Logger{zl: &zl}
}

// NewWriter builds a standalone JSON logger on w.
func NewWriter(w io.Writer, level string) Logger {
	zl := zerolog.New(w).Level(parseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
	return Logger{zl: &zl}
}

func (l Logger) IsZero() bool { return l.svc == nil && l.zl == nil && len(l.fields) == 0 }

func (l Logger) backend() *zerolog.Logger {
	switch {
	case l.svc != nil:
		return l.svc.current()
	case l.zl != nil:
		return l.zl
	}
	return nil
}

// Enabled reports whether events at level would be written.
func (l Logger) Enabled(level Level) bool {
	zl := l.backend()
	return zl != nil && level >= zl.GetLevel()
}

// With returns a derived logger that adds fields to every event.
func (l Logger) With(fields ...Field) Logger {
	if len(fields) > 0 {
		l.fields = append(append(make([]Field, 0, len(l.fields)+len(fields)), l.fields...), fields...)
	}
	return l
}

func (l Logger) Trace(msg string, fields ...Field) { l.emit(zerolog.TraceLevel, msg, fields) }
func (l Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l Logger) emit(level zerolog.Level, msg string, fields []Field) {
	zl := l.backend()
	if zl == nil {
		return
	}
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	if c := callerField(3); c != "" {
		e.Str(zerolog.CallerFieldName, c)
	}
	for _, set := range [2][]Field{l.fields, fields} {
		for _, f := range set {
			if f != nil {
				f(e)
			}
		}
	}
	e.Msg(msg)
}
