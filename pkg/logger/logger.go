package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with typed structured fields.
type Logger struct {
	zl zerolog.Logger
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		output = file
	}

	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: cfg.TimeFormat}
	}

	zl := zerolog.New(output).With().Timestamp().Logger()
	return &Logger{zl: zl}, nil
}

// Nop returns a logger that discards everything. Used in tests and as the
// default when no logger is injected.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) Debug(msg string, fields ...Field) { emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { emit(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { emit(l.zl.Error(), msg, fields) }

func emit(ev *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		f.AddTo(ev)
	}
	ev.Msg(msg)
}

// Field adds one structured key/value to an event.
type Field interface {
	AddTo(event *zerolog.Event)
}

type stringField struct {
	key, value string
}

func (f stringField) AddTo(ev *zerolog.Event) { ev.Str(f.key, f.value) }

type intField struct {
	key   string
	value int
}

func (f intField) AddTo(ev *zerolog.Event) { ev.Int(f.key, f.value) }

type int64Field struct {
	key   string
	value int64
}

func (f int64Field) AddTo(ev *zerolog.Event) { ev.Int64(f.key, f.value) }

type floatField struct {
	key   string
	value float64
}

func (f floatField) AddTo(ev *zerolog.Event) { ev.Float64(f.key, f.value) }

type boolField struct {
	key   string
	value bool
}

func (f boolField) AddTo(ev *zerolog.Event) { ev.Bool(f.key, f.value) }

type errorField struct {
	value error
}

func (f errorField) AddTo(ev *zerolog.Event) { ev.Err(f.value) }

type anyField struct {
	key   string
	value interface{}
}

func (f anyField) AddTo(ev *zerolog.Event) { ev.Interface(f.key, f.value) }

func String(key, value string) Field          { return stringField{key, value} }
func Int(key string, value int) Field         { return intField{key, value} }
func Int64(key string, value int64) Field     { return int64Field{key, value} }
func Float64(key string, value float64) Field { return floatField{key, value} }
func Bool(key string, value bool) Field       { return boolField{key, value} }
func Error(err error) Field                   { return errorField{err} }
func Any(key string, value interface{}) Field { return anyField{key, value} }

func Duration(key string, value time.Duration) Field {
	return intField{key, int(value / time.Millisecond)}
}

func Strings(key string, value []string) Field {
	return stringField{key, strings.Join(value, ", ")}
}
