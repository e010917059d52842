package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin structured-logging facade over zerolog.
type Logger struct {
	zl zerolog.Logger
}

// Config selects level, encoding and destination.
type Config struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
	Output string `yaml:"output" default:"stdout"`
}

// New builds a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

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

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.DateTime}
	}

	zl := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &Logger{zl: zl}, nil
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// NewWriter logs JSON lines to w at debug level.
func NewWriter(w io.Writer) *Logger {
	return &Logger{zl: zerolog.New(w).Level(zerolog.DebugLevel)}
}

// With returns a child logger carrying fields on every event.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = f.addToContext(ctx)
	}
	return &Logger{zl: ctx.Logger()}
}

func (l *Logger) Debug(msg string, fields ...Field) { emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { emit(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { emit(l.zl.Error(), msg, fields) }

// Errorf, Warnf and Debugf satisfy resty.Logger.
func (l *Logger) Errorf(format string, v ...interface{}) { l.zl.Error().Msgf(format, v...) }
func (l *Logger) Warnf(format string, v ...interface{})  { l.zl.Warn().Msgf(format, v...) }
func (l *Logger) Debugf(format string, v ...interface{}) { l.zl.Debug().Msgf(format, v...) }

func emit(event *zerolog.Event, msg string, fields []Field) {
	if event == nil {
		return
	}
	for _, f := range fields {
		f.addTo(event)
	}
	event.Msg(msg)
}
