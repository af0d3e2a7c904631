// Package logger is the engine's zerolog wrapper. Components derive child
// loggers carrying the topic, article or stage they are working on.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger embeds zerolog so call sites use the usual event API
type Logger struct {
	zerolog.Logger
}

// Config selects level, encoding and destination
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Output string // stdout or file path
}

// New builds a logger from cfg. An unknown level falls back to info and an
// unwritable output file falls back to stdout.
func New(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	zl := zerolog.New(writerFor(cfg)).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()

	return &Logger{Logger: zl}
}

func writerFor(cfg Config) io.Writer {
	var out io.Writer = os.Stdout
	if cfg.Output != "" && cfg.Output != "stdout" {
		if f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = f
		}
	}
	if cfg.Format == "console" {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return out
}

// Default is the console logger hosts use before config is loaded
func Default() *Logger {
	return New(Config{Level: "info", Format: "console", Output: "stdout"})
}

// Nop discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

func (l *Logger) with(fn func(zerolog.Context) zerolog.Context) *Logger {
	return &Logger{Logger: fn(l.With()).Logger()}
}

// WithComponent names the subsystem emitting the line (discovery, pipeline, audit...)
func (l *Logger) WithComponent(component string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context {
		return c.Str("component", component)
	})
}

// WithSource tags lines from one trend source
func (l *Logger) WithSource(sourceType, sourceName string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context {
		return c.Str("source_type", sourceType).Str("source_name", sourceName)
	})
}

func (l *Logger) WithTopicID(id uint) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context {
		return c.Uint("topic_id", id)
	})
}

func (l *Logger) WithArticleID(id uint) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context {
		return c.Uint("article_id", id)
	})
}

// WithStage tags lines emitted by a pipeline stage executor
func (l *Logger) WithStage(stage string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context {
		return c.Str("stage", stage)
	})
}
