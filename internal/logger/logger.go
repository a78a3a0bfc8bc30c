// Copyright 2025 The memfuse authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides the process-wide severity logger: an slog core
// with TRACE..OFF levels, text or JSON output, and optional rotated file
// logging.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity levels beyond slog's built-ins.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

const timestampFormat = "2006/01/02 15:04:05.000000"

// The wire shape of the "timestamp" field in JSON logs.
type timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int64 `json:"nanos"`
}

type loggerFactory struct {
	// Non-nil iff logging to a rotated file rather than stderr.
	file   *lumberjack.Logger
	format string
	level  *slog.LevelVar
}

var (
	defaultLoggerFactory = &loggerFactory{
		format: "text",
		level:  new(slog.LevelVar),
	}
	defaultLogger = slog.New(
		defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, defaultLoggerFactory.level, ""))
)

// Init reconfigures the default logger. Severity is one of TRACE, DEBUG,
// INFO, WARNING, ERROR, OFF; format is "text" or "json". A non-empty
// filePath switches output to that file with rotation.
func Init(severity string, format string, filePath string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported log format: %q", format)
	}

	var w io.Writer = os.Stderr
	if filePath != "" {
		defaultLoggerFactory.file = &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    512, // MiB
			MaxBackups: 10,
			Compress:   true,
		}
		w = defaultLoggerFactory.file
	}

	defaultLoggerFactory.format = format
	setLoggingLevel(severity, defaultLoggerFactory.level)
	defaultLogger = slog.New(
		defaultLoggerFactory.createJsonOrTextHandler(w, defaultLoggerFactory.level, ""))

	return nil
}

func setLoggingLevel(severity string, programLevel *slog.LevelVar) {
	switch severity {
	case "TRACE":
		programLevel.Set(LevelTrace)
	case "DEBUG":
		programLevel.Set(LevelDebug)
	case "WARNING":
		programLevel.Set(LevelWarn)
	case "ERROR":
		programLevel.Set(LevelError)
	case "OFF":
		programLevel.Set(LevelOff)
	default:
		programLevel.Set(LevelInfo)
	}
}

func severityName(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return "TRACE"
	case l < LevelInfo:
		return "DEBUG"
	case l < LevelWarn:
		return "INFO"
	case l < LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

func (f *loggerFactory) createJsonOrTextHandler(
	w io.Writer,
	level *slog.LevelVar,
	prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				return slog.String("severity", severityName(a.Value.Any().(slog.Level)))

			case slog.MessageKey:
				return slog.String("message", prefix+a.Value.String())

			case slog.TimeKey:
				t := a.Value.Time()
				if f.format == "json" {
					return slog.Any("timestamp", timestamp{
						Seconds: t.Unix(),
						Nanos:   int64(t.Nanosecond()),
					})
				}

				return slog.String("time", t.Round(time.Microsecond).Format(timestampFormat))
			}

			return a
		},
	}

	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

func logf(level slog.Level, format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

func Tracef(format string, v ...interface{}) { logf(LevelTrace, format, v...) }
func Debugf(format string, v ...interface{}) { logf(LevelDebug, format, v...) }
func Infof(format string, v ...interface{})  { logf(LevelInfo, format, v...) }
func Warnf(format string, v ...interface{})  { logf(LevelWarn, format, v...) }
func Errorf(format string, v ...interface{}) { logf(LevelError, format, v...) }

func Info(v ...interface{})  { defaultLogger.Info(fmt.Sprint(v...)) }
func Error(v ...interface{}) { defaultLogger.Error(fmt.Sprint(v...)) }

// A writer that forwards lines into the default logger at a fixed level.
type legacyWriter struct {
	level  slog.Level
	prefix string
}

func (w *legacyWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if len(msg) > 0 && msg[len(msg)-1] == '\n' {
		msg = msg[:len(msg)-1]
	}

	defaultLogger.Log(context.Background(), w.level, w.prefix+msg)
	return len(p), nil
}

// NewLegacyLogger bridges libraries that want a *log.Logger (the fuse
// package's error and debug streams) into the default logger.
func NewLegacyLogger(level slog.Level, prefix string) *log.Logger {
	return log.New(&legacyWriter{level: level, prefix: prefix}, "", 0)
}
