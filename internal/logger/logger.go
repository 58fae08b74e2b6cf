// Copyright 2025 Google LLC
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

package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/sengine/sekernel/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// mu guards defaultLoggerFactory, defaultLogger and initialized so that
	// Init and Clean can race with concurrent logging.
	mu                   sync.RWMutex
	defaultLoggerFactory *loggerFactory
	defaultLogger        *slog.Logger
	initialized          bool
)

func defaultLogRotateConfig() cfg.LogRotateLoggingConfig {
	return cfg.LogRotateLoggingConfig{
		BackupFileCount: 10,
		Compress:        true,
		MaxFileSizeMb:   512,
	}
}

// init routes logs to stdout at INFO until Init or InitLogFile is called.
func init() {
	resetToStdout()
}

func resetToStdout() {
	defaultLoggerFactory = &loggerFactory{
		format:          cfg.TextLogFormat,
		level:           cfg.INFO,
		logRotateConfig: defaultLogRotateConfig(),
	}
	defaultLogger = defaultLoggerFactory.newLogger(defaultLoggerFactory.level)
	initialized = false
}

// Init routes logs to the file at path, creating it if needed. An empty
// path logs to stdout. Calling Init again replaces the previous destination.
func Init(path string) error {
	return InitLogFile(cfg.LoggingConfig{
		FilePath:  cfg.ResolvedPath(path),
		Format:    cfg.TextLogFormat,
		LogRotate: defaultLogRotateConfig(),
		Severity:  cfg.InfoLogSeverity,
	})
}

// InitLogFile initializes the logger factory to create loggers that print to
// the configured log file, rotated by lumberjack. In case of an empty file
// path, logs are written to stdout.
func InitLogFile(newLogConfig cfg.LoggingConfig) error {
	var fileWriter *lumberjack.Logger
	filePath := string(newLogConfig.FilePath)
	if filePath != "" {
		// lumberjack opens lazily; open once here so a bad path fails Init.
		f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file %q: %w", filePath, err)
		}
		if err = f.Close(); err != nil {
			return fmt.Errorf("close log file %q: %w", filePath, err)
		}
		fileWriter = &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    int(newLogConfig.LogRotate.MaxFileSizeMb),
			MaxBackups: int(newLogConfig.LogRotate.BackupFileCount),
			Compress:   newLogConfig.LogRotate.Compress,
		}
	}

	level := string(newLogConfig.Severity)
	if level == "" {
		level = cfg.INFO
	}

	mu.Lock()
	defer mu.Unlock()
	closeFileWriter()
	defaultLoggerFactory = &loggerFactory{
		fileWriter:      fileWriter,
		format:          newLogConfig.Format,
		level:           level,
		logRotateConfig: newLogConfig.LogRotate,
	}
	defaultLogger = defaultLoggerFactory.newLogger(level)
	initialized = true

	return nil
}

// SetLogFormat updates the format of the default logger, keeping its
// destination and severity.
func SetLogFormat(format string) {
	mu.Lock()
	defer mu.Unlock()
	defaultLoggerFactory.format = format
	defaultLogger = defaultLoggerFactory.newLogger(defaultLoggerFactory.level)
}

// Clean closes the log file, if any, and returns the package to its
// uninitialized state. Init may be called again afterwards.
func Clean() {
	mu.Lock()
	defer mu.Unlock()
	closeFileWriter()
	resetToStdout()
}

// IsInitialized reports whether Init or InitLogFile succeeded since the last
// Clean.
func IsInitialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return initialized
}

// closeFileWriter requires mu to be held.
func closeFileWriter() {
	if f := defaultLoggerFactory.fileWriter; f != nil {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing log file: %v\n", err)
		}
		defaultLoggerFactory.fileWriter = nil
	}
}

// Tracef prints the message with TRACE severity in the specified format.
func Tracef(format string, v ...any) {
	logf(LevelTrace, format, v...)
}

// Debugf prints the message with DEBUG severity in the specified format.
func Debugf(format string, v ...any) {
	logf(LevelDebug, format, v...)
}

// Infof prints the message with INFO severity in the specified format.
func Infof(format string, v ...any) {
	logf(LevelInfo, format, v...)
}

// Warnf prints the message with WARNING severity in the specified format.
func Warnf(format string, v ...any) {
	logf(LevelWarn, format, v...)
}

// Errorf prints the message with ERROR severity in the specified format.
func Errorf(format string, v ...any) {
	logf(LevelError, format, v...)
}

// logf writes under the read lock: a writer closed by Clean or InitLogFile
// never receives a record.
func logf(level slog.Level, format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	mu.RLock()
	defer mu.RUnlock()
	defaultLogger.Log(context.Background(), level, msg)
}

type loggerFactory struct {
	// If nil, log to stdout. Otherwise, log through this rotating writer.
	fileWriter      *lumberjack.Logger
	format          string
	level           string
	logRotateConfig cfg.LogRotateLoggingConfig
}

func (f *loggerFactory) writer() io.Writer {
	if f.fileWriter != nil {
		return f.fileWriter
	}
	return os.Stdout
}

func (f *loggerFactory) newLogger(level string) *slog.Logger {
	var programLevel = new(slog.LevelVar)
	logger := slog.New(f.createJsonOrTextHandler(f.writer(), programLevel, ""))
	setLoggingLevel(level, programLevel)
	return logger
}

func (f *loggerFactory) createJsonOrTextHandler(writer io.Writer, levelVar *slog.LevelVar, prefix string) slog.Handler {
	if f.format == cfg.TextLogFormat {
		return slog.NewTextHandler(writer, getHandlerOptions(levelVar, prefix, f.format))
	}
	return slog.NewJSONHandler(writer, getHandlerOptions(levelVar, prefix, f.format))
}
