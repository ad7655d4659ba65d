package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// stdout belongs to the program's output (ids, JSON, raw files), so logs go to stderr.
var (
	logger  = newLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}, false)
	logFile *os.File
)

func newLogger(out io.Writer, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Setup configures the global logger. When logDir is set, lines are also
// appended to get621.log in that directory.
func Setup(logDir string, enableDebug bool) error {
	Close()

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	if logDir != "" {
		f, err := os.OpenFile(filepath.Join(logDir, "get621.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
		if err != nil {
			return fmt.Errorf("could not open log file: %w", err)
		}
		logFile = f
		out = zerolog.MultiLevelWriter(out, f)
	}

	logger = newLogger(out, enableDebug)
	return nil
}

// SetOutput sends every line to w, mainly for tests.
func SetOutput(w io.Writer, enableDebug bool) {
	logger = newLogger(w, enableDebug)
}

// Close releases the log file, if any.
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func Info(msg string, v ...any) {
	logger.Info().Msg(formatMessage(msg, v...))
}

func Warn(msg string, v ...any) {
	logger.Warn().Msg(formatMessage(msg, v...))
}

func Error(msg string, v ...any) {
	logger.Error().Msg(formatMessage(msg, v...))
}

func Fatal(msg string, v ...any) {
	logger.Fatal().Msg(formatMessage(msg, v...))
}

func Debug(msg string, v ...any) {
	logger.Debug().Msg(formatMessage(msg, v...))
}

func formatMessage(msg string, v ...any) string {
	if len(v) == 0 {
		return msg
	}

	formatted := fmt.Sprintf(msg, v...)
	if !strings.Contains(formatted, "%!") {
		return formatted
	}

	// no (or too few) verbs, print the arguments after the message
	return fmt.Sprint(append([]any{msg, " "}, v...)...)
}
