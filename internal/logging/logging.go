// Package logging builds the process zerolog logger.
package logging

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"scoringd/internal/common/fsutil"
	"scoringd/internal/config"
)

// Setup builds a logger from c writing to w (stderr when nil). When c.File is
// set, output is teed into a rotating file. The stdlib log package is
// redirected to the returned logger. Close the returned io.Closer on exit.
func Setup(c config.LogConfig, w io.Writer) (zerolog.Logger, io.Closer, error) {
	if w == nil {
		w = os.Stderr
	}
	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || c.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = w
	if strings.ToLower(c.Format) != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	if c.File != "" {
		path, err := fsutil.EnsureParentDir(c.File)
		if err != nil {
			return zerolog.Nop(), closer, err
		}
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    max(c.MaxSizeMB, 1),
			MaxBackups: max(c.MaxBackups, 1),
			MaxAge:     max(c.MaxAgeDays, 1),
			Compress:   c.Compress,
		}
		// Files always get JSON lines.
		out = zerolog.MultiLevelWriter(out, lj)
		closer = lj
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Str("service", "scoringd").Logger()
	stdlog.SetFlags(0)
	stdlog.SetOutput(logger)
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
