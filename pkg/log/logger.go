package log

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	Level      string    // logrus level name; invalid or empty means info
	File       string    // Optional rotating log file, written in addition to Out
	Out        io.Writer // Defaults to os.Stderr
	MaxSizeMB  int       // Rotation size, default 50
	MaxBackups int       // Default 3
	MaxAgeDays int       // Default 28
}

// New creates a configured logrus.Logger. The returned closer flushes and
// closes the log file, if one was configured.
func New(opts Options) (*logrus.Logger, io.Closer) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	var mkdirErr error
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				mkdirErr = err
			}
		}
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		}
		out = io.MultiWriter(out, rotating)
		closer = rotating
	}
	log.SetOutput(out)
	if mkdirErr != nil {
		log.Warnf("Failed to create log directory for '%s': %v", opts.File, mkdirErr)
	}

	if opts.Level != "" {
		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", opts.Level, err)
		} else {
			log.SetLevel(level)
			log.Debugf("Setting log level to: %s", level.String())
		}
	}

	return log, closer
}

// Discard returns an entry whose output goes nowhere.
func Discard() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
