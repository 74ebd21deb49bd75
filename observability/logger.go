package observability

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures NewLogger. File is optional; without it the logger only
// writes to Stderr.
type LogOptions struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Stderr     io.Writer
}

// NewLogger builds the command-line logger. The returned closer releases the log
// file and is safe to call when no file is configured.
func NewLogger(opts LogOptions) (*log.Logger, io.Closer) {
	var out io.Writer = os.Stderr
	if opts.Stderr != nil {
		out = opts.Stderr
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(out, rotating)
		closer = rotating
	}
	return log.New(out, "trainload ", log.LstdFlags|log.LUTC|log.Lmsgprefix), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
