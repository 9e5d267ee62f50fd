// Package trace is the peer station's diagnostic log: the same lines the
// firmware prints over UART, written to a size-rotated file, since the
// peer station is a long-running field binary that accumulates trace
// volume an attached serial console never would.
package trace

import (
	"fmt"
	"log"

	"github.com/natefinch/lumberjack"

	"github.com/open-scum/peerstation/internal/config"
)

// Logger writes trace lines through a rotating file writer.
type Logger struct {
	out    *lumberjack.Logger
	logger *log.Logger
}

// New creates a Logger rotating per cfg.
func New(cfg config.LoggingConfig) *Logger {
	out := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return &Logger{
		out:    out,
		logger: log.New(out, "", log.LstdFlags|log.LUTC),
	}
}

// Printf writes one formatted trace line.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.logger.Output(2, fmt.Sprintf(format, args...))
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	return l.out.Close()
}
