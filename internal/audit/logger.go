package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Format selects which of the two UART trace line conventions an entry is
// rendered with.
type Format int

const (
	// FormatNamed renders "{T|R}X <chan> <co>.<mid>.<fine>".
	FormatNamed Format = iota
	// FormatLegacy renders "%c%02d %02d %02d %02d".
	FormatLegacy
)

// Entry is a single diagnostic trace record.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	RunID     string    `json:"runId"`
	Channel   int       `json:"channel"`
	Coarse    uint8     `json:"coarse"`
	Mid       uint8     `json:"mid"`
	Fine      uint8     `json:"fine"`
	Direction string    `json:"direction,omitempty"` // "RX" or "TX"
	Line      string    `json:"line,omitempty"`
	Action    string    `json:"action,omitempty"`
	Result    string    `json:"result,omitempty"`
	LatencyMS int64     `json:"latencyMs,omitempty"`
}

// Logger appends diagnostic trace entries to a JSONL file shared by every
// Logger opened on the same directory; each Logger tags its entries with
// its own run ID. It stands in for the UART diagnostic output named in
// the external interfaces: every write carries the same line a real mote
// would push over UART, alongside structured fields for offline analysis.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	runID    string
}

// NewLogger creates a Logger writing into logDir/trace.jsonl, tagging every
// entry with a fresh run ID so repeated calibration attempts after a reset
// are distinguishable in the file.
func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(logDir, "trace.jsonl")
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		runID:    uuid.NewString(),
	}, nil
}

// TraceCode logs a tuning-code observation in the given format, matching
// the two UART trace line conventions.
func (l *Logger) TraceCode(format Format, direction string, channel int, coarse, mid, fine uint8) {
	var line string
	switch format {
	case FormatLegacy:
		d := byte('R')
		if direction == "TX" {
			d = 'T'
		}
		line = fmt.Sprintf("%c%02d %02d %02d %02d", d, channel, coarse, mid, fine)
	default:
		line = fmt.Sprintf("%sX %d %d.%d.%d", direction[:1], channel, coarse, mid, fine)
	}

	l.writeEntry(Entry{
		Timestamp: time.Now().UTC(),
		RunID:     l.runID,
		Channel:   channel,
		Coarse:    coarse,
		Mid:       mid,
		Fine:      fine,
		Direction: direction,
		Line:      line,
	})
}

// Trace implements calibration.TraceSink for free-form diagnostic lines (errors, state transitions) that do not carry
// a tuning code.
func (l *Logger) Trace(line string) {
	l.writeEntry(Entry{
		Timestamp: time.Now().UTC(),
		RunID:     l.runID,
		Line:      line,
	})
}

func (l *Logger) writeEntry(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	jsonData, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal trace entry: %v\n", err)
		return
	}
	if _, err := l.file.Write(append(jsonData, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write trace entry: %v\n", err)
		return
	}
	if err := l.file.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to sync trace log: %v\n", err)
	}
}

// LogAction records an operation on the subsystem with its outcome and
// latency, for the same append-only file the tuning-code traces go to.
func (l *Logger) LogAction(ctx context.Context, action string, channel int, result string, latency time.Duration) {
	l.writeEntry(Entry{
		Timestamp: time.Now().UTC(),
		RunID:     l.runID,
		Channel:   channel,
		Action:    action,
		Result:    result,
		LatencyMS: latency.Milliseconds(),
	})
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// FilePath returns the path to the trace log file.
func (l *Logger) FilePath() string {
	return l.filePath
}
