package coordinator

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/open-scum/peerstation/internal/wire"
)

// FileSink appends decoded sensor data frames to a file, one line per
// frame, in the same column order the firmware prints over UART.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (or creates) the sink file for appending.
func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create sink directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open sink file: %w", err)
	}
	return &FileSink{file: f}, nil
}

// Record writes one sensor data frame.
func (s *FileSink) Record(pkt wire.SensorDataPacket, rssi int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.file, "%03d %02d %02d %02d %02d %04d %04d %04d %04d %d\n",
		pkt.Sequence, pkt.Channel,
		pkt.Code.Coarse, pkt.Code.Mid, pkt.Code.Fine,
		pkt.Outputs[0], pkt.Outputs[1], pkt.Outputs[2], pkt.Outputs[3],
		rssi)
	return err
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
