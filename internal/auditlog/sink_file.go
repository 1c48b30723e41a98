package auditlog

import (
	"fmt"
	"os"
	"sync"

	"github.com/northbeacon/quotectl/internal/canonjson"
)

// FileSink appends one canonical-JSON line per audit record to a file,
// matching the alerts.log discipline in spec.md §5: each write is its own
// open/append/flush/fsync/close.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink constructs a sink writing to path. It does not create parent
// directories; Append fails while the directory is missing.
func NewFileSink(path string) (*FileSink, error) {
	return &FileSink{path: path}, nil
}

// Append writes rec as one JSON line.
func (s *FileSink) Append(rec Record) error {
	line, err := canonjson.Marshal(rec.ForJSON())
	if err != nil {
		return fmt.Errorf("auditlog: marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("auditlog: open sink file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("auditlog: write sink file: %w", err)
	}
	return f.Sync()
}
