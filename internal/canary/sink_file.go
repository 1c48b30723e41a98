package canary

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/northbeacon/quotectl/internal/canonjson"
)

// FileSink appends one canonical-JSON line per alert to alerts.log,
// matching the audit log's open/append/flush/fsync/close discipline.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink constructs a sink appending to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Append writes entry as one JSON line.
func (s *FileSink) Append(entry AlertEntry) error {
	line, err := canonjson.Marshal(entry)
	if err != nil {
		return fmt.Errorf("canary: marshal alert: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("canary: open alerts.log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("canary: write alerts.log: %w", err)
	}
	return f.Sync()
}

// ReadAll returns every alert entry currently in alerts.log, oldest first.
// A missing file is treated as empty, not an error.
func (s *FileSink) ReadAll() ([]AlertEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("canary: open alerts.log: %w", err)
	}
	defer f.Close()

	var out []AlertEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry AlertEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("canary: decode alerts.log line: %w", err)
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("canary: scan alerts.log: %w", err)
	}
	return out, nil
}

// Clear truncates alerts.log to empty.
func (s *FileSink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("canary: truncate alerts.log: %w", err)
	}
	return f.Close()
}
