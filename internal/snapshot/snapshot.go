// Package snapshot implements the control plane's atomic, integrity-checked
// persistence primitive (component C1). Every other stateful component
// saves and loads through this package so that corruption is always
// detected rather than silently loaded.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/northbeacon/quotectl/internal/canonjson"
	"github.com/northbeacon/quotectl/pkg/metrics"
)

// MaxFileBytes is the hard ceiling on a snapshot file's size.
const MaxFileBytes = 1 << 20 // 1 MiB

// Kind enumerates the integrity failure reasons a Load can report, returned
// on IntegrityError. The snapshot_integrity_fail_total{kind} metric label is
// a separate, caller-supplied component name (see Load's kind parameter),
// not one of these values.
type Kind string

const (
	KindFileTooLarge    Kind = "file_too_large"
	KindNonASCII        Kind = "non_ascii"
	KindInvalidStructure Kind = "invalid_structure"
	KindBadChecksum     Kind = "bad_checksum"
	KindInvalidPayload  Kind = "invalid_payload"
)

// IntegrityError reports why a snapshot file failed to load.
type IntegrityError struct {
	Kind Kind
	Err  error
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("snapshot: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("snapshot: %s", e.Kind)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

func fail(kind Kind, metricLabel string, err error) *IntegrityError {
	metrics.SnapshotIntegrityFailTotal.WithLabelValues(metricLabel).Inc()
	return &IntegrityError{Kind: kind, Err: err}
}

// envelope mirrors the on-disk {version, sha256, payload} wrapper.
type envelope struct {
	Version int             `json:"version"`
	SHA256  string          `json:"sha256"`
	Payload json.RawMessage `json:"payload"`
}

// Save writes payload to path as a canonical-JSON envelope, atomically:
// serialise, checksum, write to path+".tmp", fsync, rename over path,
// fsync the parent directory (best-effort). Any failure before the final
// rename leaves the previous file on disk untouched.
func Save(path string, payload interface{}, version int) error {
	timer := prometheusTimer()
	defer timer()

	canonicalPayload, err := canonjson.Marshal(payload)
	if err != nil {
		return fmt.Errorf("snapshot: marshal payload: %w", err)
	}
	sum := sha256.Sum256(canonicalPayload)

	env := map[string]interface{}{
		"version": version,
		"sha256":  hex.EncodeToString(sum[:]),
		"payload": json.RawMessage(canonicalPayload),
	}
	out, err := canonjson.Marshal(env)
	if err != nil {
		return fmt.Errorf("snapshot: marshal envelope: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("snapshot: open temp file: %w", err)
	}
	if _, err := f.Write(out); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("snapshot: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	if dirFile, err := os.Open(dir); err == nil {
		_ = dirFile.Sync() // best-effort; not all filesystems support dir fsync
		dirFile.Close()
	}
	return nil
}

// Load reads and validates the envelope at path, returning the raw payload
// bytes (canonical JSON) on success. kind labels the component this
// snapshot belongs to (e.g. "allocator", "rollout", "throttle") and is
// attached to every snapshot_integrity_fail_total increment regardless of
// the file's actual name on disk.
func Load(path, kind string) (json.RawMessage, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: stat: %w", err)
	}
	if info.Size() > MaxFileBytes {
		return nil, fail(KindFileTooLarge, kind, nil)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read: %w", err)
	}
	for _, b := range raw {
		if b > 0x7F {
			return nil, fail(KindNonASCII, kind, nil)
		}
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fail(KindInvalidStructure, kind, err)
	}
	if len(generic) != 3 {
		return nil, fail(KindInvalidStructure, kind, fmt.Errorf("expected 3 top-level keys, got %d", len(generic)))
	}
	versionRaw, ok := generic["version"]
	if !ok {
		return nil, fail(KindInvalidStructure, kind, fmt.Errorf("missing version"))
	}
	var version int
	if err := json.Unmarshal(versionRaw, &version); err != nil {
		return nil, fail(KindInvalidStructure, kind, fmt.Errorf("version not an integer: %w", err))
	}
	sha256Raw, ok := generic["sha256"]
	if !ok {
		return nil, fail(KindInvalidStructure, kind, fmt.Errorf("missing sha256"))
	}
	var sha256Str string
	if err := json.Unmarshal(sha256Raw, &sha256Str); err != nil {
		return nil, fail(KindInvalidStructure, kind, fmt.Errorf("sha256 not a string: %w", err))
	}
	payloadRaw, ok := generic["payload"]
	if !ok {
		return nil, fail(KindInvalidStructure, kind, fmt.Errorf("missing payload"))
	}
	var payloadGeneric interface{}
	if err := json.Unmarshal(payloadRaw, &payloadGeneric); err != nil {
		return nil, fail(KindInvalidStructure, kind, fmt.Errorf("payload not valid JSON: %w", err))
	}
	if _, isObject := payloadGeneric.(map[string]interface{}); !isObject {
		return nil, fail(KindInvalidStructure, kind, fmt.Errorf("payload is not a JSON object"))
	}

	canonicalPayload, err := canonjson.Marshal(payloadGeneric)
	if err != nil {
		return nil, fail(KindInvalidPayload, kind, err)
	}
	sum := sha256.Sum256(canonicalPayload)
	if hex.EncodeToString(sum[:]) != sha256Str {
		return nil, fail(KindBadChecksum, kind, nil)
	}

	return json.RawMessage(canonicalPayload), nil
}

// LoadInto loads path and decodes its payload into v.
func LoadInto(path, kind string, v interface{}) error {
	payload, err := Load(path, kind)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fail(KindInvalidPayload, kind, err)
	}
	return nil
}

func prometheusTimer() func() {
	start := nowFunc()
	return func() {
		metrics.SnapshotWriteDuration.Observe(sinceSeconds(start))
	}
}
