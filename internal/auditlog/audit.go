package auditlog

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // actor fingerprint and payload hash, not a security signature
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/northbeacon/quotectl/internal/canonjson"
	"github.com/northbeacon/quotectl/pkg/metrics"
)

// Capacity is the fixed size of the audit ring buffer.
const Capacity = 1000

// Record is one audit trail entry, per spec.md §3.
type Record struct {
	Timestamp   time.Time `json:"ts"`
	Endpoint    string    `json:"endpoint"`
	Actor       string    `json:"actor"`
	PayloadHash string    `json:"payload_hash"`
	Signature   string    `json:"sig"`
}

// ForJSON renders ts as RFC3339 with a trailing Z, as spec.md §3 requires
// ("ts: RFC3339Z"), for canonical-JSON serialisation at the admin surface
// or a JSONL sink.
func (r Record) ForJSON() map[string]interface{} {
	return map[string]interface{}{
		"ts":           r.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
		"endpoint":     r.Endpoint,
		"actor":        r.Actor,
		"payload_hash": r.PayloadHash,
		"sig":          r.Signature,
	}
}

// Sink receives every appended audit record, e.g. a JSONL file or a
// Postgres table. Append must not block the caller indefinitely.
type Sink interface {
	Append(Record) error
}

// Log is the ring-buffered, optionally HMAC-signed audit trail.
type Log struct {
	mu      sync.Mutex
	entries []Record
	next    int
	full    bool
	hmacKey []byte
	sinks   []Sink
}

// NewLog constructs an audit log. hmacKey may be nil, in which case every
// record's Signature is the empty string.
func NewLog(hmacKey []byte, sinks ...Sink) *Log {
	return &Log{
		entries: make([]Record, Capacity),
		hmacKey: hmacKey,
		sinks:   sinks,
	}
}

// ActorFromToken derives the audit actor identity from an admin token:
// "token:" + first 8 hex chars of sha1(token).
func ActorFromToken(token string) string {
	sum := sha1.Sum([]byte(token)) //nolint:gosec
	return "token:" + hex.EncodeToString(sum[:])[:8]
}

// PayloadHash returns the sha1 hex digest of the canonical JSON of payload.
func PayloadHash(payload interface{}) (string, error) {
	canonical, err := canonjson.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(canonical) //nolint:gosec
	return hex.EncodeToString(sum[:]), nil
}

// Append records a successful admin call. now, endpoint, actor, and the
// request payload (used only to derive the hash and, if configured, the
// signature) are supplied by the caller; payload is never stored verbatim.
func (l *Log) Append(now time.Time, endpoint, actor string, payload interface{}) (Record, error) {
	hash, err := PayloadHash(payload)
	if err != nil {
		metrics.AuditSignFailTotal.WithLabelValues("hash").Inc()
		return Record{}, err
	}

	sig := ""
	if len(l.hmacKey) > 0 {
		canonical, err := canonjson.Marshal(payload)
		if err != nil {
			metrics.AuditSignFailTotal.WithLabelValues("sign").Inc()
			return Record{}, err
		}
		mac := hmac.New(sha256.New, l.hmacKey)
		mac.Write(canonical)
		sig = hex.EncodeToString(mac.Sum(nil))
	}

	rec := Record{
		Timestamp:   now,
		Endpoint:    endpoint,
		Actor:       actor,
		PayloadHash: hash,
		Signature:   sig,
	}

	l.mu.Lock()
	l.entries[l.next] = rec
	l.next = (l.next + 1) % Capacity
	if l.next == 0 {
		l.full = true
	}
	sinks := append([]Sink(nil), l.sinks...)
	l.mu.Unlock()

	for _, s := range sinks {
		if err := s.Append(rec); err != nil {
			metrics.AuditSignFailTotal.WithLabelValues("sink").Inc()
		}
	}

	return rec, nil
}

// Records returns the buffered records in chronological order (oldest
// first).
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		out := make([]Record, l.next)
		copy(out, l.entries[:l.next])
		return out
	}
	out := make([]Record, Capacity)
	copy(out, l.entries[l.next:])
	copy(out[Capacity-l.next:], l.entries[:l.next])
	return out
}

// Clear empties the ring buffer.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]Record, Capacity)
	l.next = 0
	l.full = false
}

// ParseHMACKey decodes the ADMIN_AUDIT_HMAC_KEY environment value: if it
// parses as hex, the decoded bytes are the key; otherwise the raw UTF-8
// bytes of the variable are used.
func ParseHMACKey(raw string) []byte {
	if raw == "" {
		return nil
	}
	if decoded, err := hex.DecodeString(raw); err == nil {
		return decoded
	}
	return []byte(raw)
}
