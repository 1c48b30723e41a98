// Package canonjson produces the canonical JSON encoding the control plane
// uses everywhere a byte-stable representation matters: snapshot envelopes,
// canary payloads, and every admin HTTP response body. Canonical means: map
// keys sorted lexicographically, "," and ":" separators with no surrounding
// whitespace, and ASCII-only output (non-ASCII runes are \u-escaped).
package canonjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal encodes v as canonical JSON: sorted object keys, compact
// separators, ASCII-only bytes.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonjson: marshal: %w", err)
	}
	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonjson: decode intermediate: %w", err)
	}
	var buf bytes.Buffer
	if err := encode(&buf, generic); err != nil {
		return nil, err
	}
	return escapeNonASCII(buf.Bytes()), nil
}

// MustMarshal is Marshal but panics on error; reserved for call sites
// constructing payloads from already-validated Go values.
func MustMarshal(v interface{}) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func encode(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// escapeNonASCII rewrites any byte >= 0x80 as a \uXXXX escape so the output
// file is ASCII-only, matching the snapshot envelope's on-disk requirement.
func escapeNonASCII(in []byte) []byte {
	hasHigh := false
	for _, b := range in {
		if b >= 0x80 {
			hasHigh = true
			break
		}
	}
	if !hasHigh {
		return in
	}
	var out bytes.Buffer
	runes := []rune(string(in))
	for _, r := range runes {
		if r < 0x80 {
			out.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			r1, r2 := utf16Surrogates(r)
			fmt.Fprintf(&out, `\u%04x\u%04x`, r1, r2)
			continue
		}
		fmt.Fprintf(&out, `\u%04x`, r)
	}
	return out.Bytes()
}

func utf16Surrogates(r rune) (rune, rune) {
	r -= 0x10000
	return 0xD800 + (r >> 10), 0xDC00 + (r & 0x3FF)
}

// SHA256Hex returns the lowercase hex sha256 of the canonical JSON of v.
func SHA256Hex(v interface{}) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return sha256Hex(b), nil
}
