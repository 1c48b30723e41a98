package snapshot

import (
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// JitteredInterval returns interval*(1+eps) where eps is a deterministic
// value in [-0.10, +0.10] derived from a keyed hash of path and tag, so
// independent processes writing the same kind of snapshot do not
// synchronise, while a single deployment's cadence stays reproducible
// across restarts.
func JitteredInterval(path, tag string, interval time.Duration) time.Duration {
	eps := DeterministicEpsilon(path, tag)
	return time.Duration(float64(interval) * (1 + eps))
}

// DeterministicEpsilon hashes path||tag and maps the first 8 bytes of the
// digest onto [-0.10, +0.10].
func DeterministicEpsilon(path, tag string) float64 {
	h := sha256.Sum256([]byte(path + "|" + tag))
	v := binary.BigEndian.Uint64(h[:8])
	// Normalise to [0,1) then rescale to [-0.10, 0.10].
	frac := float64(v) / float64(^uint64(0))
	return -0.10 + frac*0.20
}
