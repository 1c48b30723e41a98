package auditlog

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/northbeacon/quotectl/internal/canonjson"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AdmitsUpToLimit(t *testing.T) {
	rl := NewRateLimiter()
	base := time.Now()
	for i := 0; i < Limit; i++ {
		require.True(t, rl.Allow("token:abc", "/admin/rollout", base.Add(time.Duration(i)*time.Millisecond)))
	}
	require.False(t, rl.Allow("token:abc", "/admin/rollout", base.Add(time.Duration(Limit)*time.Millisecond)))
}

func TestRateLimiter_WindowSlidesOut(t *testing.T) {
	rl := NewRateLimiter()
	base := time.Now()
	for i := 0; i < Limit; i++ {
		require.True(t, rl.Allow("token:abc", "/admin/rollout", base))
	}
	require.False(t, rl.Allow("token:abc", "/admin/rollout", base))
	require.True(t, rl.Allow("token:abc", "/admin/rollout", base.Add(61*time.Second)))
}

func TestRateLimiter_IndependentKeys(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Now()
	for i := 0; i < Limit; i++ {
		require.True(t, rl.Allow("token:abc", "/admin/rollout", now))
	}
	require.True(t, rl.Allow("token:abc", "/admin/guard", now))
	require.True(t, rl.Allow("token:def", "/admin/rollout", now))
}

func TestActorFromToken_Deterministic(t *testing.T) {
	require.Equal(t, ActorFromToken("p1"), ActorFromToken("p1"))
	require.NotEqual(t, ActorFromToken("p1"), ActorFromToken("p2"))
	require.Len(t, ActorFromToken("p1"), len("token:")+8)
}

func TestLog_AppendAndWraps(t *testing.T) {
	log := NewLog(nil)
	now := time.Now()
	for i := 0; i < Capacity+5; i++ {
		_, err := log.Append(now, "/admin/rollout", "token:abc", map[string]interface{}{"i": i})
		require.NoError(t, err)
	}
	records := log.Records()
	require.Len(t, records, Capacity)
	require.Equal(t, "/admin/rollout", records[0].Endpoint)
}

func TestLog_SignatureMatchesHMAC(t *testing.T) {
	key := []byte("secret-key")
	log := NewLog(key)
	now := time.Now()
	payload := map[string]interface{}{"a": 1, "b": 2}

	rec, err := log.Append(now, "/admin/guard", "token:abc", payload)
	require.NoError(t, err)

	canonical, err := canonjson.Marshal(payload)
	require.NoError(t, err)
	mac := hmac.New(sha256.New, key)
	mac.Write(canonical)
	expected := hex.EncodeToString(mac.Sum(nil))

	require.Equal(t, expected, rec.Signature)
}

func TestLog_NoKeyMeansEmptySignature(t *testing.T) {
	log := NewLog(nil)
	rec, err := log.Append(time.Now(), "/admin/guard", "token:abc", map[string]interface{}{"a": 1})
	require.NoError(t, err)
	require.Equal(t, "", rec.Signature)
}

func TestParseHMACKey_HexVsRaw(t *testing.T) {
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, ParseHMACKey("deadbeef"))
	require.Equal(t, []byte("not-hex-zzz"), ParseHMACKey("not-hex-zzz"))
	require.Nil(t, ParseHMACKey(""))
}
