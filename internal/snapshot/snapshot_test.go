package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/northbeacon/quotectl/pkg/metrics"
)

type hwmPayload struct {
	HWMEquityUSD float64 `json:"hwm_equity_usd"`
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "allocator_hwm.json")

	in := hwmPayload{HWMEquityUSD: 12345.67}
	require.NoError(t, Save(path, in, 1))

	var out hwmPayload
	require.NoError(t, LoadInto(path, "allocator", &out))
	require.Equal(t, in, out)
}

func TestLoad_BadChecksumOnPayloadMutation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "allocator_hwm.json")
	require.NoError(t, Save(path, hwmPayload{HWMEquityUSD: 1}, 1))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var generic map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &generic))
	generic["payload"] = json.RawMessage(`{"hwm_equity_usd":999}`)
	mutated, err := json.Marshal(generic)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, mutated, 0o644))

	before := testutil.ToFloat64(metrics.SnapshotIntegrityFailTotal.WithLabelValues("allocator"))

	_, err = Load(path, "allocator")
	var ierr *IntegrityError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, KindBadChecksum, ierr.Kind)

	// kind="allocator" is the caller-supplied component label, not the
	// on-disk file name ("allocator_hwm.json" would otherwise leak in).
	after := testutil.ToFloat64(metrics.SnapshotIntegrityFailTotal.WithLabelValues("allocator"))
	require.Equal(t, before+1, after)
}

func TestLoad_NonASCIIByte(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.json")
	require.NoError(t, Save(path, hwmPayload{HWMEquityUSD: 1}, 1))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-2] = 0xC3
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = Load(path, "allocator")
	var ierr *IntegrityError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, KindNonASCII, ierr.Kind)
}

func TestLoad_UnknownTopLevelKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"sha256":"x","payload":{},"extra":1}`), 0o644))

	_, err := Load(path, "allocator")
	var ierr *IntegrityError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, KindInvalidStructure, ierr.Kind)
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.json")
	big := make([]byte, MaxFileBytes+1)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, os.WriteFile(path, big, 0o644))

	_, err := Load(path, "allocator")
	var ierr *IntegrityError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, KindFileTooLarge, ierr.Kind)
}

func TestJitteredInterval_DeterministicAndBounded(t *testing.T) {
	a := JitteredInterval("artifacts/allocator_hwm.json", "allocator", 1000)
	b := JitteredInterval("artifacts/allocator_hwm.json", "allocator", 1000)
	require.Equal(t, a, b)
	require.GreaterOrEqual(t, int64(a), int64(900))
	require.LessOrEqual(t, int64(a), int64(1100))
}
