package adminapi

import (
	"sync"
	"time"
)

// MiscState holds the small bits of mutable admin state that don't belong
// to any single domain component: the external recorder/replay control
// knobs (the recorder itself lives outside this module), the chaos
// injection toggle, the anti-stale-guard watchdog toggle, and the canary
// baseline used by report/canary/diff.
type MiscState struct {
	mu sync.Mutex

	ChaosEnabled bool
	ChaosSeed    int64

	RecorderRotatedAt   time.Time
	RecorderRotateCount int64

	ReplayRequests int64
	LastReplayAt   time.Time

	AntiStaleGuardEnabled  bool
	AntiStaleGuardMaxAgeMs int64

	CanaryBaseline    []byte
	CanaryLastPayload []byte
	CanaryLastReport  string
}

// NewMiscState constructs a MiscState with the anti-stale-guard enabled
// by default at a conservative threshold.
func NewMiscState() *MiscState {
	return &MiscState{AntiStaleGuardEnabled: true, AntiStaleGuardMaxAgeMs: 5000}
}

func (m *MiscState) SetChaos(enabled bool, seed int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChaosEnabled = enabled
	m.ChaosSeed = seed
}

func (m *MiscState) Chaos() (bool, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ChaosEnabled, m.ChaosSeed
}

func (m *MiscState) RecordRecorderRotate(now time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecorderRotatedAt = now
	m.RecorderRotateCount++
	return m.RecorderRotateCount
}

func (m *MiscState) RecorderStatus() (time.Time, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RecorderRotatedAt, m.RecorderRotateCount
}

func (m *MiscState) RecordReplay(now time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastReplayAt = now
	m.ReplayRequests++
	return m.ReplayRequests
}

func (m *MiscState) SetAntiStaleGuard(enabled bool, maxAgeMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AntiStaleGuardEnabled = enabled
	if maxAgeMs > 0 {
		m.AntiStaleGuardMaxAgeMs = maxAgeMs
	}
}

func (m *MiscState) AntiStaleGuard() (bool, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.AntiStaleGuardEnabled, m.AntiStaleGuardMaxAgeMs
}

func (m *MiscState) SetCanaryBaseline(payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CanaryBaseline = payload
}

func (m *MiscState) CanaryBaselineBytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CanaryBaseline
}

func (m *MiscState) SetCanaryLast(payload []byte, report string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CanaryLastPayload = payload
	m.CanaryLastReport = report
}

func (m *MiscState) CanaryLast() ([]byte, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CanaryLastPayload, m.CanaryLastReport
}
