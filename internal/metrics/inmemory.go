package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	MergeCodesIssued      uint64
	MergeCodesRedeemed    map[string]uint64
	MergesCompleted       map[string]uint64
	MergeDurationCount    uint64
	MergeDurationTotalNs  int64
	MergedResources       map[string]uint64
	MergeItemsFailed      map[string]uint64 // key: kind + "/" + status
	CollisionChecksFound  uint64
	CollisionChecksMissed uint64
	Conversions           map[string]uint64
	EventsPublished       map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mergeCodesIssued      uint64
	mergeDurationCount    uint64
	mergeDurationTotalNs  int64
	collisionChecksFound  uint64
	collisionChecksMissed uint64

	mu     sync.Mutex
	labels map[string]map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{labels: make(map[string]map[string]uint64)}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		MergeCodesIssued:      atomic.LoadUint64(&m.mergeCodesIssued),
		MergeCodesRedeemed:    m.copyLabels("redeemed"),
		MergesCompleted:       m.copyLabels("completed"),
		MergeDurationCount:    atomic.LoadUint64(&m.mergeDurationCount),
		MergeDurationTotalNs:  atomic.LoadInt64(&m.mergeDurationTotalNs),
		MergedResources:       m.copyLabels("merged"),
		MergeItemsFailed:      m.copyLabels("item_failed"),
		CollisionChecksFound:  atomic.LoadUint64(&m.collisionChecksFound),
		CollisionChecksMissed: atomic.LoadUint64(&m.collisionChecksMissed),
		Conversions:           m.copyLabels("conversion"),
		EventsPublished:       m.copyLabels("event"),
	}
}

func (m *InMemoryRecorder) IncMergeCodeIssued() {
	atomic.AddUint64(&m.mergeCodesIssued, 1)
}

func (m *InMemoryRecorder) IncMergeCodeRedeemed(outcome string) {
	m.add("redeemed", outcome, 1)
}

func (m *InMemoryRecorder) IncMergeCompleted(status string) {
	m.add("completed", status, 1)
}

func (m *InMemoryRecorder) ObserveMergeDuration(duration time.Duration) {
	atomic.AddUint64(&m.mergeDurationCount, 1)
	atomic.AddInt64(&m.mergeDurationTotalNs, duration.Nanoseconds())
}

func (m *InMemoryRecorder) AddMergedResources(kind string, n int) {
	if n > 0 {
		m.add("merged", kind, uint64(n))
	}
}

func (m *InMemoryRecorder) IncMergeItemFailed(kind, status string) {
	m.add("item_failed", kind+"/"+status, 1)
}

func (m *InMemoryRecorder) IncCollisionCheck(found bool) {
	if found {
		atomic.AddUint64(&m.collisionChecksFound, 1)
		return
	}
	atomic.AddUint64(&m.collisionChecksMissed, 1)
}

func (m *InMemoryRecorder) IncConversion(status string) {
	m.add("conversion", status, 1)
}

func (m *InMemoryRecorder) IncEventPublished(status string) {
	m.add("event", status, 1)
}

func (m *InMemoryRecorder) add(family, label string, n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counters, ok := m.labels[family]
	if !ok {
		counters = make(map[string]uint64)
		m.labels[family] = counters
	}
	counters[label] += n
}

func (m *InMemoryRecorder) copyLabels(family string) map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]uint64, len(m.labels[family]))
	for k, v := range m.labels[family] {
		out[k] = v
	}
	return out
}
