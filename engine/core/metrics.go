package core

import (
	"sync"
	"time"
)

const AVG_COUNT uint8 = 30

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Loads        uint64
	CacheHits    uint64
	LoadFailures uint64
	Saves        uint64
	// Average duration of the last AVG_COUNT loads.
	AvgLoadTime time.Duration
}

// Metrics tracks load activity of a resource manager. Safe for concurrent use.
type Metrics struct {
	mu           sync.Mutex
	loads        uint64
	cacheHits    uint64
	loadFailures uint64
	saves        uint64

	avgCounter uint8
	samples    uint8
	loadTimes  [AVG_COUNT]time.Duration
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordLoad(elapsed time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loads++
	if !ok {
		m.loadFailures++
	}
	m.loadTimes[m.avgCounter] = elapsed
	m.avgCounter = (m.avgCounter + 1) % AVG_COUNT
	if m.samples < AVG_COUNT {
		m.samples++
	}
}

func (m *Metrics) RecordCacheHit() {
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
}

func (m *Metrics) RecordSave() {
	m.mu.Lock()
	m.saves++
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := MetricsSnapshot{
		Loads:        m.loads,
		CacheHits:    m.cacheHits,
		LoadFailures: m.loadFailures,
		Saves:        m.saves,
	}
	if m.samples > 0 {
		var total time.Duration
		for i := uint8(0); i < m.samples; i++ {
			total += m.loadTimes[i]
		}
		s.AvgLoadTime = total / time.Duration(m.samples)
	}
	return s
}
