package lib

import "sync"

// Metrics is a tiny in-memory counter store exposed on /metrics.
type Metrics struct {
	mu       sync.RWMutex
	counters map[string]uint64
}

func NewMetrics() *Metrics {
	return &Metrics{counters: make(map[string]uint64)}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

// Add increases a counter by n. A nil receiver is a no-op so optional
// collaborators can be built without metrics in tests.
func (m *Metrics) Add(name string, n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += n
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[name]
}

func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make(map[string]uint64, len(m.counters))
	for k, v := range m.counters {
		cp[k] = v
	}
	return cp
}
