package metrics

import "sync"

// MemoryObserver collects events in memory, mainly for tests and the
// CLI summary printed after a run.
type MemoryObserver struct {
	mu     sync.Mutex
	events []MetricsEvent
}

func NewMemoryObserver() *MemoryObserver {
	return &MemoryObserver{}
}

func (m *MemoryObserver) RecordEvent(ev MetricsEvent) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

// Events returns a snapshot of everything recorded so far.
func (m *MemoryObserver) Events() []MetricsEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MetricsEvent, len(m.events))
	copy(out, m.events)
	return out
}

// CountByOutcome tallies submission events per outcome tag.
func (m *MemoryObserver) CountByOutcome() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, ev := range m.events {
		if ev.Name != EventSubmit {
			continue
		}
		counts[ev.Tags["outcome"]]++
	}
	return counts
}
