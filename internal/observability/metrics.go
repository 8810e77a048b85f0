package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
)

// Metrics provides basic in-memory counters for the HTTP surface and the
// sync engine.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64

	passCount    map[string]int64
	syncCounters domain.SyncCounters
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		passCount:    make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordSyncPass accumulates the outcome of one sync pass.
func (m *Metrics) RecordSyncPass(kind domain.SyncKind, status domain.SyncStatus, counters domain.SyncCounters) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passCount[string(kind)+"|"+string(status)]++
	m.syncCounters.Add(counters)
}

// SyncTotals returns the accumulated sync counters since startup.
func (m *Metrics) SyncTotals() domain.SyncCounters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncCounters
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
