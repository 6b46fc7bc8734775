package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage keeps call logs in process. Used when no database is
// configured and in tests.
type MemoryStorage struct {
	mu   sync.RWMutex
	logs []*CallLog
}

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// SaveCallLog saves a single call log
func (m *MemoryStorage) SaveCallLog(ctx context.Context, callLog *CallLog) error {
	return m.SaveCallLogsBatch(ctx, []*CallLog{callLog})
}

// SaveCallLogsBatch appends logs
func (m *MemoryStorage) SaveCallLogsBatch(ctx context.Context, logs []*CallLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range logs {
		copied := *entry
		m.logs = append(m.logs, &copied)
	}
	return nil
}

func (f LogFilter) matches(entry *CallLog) bool {
	switch {
	case f.StartTime != nil && entry.Timestamp.Before(*f.StartTime):
		return false
	case f.EndTime != nil && entry.Timestamp.After(*f.EndTime):
		return false
	case f.Family != nil && (entry.Family == nil || *entry.Family != *f.Family):
		return false
	case f.Provider != nil && (entry.Provider == nil || *entry.Provider != *f.Provider):
		return false
	case f.StatusCode != nil && (entry.StatusCode == nil || *entry.StatusCode != *f.StatusCode):
		return false
	case f.HasError != nil && *f.HasError != (entry.ErrorCode != nil):
		return false
	}
	return true
}

func (m *MemoryStorage) filter(f LogFilter) []*CallLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*CallLog
	for _, entry := range m.logs {
		if f.matches(entry) {
			out = append(out, entry)
		}
	}
	return out
}

// GetCallLogs retrieves call logs based on filter criteria
func (m *MemoryStorage) GetCallLogs(ctx context.Context, f LogFilter) ([]*CallLog, error) {
	out := m.filter(f)

	column, dir := f.order()
	less := func(a, b *CallLog) bool {
		switch column {
		case "latency_ms":
			return int64OrZero(a.LatencyMs) < int64OrZero(b.LatencyMs)
		case "status_code":
			return intOrZero(a.StatusCode) < intOrZero(b.StatusCode)
		case "provider":
			return stringOrEmpty(a.Provider) < stringOrEmpty(b.Provider)
		default:
			return a.Timestamp.Before(b.Timestamp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if dir == "ASC" {
			return less(out[i], out[j])
		}
		return less(out[j], out[i])
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// GetCallLogByID retrieves a single call log by ID. A missing log is (nil, nil).
func (m *MemoryStorage) GetCallLogByID(ctx context.Context, id string) (*CallLog, error) {
	logID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, entry := range m.logs {
		if entry.ID == logID {
			return entry, nil
		}
	}
	return nil, nil
}

// GetLogStats retrieves aggregated statistics
func (m *MemoryStorage) GetLogStats(ctx context.Context, f LogFilter) (*LogStats, error) {
	stats := &LogStats{ProviderStats: make(map[string]int64)}

	var (
		latencySum   int64
		latencyCount int64
		failed       int64
	)
	for _, entry := range m.filter(f) {
		stats.TotalRequests++
		stats.ProviderStats[stringOrEmpty(entry.Provider)]++
		if entry.LatencyMs != nil {
			latencySum += *entry.LatencyMs
			latencyCount++
		}
		if entry.ErrorCode != nil || intOrZero(entry.StatusCode) >= 400 {
			failed++
		}
	}

	if latencyCount > 0 {
		stats.AverageLatency = float64(latencySum) / float64(latencyCount)
	}
	if stats.TotalRequests > 0 {
		stats.ErrorRate = float64(failed) / float64(stats.TotalRequests)
	}
	return stats, nil
}

// DeleteBefore removes logs older than cutoff and returns how many were removed.
func (m *MemoryStorage) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.logs[:0]
	var removed int64
	for _, entry := range m.logs {
		if entry.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	for i := len(kept); i < len(m.logs); i++ {
		m.logs[i] = nil
	}
	m.logs = kept
	return removed, nil
}

// Close is a no-op
func (m *MemoryStorage) Close() error {
	return nil
}

// Len returns the number of stored logs.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs)
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func int64OrZero(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func stringOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
