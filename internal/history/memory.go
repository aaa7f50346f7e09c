package history

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and by analyses run
// without a configured history database.
type MemoryStore struct {
	mu        sync.Mutex
	nextID    int64
	snapshots []ExecutionSnapshot
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (m *MemoryStore) InsertSnapshot(ctx context.Context, snap *ExecutionSnapshot) (*PerformanceSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *snap
	stored.ID = m.nextID
	m.nextID++
	if stored.ExecutedAt.IsZero() {
		stored.ExecutedAt = time.Now()
	}
	m.snapshots = append(m.snapshots, stored)
	snap.ID = stored.ID
	snap.ExecutedAt = stored.ExecutedAt

	return m.summaryLocked(stored.Fingerprint, stored.DBName, stored.InstanceID), nil
}

func (m *MemoryStore) RecentSnapshots(ctx context.Context, fingerprint, dbName, instanceID string, limit int) ([]ExecutionSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	matches := m.matchesLocked(fingerprint, dbName, instanceID)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]ExecutionSnapshot, len(matches))
	copy(out, matches)
	return out, nil
}

func (m *MemoryStore) Summary(ctx context.Context, fingerprint, dbName, instanceID string) (*PerformanceSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaryLocked(fingerprint, dbName, instanceID), nil
}

func (m *MemoryStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []ExecutionSnapshot
	var removed int64
	for _, s := range m.snapshots {
		if s.ExecutedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	m.snapshots = kept
	return removed, nil
}

func (m *MemoryStore) RegressionCount(ctx context.Context, dbName string, since time.Time) (int64, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var total int64
	unique := make(map[string]bool)
	for _, s := range m.snapshots {
		if s.DBName == dbName && s.WasRegression && !s.ExecutedAt.Before(since) {
			total++
			unique[s.Fingerprint] = true
		}
	}
	return total, int64(len(unique)), nil
}

// matchesLocked returns snapshots for the key, most recent first with ties
// broken by highest id.
func (m *MemoryStore) matchesLocked(fingerprint, dbName, instanceID string) []ExecutionSnapshot {
	var matches []ExecutionSnapshot
	for _, s := range m.snapshots {
		if s.Fingerprint == fingerprint && s.DBName == dbName && s.InstanceID == instanceID {
			matches = append(matches, s)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].ExecutedAt.Equal(matches[j].ExecutedAt) {
			return matches[i].ExecutedAt.After(matches[j].ExecutedAt)
		}
		return matches[i].ID > matches[j].ID
	})
	return matches
}

func (m *MemoryStore) summaryLocked(fingerprint, dbName, instanceID string) *PerformanceSummary {
	matches := m.matchesLocked(fingerprint, dbName, instanceID)
	if len(matches) == 0 {
		return nil
	}

	latest := matches[0]
	sum := &PerformanceSummary{
		Fingerprint:     fingerprint,
		DBName:          dbName,
		InstanceID:      instanceID,
		TotalExecutions: int64(len(matches)),
		MinCost:         latest.Cost,
		MaxCost:         latest.Cost,
		FirstSeen:       matches[len(matches)-1].ExecutedAt,
		LastExecuted:    latest.ExecutedAt,
		LatestPlanHash:  latest.PlanHash,
	}

	var total float64
	for _, s := range matches {
		total += s.Cost
		if s.Cost < sum.MinCost {
			sum.MinCost = s.Cost
		}
		if s.Cost > sum.MaxCost {
			sum.MaxCost = s.Cost
		}
	}
	sum.AvgCost = total / float64(len(matches))
	sum.CostTrend = costTrend(latest.Cost, sum.AvgCost)

	window := matches
	if len(window) > StabilityWindow {
		window = window[:StabilityWindow]
	}
	matched := 0
	for _, s := range window {
		if s.PlanHash == latest.PlanHash {
			matched++
		}
	}
	sum.PlanStabilityPct = 100 * float64(matched) / float64(len(window))

	return sum
}

func costTrend(latest, avg float64) string {
	switch {
	case avg == 0:
		return "stable"
	case latest > 1.1*avg:
		return "degrading"
	case latest < 0.9*avg:
		return "improving"
	default:
		return "stable"
	}
}
