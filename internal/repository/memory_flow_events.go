package repository

import (
	"context"
	"sort"
	"sync"

	"drmp-assignment/internal/domain"

	"github.com/google/uuid"
)

// MemoryFlowEventsRepo 流转事件内存实现
type MemoryFlowEventsRepo struct {
	mu     sync.RWMutex
	events []domain.CaseFlowEvent
}

func NewMemoryFlowEventsRepo() *MemoryFlowEventsRepo {
	return &MemoryFlowEventsRepo{}
}

var _ FlowEventsRepository = (*MemoryFlowEventsRepo)(nil)

func (r *MemoryFlowEventsRepo) InsertEvent(_ context.Context, ev *domain.CaseFlowEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.EventID == "" {
		ev.EventID = uuid.New().String()
	}
	r.events = append(r.events, *ev)
	return nil
}

func (r *MemoryFlowEventsRepo) ListByPackage(_ context.Context, packageID string, limit int) ([]domain.CaseFlowEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []domain.CaseFlowEvent{}
	for _, ev := range r.events {
		if ev.PackageID == packageID {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All 全部事件（按写入顺序）
func (r *MemoryFlowEventsRepo) All() []domain.CaseFlowEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.CaseFlowEvent(nil), r.events...)
}
