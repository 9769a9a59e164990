package repository

import (
	"context"
	"sort"
	"sync"

	"drmp-assignment/internal/domain"
)

// MemoryOrganizationsRepo 机构快照内存实现
type MemoryOrganizationsRepo struct {
	mu   sync.RWMutex
	orgs map[string]domain.Organization
}

func NewMemoryOrganizationsRepo(orgs ...domain.Organization) *MemoryOrganizationsRepo {
	r := &MemoryOrganizationsRepo{orgs: map[string]domain.Organization{}}
	for _, o := range orgs {
		r.orgs[o.OrgID] = o
	}
	return r
}

var _ OrganizationsRepository = (*MemoryOrganizationsRepo)(nil)

// Put 新增或替换机构（测试与本地开发装载数据用）
func (r *MemoryOrganizationsRepo) Put(org domain.Organization) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orgs[org.OrgID] = org
}

func (r *MemoryOrganizationsRepo) ListOrganizations(_ context.Context) ([]domain.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Organization, 0, len(r.orgs))
	for _, o := range r.orgs {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrgID < out[j].OrgID })
	return out, nil
}

func (r *MemoryOrganizationsRepo) GetOrganization(_ context.Context, orgID string) (*domain.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orgs[orgID]
	if !ok {
		return nil, domain.NotFound("organization", orgID)
	}
	return &o, nil
}
