package repository

import (
	"context"
	"sort"
	"sync"

	"drmp-assignment/internal/domain"
)

// MemoryPackagesRepo 案件包内存实现（STORAGE_BACKEND=memory 及测试使用）
type MemoryPackagesRepo struct {
	mu       sync.RWMutex
	packages map[string]*domain.CasePackage
}

func NewMemoryPackagesRepo(pkgs ...*domain.CasePackage) *MemoryPackagesRepo {
	r := &MemoryPackagesRepo{packages: map[string]*domain.CasePackage{}}
	for _, p := range pkgs {
		r.packages[p.PackageID] = p.Clone()
	}
	return r
}

var _ PackagesRepository = (*MemoryPackagesRepo)(nil)

func (r *MemoryPackagesRepo) GetPackage(_ context.Context, packageID string) (*domain.CasePackage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.packages[packageID]
	if !ok {
		return nil, domain.NotFound("case package", packageID)
	}
	return p.Clone(), nil
}

func (r *MemoryPackagesRepo) GetPackagesByIDs(_ context.Context, packageIDs []string) (map[string]*domain.CasePackage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*domain.CasePackage, len(packageIDs))
	for _, id := range packageIDs {
		if p, ok := r.packages[id]; ok {
			out[id] = p.Clone()
		}
	}
	return out, nil
}

func (r *MemoryPackagesRepo) ListPackages(_ context.Context, filter PackageFilter) ([]*domain.CasePackage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*domain.CasePackage{}
	for _, p := range r.packages {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.SourceOrgID != "" && p.SourceOrgID != filter.SourceOrgID {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].PackageID < out[j].PackageID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryPackagesRepo) CreatePackage(_ context.Context, pkg *domain.CasePackage) error {
	if err := pkg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.packages[pkg.PackageID]; ok {
		return domain.NewError(domain.KindConflict, "case package already exists: %s", pkg.PackageID)
	}
	pkg.Version = 0
	r.packages[pkg.PackageID] = pkg.Clone()
	return nil
}

func (r *MemoryPackagesRepo) SavePackageState(_ context.Context, pkg *domain.CasePackage) error {
	if err := pkg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkVersion(pkg); err != nil {
		return err
	}
	r.store(pkg)
	return nil
}

// SaveAssignments 先校验全部版本再写入，任一冲突则不写
func (r *MemoryPackagesRepo) SaveAssignments(_ context.Context, pkgs []*domain.CasePackage) error {
	for _, p := range pkgs {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range pkgs {
		if err := r.checkVersion(p); err != nil {
			return err
		}
	}
	for _, p := range pkgs {
		r.store(p)
	}
	return nil
}

func (r *MemoryPackagesRepo) checkVersion(pkg *domain.CasePackage) error {
	cur, ok := r.packages[pkg.PackageID]
	if !ok {
		return domain.NotFound("case package", pkg.PackageID)
	}
	if cur.Version != pkg.Version {
		return domain.NewError(domain.KindConflict,
			"case package %s was modified concurrently (expected version %d)", pkg.PackageID, pkg.Version)
	}
	return nil
}

func (r *MemoryPackagesRepo) store(pkg *domain.CasePackage) {
	pkg.Version++
	r.packages[pkg.PackageID] = pkg.Clone()
}
