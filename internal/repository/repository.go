// Package repository 案件包 / 机构 / 分配规则 / 流转事件的持久化端口及 Postgres、内存实现
package repository

import (
	"context"
	"time"

	"drmp-assignment/internal/domain"
)

// PackagesRepository 案件包仓库
type PackagesRepository interface {
	GetPackage(ctx context.Context, packageID string) (*domain.CasePackage, error)
	// GetPackagesByIDs 一次读取多个案件包；不存在的 ID 不出现在结果中
	GetPackagesByIDs(ctx context.Context, packageIDs []string) (map[string]*domain.CasePackage, error)
	ListPackages(ctx context.Context, filter PackageFilter) ([]*domain.CasePackage, error)
	CreatePackage(ctx context.Context, pkg *domain.CasePackage) error
	// SavePackageState 持久化状态机产生的变更；以 pkg.Version 作乐观锁，成功后 Version+1
	SavePackageState(ctx context.Context, pkg *domain.CasePackage) error
	// SaveAssignments 批量分配组写：同一事务内全部成功或全部回滚
	SaveAssignments(ctx context.Context, pkgs []*domain.CasePackage) error
}

// PackageFilter 案件包列表过滤条件
type PackageFilter struct {
	Status      domain.PackageStatus
	SourceOrgID string
	Limit       int
}

// OrganizationsRepository 处置机构只读快照
type OrganizationsRepository interface {
	ListOrganizations(ctx context.Context) ([]domain.Organization, error)
	GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error)
}

// RulesRepository 分配规则仓库
type RulesRepository interface {
	GetRule(ctx context.Context, ruleID string) (*domain.AssignmentRule, error)
	ListRules(ctx context.Context, filter RuleFilter) ([]*domain.AssignmentRule, error)
	CreateRule(ctx context.Context, rule *domain.AssignmentRule) error
	UpdateRule(ctx context.Context, rule *domain.AssignmentRule) error
	DeleteRule(ctx context.Context, ruleID string) error
	// RecordUsage 原子递增 usage_count（success 时同时递增 success_count）
	RecordUsage(ctx context.Context, ruleID string, success bool, at time.Time) error
}

// RuleFilter 规则列表过滤条件
type RuleFilter struct {
	EnabledOnly bool
	RuleType    domain.RuleType
}

// FlowEventsRepository 案件流转事件日志
type FlowEventsRepository interface {
	InsertEvent(ctx context.Context, ev *domain.CaseFlowEvent) error
	ListByPackage(ctx context.Context, packageID string, limit int) ([]domain.CaseFlowEvent, error)
}

// rowScanner *sql.Row 与 *sql.Rows 的公共部分
type rowScanner interface {
	Scan(dest ...any) error
}
