// Package statemachine 案件包生命周期状态机
//
// 所有对 CasePackage.Status / DisposalOrgID / 生命周期时间戳的修改都必须经过 Table.Apply。
package statemachine

import (
	"sort"
	"time"

	"drmp-assignment/internal/domain"
)

type edge struct {
	from  domain.PackageStatus
	event domain.PackageEvent
	to    domain.PackageStatus
}

// 合法状态边（event: from -> to）
var edges = []edge{
	{domain.PackageStatusDraft, domain.EventPublish, domain.PackageStatusPublished},
	{domain.PackageStatusPublished, domain.EventWithdraw, domain.PackageStatusWithdrawn},
	{domain.PackageStatusPublished, domain.EventAssign, domain.PackageStatusAssigned},
	{domain.PackageStatusAssigned, domain.EventAccept, domain.PackageStatusInProgress},
	{domain.PackageStatusAssigned, domain.EventReject, domain.PackageStatusPublished},
	{domain.PackageStatusInProgress, domain.EventComplete, domain.PackageStatusCompleted},
}

// Table 状态转换表（只读，可并发使用）
type Table struct {
	byFromEvent map[domain.PackageStatus]map[domain.PackageEvent]domain.PackageStatus
	byFromTo    map[domain.PackageStatus]map[domain.PackageStatus]domain.PackageEvent
}

// NewTable 创建状态转换表
func NewTable() *Table {
	t := &Table{
		byFromEvent: map[domain.PackageStatus]map[domain.PackageEvent]domain.PackageStatus{},
		byFromTo:    map[domain.PackageStatus]map[domain.PackageStatus]domain.PackageEvent{},
	}
	for _, e := range edges {
		if t.byFromEvent[e.from] == nil {
			t.byFromEvent[e.from] = map[domain.PackageEvent]domain.PackageStatus{}
			t.byFromTo[e.from] = map[domain.PackageStatus]domain.PackageEvent{}
		}
		t.byFromEvent[e.from][e.event] = e.to
		t.byFromTo[e.from][e.to] = e.event
	}
	return t
}

// Validate (from, to, event) 是否为合法边
func (t *Table) Validate(from, to domain.PackageStatus, event domain.PackageEvent) bool {
	next, ok := t.byFromEvent[from][event]
	return ok && next == to
}

// PossibleNext 从 from 可达的下一状态（按 AllPackageStatuses 顺序）
func (t *Table) PossibleNext(from domain.PackageStatus) []domain.PackageStatus {
	out := make([]domain.PackageStatus, 0, len(t.byFromTo[from]))
	for to := range t.byFromTo[from] {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return statusOrder(out[i]) < statusOrder(out[j]) })
	return out
}

// RequiredEvent from -> to 需要的事件；非相邻状态返回 INVALID_TRANSITION
func (t *Table) RequiredEvent(from, to domain.PackageStatus) (domain.PackageEvent, error) {
	ev, ok := t.byFromTo[from][to]
	if !ok {
		return "", domain.NewError(domain.KindInvalidTransition, "no such transition: %s -> %s", from, to)
	}
	return ev, nil
}

// Next 事件作用于 from 后的目标状态
func (t *Table) Next(from domain.PackageStatus, event domain.PackageEvent) (domain.PackageStatus, error) {
	to, ok := t.byFromEvent[from][event]
	if !ok {
		return "", domain.NewError(domain.KindInvalidTransition, "event %s not allowed in status %s", event, from)
	}
	return to, nil
}

// TransitionInput Apply 的附加参数
type TransitionInput struct {
	DisposalOrgID string // ASSIGN 必填
	At            time.Time
}

// Apply 在案件包上执行事件；失败时案件包不变
func (t *Table) Apply(pkg *domain.CasePackage, event domain.PackageEvent, in TransitionInput) (domain.PackageStatus, error) {
	from := pkg.Status
	to, err := t.Next(from, event)
	if err != nil {
		return "", err
	}

	at := in.At
	if at.IsZero() {
		at = time.Now()
	}

	switch event {
	case domain.EventPublish:
		if pkg.CaseCount <= 0 {
			return "", domain.Validation("package %s has no cases and cannot be published", pkg.PackageID)
		}
		pkg.PublishedAt = &at
	case domain.EventAssign:
		if in.DisposalOrgID == "" {
			return "", domain.Validation("disposal organization is required for %s", event)
		}
		orgID := in.DisposalOrgID
		pkg.DisposalOrgID = &orgID
		pkg.AssignedAt = &at
	case domain.EventAccept:
		pkg.AcceptedAt = &at
	case domain.EventReject:
		pkg.DisposalOrgID = nil
		pkg.AssignedAt = nil
	case domain.EventWithdraw, domain.EventComplete:
		pkg.ClosedAt = &at
	}

	pkg.Status = to
	pkg.UpdatedAt = at
	return from, nil
}

func statusOrder(s domain.PackageStatus) int {
	for i, v := range domain.AllPackageStatuses {
		if v == s {
			return i
		}
	}
	return len(domain.AllPackageStatuses)
}
