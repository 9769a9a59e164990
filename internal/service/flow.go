package service

import (
	"context"
	"fmt"
	"time"

	"drmp-assignment/internal/domain"
	"drmp-assignment/internal/events"
	"drmp-assignment/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func packageLockKey(packageID string) string {
	return "package:" + packageID
}

func newFlowEvent(pkg *domain.CasePackage, typ domain.FlowEventType, from domain.PackageStatus, caller domain.Caller, at time.Time) *domain.CaseFlowEvent {
	amount := pkg.TotalAmount
	return &domain.CaseFlowEvent{
		EventID:      uuid.New().String(),
		PackageID:    pkg.PackageID,
		EventType:    typ,
		FromStatus:   from,
		ToStatus:     pkg.Status,
		OperatorID:   caller.UserID,
		OperatorName: caller.UserName,
		Amount:       &amount,
		Metadata:     map[string]string{},
		OccurredAt:   at,
	}
}

// flowEmitter 提交之后投递流转事件；投递失败只记录，不影响已提交的结果
type flowEmitter struct {
	sink    events.Sink
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func (f flowEmitter) emit(ctx context.Context, ev *domain.CaseFlowEvent) {
	if f.sink == nil {
		return
	}
	if err := f.sink.Emit(context.WithoutCancel(ctx), ev); err != nil {
		f.metrics.ObserveEventFailure()
		f.logger.Warn("Failed to emit case flow event",
			zap.String("package_id", ev.PackageID),
			zap.String("event_type", string(ev.EventType)),
			zap.Error(err),
		)
	}
}

func assignedDescription(orgName string, score float64, strategyName string) string {
	return fmt.Sprintf("assigned to %s (score %.2f, strategy %s)", orgName, score, strategyName)
}
