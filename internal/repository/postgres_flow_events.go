package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"drmp-assignment/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PostgresFlowEventsRepository 案件流转事件（case_flow_events 表，只追加）
type PostgresFlowEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresFlowEventsRepository 创建流转事件仓库
func NewPostgresFlowEventsRepository(db *sql.DB, logger *zap.Logger) *PostgresFlowEventsRepository {
	return &PostgresFlowEventsRepository{db: db, logger: logger}
}

var _ FlowEventsRepository = (*PostgresFlowEventsRepository)(nil)

// InsertEvent 写入一条流转事件；event_id 为空时生成 UUID
func (r *PostgresFlowEventsRepository) InsertEvent(ctx context.Context, ev *domain.CaseFlowEvent) error {
	if ev.EventID == "" {
		ev.EventID = uuid.New().String()
	}
	metadata := []byte("{}")
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode event metadata: %w", err)
		}
		metadata = b
	}

	query := `
		INSERT INTO case_flow_events (
			event_id, package_id, event_type, from_status, to_status, description,
			operator_id, operator_name, amount, notify, metadata, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::jsonb,$12)
	`
	_, err := r.db.ExecContext(ctx, query,
		ev.EventID,
		ev.PackageID,
		string(ev.EventType),
		nullString(string(ev.FromStatus)),
		nullString(string(ev.ToStatus)),
		ev.Description,
		ev.OperatorID,
		nullString(ev.OperatorName),
		ev.Amount,
		ev.Notify,
		string(metadata),
		ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert case flow event: %w", err)
	}
	return nil
}

// ListByPackage 按发生时间倒序返回某案件包的流转事件
func (r *PostgresFlowEventsRepository) ListByPackage(ctx context.Context, packageID string, limit int) ([]domain.CaseFlowEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT
			event_id,
			package_id,
			event_type,
			COALESCE(from_status, '') AS from_status,
			COALESCE(to_status, '') AS to_status,
			description,
			operator_id,
			COALESCE(operator_name, '') AS operator_name,
			amount,
			notify,
			COALESCE(metadata, '{}'::jsonb) AS metadata,
			occurred_at
		FROM case_flow_events
		WHERE package_id = $1
		ORDER BY occurred_at DESC, event_id
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, packageID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list case flow events: %w", err)
	}
	defer rows.Close()

	out := []domain.CaseFlowEvent{}
	for rows.Next() {
		var ev domain.CaseFlowEvent
		var eventType, from, to string
		var amount sql.NullFloat64
		var metadata []byte
		if err := rows.Scan(
			&ev.EventID,
			&ev.PackageID,
			&eventType,
			&from,
			&to,
			&ev.Description,
			&ev.OperatorID,
			&ev.OperatorName,
			&amount,
			&ev.Notify,
			&metadata,
			&ev.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan case flow event: %w", err)
		}
		ev.EventType = domain.FlowEventType(eventType)
		ev.FromStatus = domain.PackageStatus(from)
		ev.ToStatus = domain.PackageStatus(to)
		ev.Amount = nullFloatPtr(amount)
		if len(metadata) > 0 && string(metadata) != "{}" {
			if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
				r.logger.Warn("Failed to decode flow event metadata", zap.String("event_id", ev.EventID), zap.Error(err))
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
