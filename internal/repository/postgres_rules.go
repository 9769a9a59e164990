package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"drmp-assignment/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PostgresRulesRepository 分配规则仓库（assignment_rules 表，条件/动作为 JSONB）
type PostgresRulesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresRulesRepository 创建规则仓库
func NewPostgresRulesRepository(db *sql.DB, logger *zap.Logger) *PostgresRulesRepository {
	return &PostgresRulesRepository{db: db, logger: logger}
}

var _ RulesRepository = (*PostgresRulesRepository)(nil)

const ruleColumns = `
	rule_id,
	rule_name,
	rule_type,
	COALESCE(description, '') AS description,
	priority,
	enabled,
	min_matching_score,
	COALESCE(conditions, '{}'::jsonb) AS conditions,
	COALESCE(actions, '{}'::jsonb) AS actions,
	usage_count,
	success_count,
	last_used_at,
	COALESCE(created_by, '') AS created_by,
	created_at,
	updated_at`

func scanRule(s rowScanner) (*domain.AssignmentRule, error) {
	var rule domain.AssignmentRule
	var ruleType string
	var conditions, actions []byte
	var lastUsed sql.NullTime

	err := s.Scan(
		&rule.RuleID,
		&rule.RuleName,
		&ruleType,
		&rule.Description,
		&rule.Priority,
		&rule.Enabled,
		&rule.MinMatchingScore,
		&conditions,
		&actions,
		&rule.UsageCount,
		&rule.SuccessCount,
		&lastUsed,
		&rule.CreatedBy,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.RuleType = domain.RuleType(ruleType)
	rule.LastUsedAt = nullTimePtr(lastUsed)
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("failed to decode conditions of rule %s: %w", rule.RuleID, err)
		}
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &rule.Actions); err != nil {
			return nil, fmt.Errorf("failed to decode actions of rule %s: %w", rule.RuleID, err)
		}
	}
	return &rule, nil
}

// GetRule 根据 rule_id 获取规则
func (r *PostgresRulesRepository) GetRule(ctx context.Context, ruleID string) (*domain.AssignmentRule, error) {
	if ruleID == "" {
		return nil, domain.Validation("rule_id is required")
	}

	query := `SELECT` + ruleColumns + `
		FROM assignment_rules
		WHERE rule_id = $1`

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, ruleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("assignment rule", ruleID)
		}
		return nil, fmt.Errorf("failed to get assignment rule: %w", err)
	}
	return rule, nil
}

// ListRules 优先级降序、rule_id 升序
func (r *PostgresRulesRepository) ListRules(ctx context.Context, filter RuleFilter) ([]*domain.AssignmentRule, error) {
	where := []string{}
	args := []any{}

	if filter.EnabledOnly {
		where = append(where, "enabled = TRUE")
	}
	if filter.RuleType != "" {
		args = append(args, string(filter.RuleType))
		where = append(where, fmt.Sprintf("rule_type = $%d", len(args)))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}
	query := fmt.Sprintf(`SELECT %s
		FROM assignment_rules
		%s
		ORDER BY priority DESC, rule_id`, ruleColumns, whereClause)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignment rules: %w", err)
	}
	defer rows.Close()

	out := []*domain.AssignmentRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// CreateRule 新建规则；rule_id 为空时生成 UUID
func (r *PostgresRulesRepository) CreateRule(ctx context.Context, rule *domain.AssignmentRule) error {
	if rule.RuleID == "" {
		rule.RuleID = uuid.New().String()
	}
	conditions, actions, err := marshalRuleJSON(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO assignment_rules (
			rule_id, rule_name, rule_type, description, priority, enabled,
			min_matching_score, conditions, actions, usage_count, success_count,
			created_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9::jsonb,0,0,$10,$11,$12)
	`
	_, err = r.db.ExecContext(ctx, query,
		rule.RuleID,
		rule.RuleName,
		string(rule.RuleType),
		nullString(rule.Description),
		rule.Priority,
		rule.Enabled,
		rule.MinMatchingScore,
		conditions,
		actions,
		nullString(rule.CreatedBy),
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create assignment rule: %w", err)
	}
	rule.UsageCount, rule.SuccessCount = 0, 0
	return nil
}

// UpdateRule 更新规则定义（不修改使用统计）
func (r *PostgresRulesRepository) UpdateRule(ctx context.Context, rule *domain.AssignmentRule) error {
	conditions, actions, err := marshalRuleJSON(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE assignment_rules
		SET rule_name = $2,
			rule_type = $3,
			description = $4,
			priority = $5,
			enabled = $6,
			min_matching_score = $7,
			conditions = $8::jsonb,
			actions = $9::jsonb,
			updated_at = $10
		WHERE rule_id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		rule.RuleID,
		rule.RuleName,
		string(rule.RuleType),
		nullString(rule.Description),
		rule.Priority,
		rule.Enabled,
		rule.MinMatchingScore,
		conditions,
		actions,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update assignment rule: %w", err)
	}
	return expectOneRow(res, "assignment rule", rule.RuleID)
}

// DeleteRule 删除规则
func (r *PostgresRulesRepository) DeleteRule(ctx context.Context, ruleID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assignment_rules WHERE rule_id = $1`, ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete assignment rule: %w", err)
	}
	return expectOneRow(res, "assignment rule", ruleID)
}

// RecordUsage 单条 UPDATE 原子递增计数，并发调用不丢失
func (r *PostgresRulesRepository) RecordUsage(ctx context.Context, ruleID string, success bool, at time.Time) error {
	query := `
		UPDATE assignment_rules
		SET usage_count = usage_count + 1,
			success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END,
			last_used_at = $3
		WHERE rule_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, ruleID, success, at)
	if err != nil {
		return domain.WrapError(domain.KindPersistence, err, "failed to record usage of rule %s", ruleID)
	}
	return expectOneRow(res, "assignment rule", ruleID)
}

func marshalRuleJSON(rule *domain.AssignmentRule) (string, string, error) {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode rule conditions: %w", err)
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode rule actions: %w", err)
	}
	return string(conditions), string(actions), nil
}

func expectOneRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return domain.NotFound(entity, id)
	}
	return nil
}
