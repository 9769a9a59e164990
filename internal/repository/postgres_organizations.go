package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"drmp-assignment/internal/domain"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresOrganizationsRepository 处置机构只读仓库（organizations 表由机构管理服务维护）
type PostgresOrganizationsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresOrganizationsRepository 创建机构仓库
func NewPostgresOrganizationsRepository(db *sql.DB, logger *zap.Logger) *PostgresOrganizationsRepository {
	return &PostgresOrganizationsRepository{db: db, logger: logger}
}

var _ OrganizationsRepository = (*PostgresOrganizationsRepository)(nil)

const organizationColumns = `
	org_id,
	org_name,
	COALESCE(org_type, '') AS org_type,
	status,
	COALESCE(service_regions, '{}') AS service_regions,
	COALESCE(case_types, '{}') AS case_types,
	COALESCE(disposal_methods, '{}') AS disposal_methods,
	COALESCE(monthly_case_capacity, 0) AS monthly_case_capacity,
	current_load_percentage,
	membership_paid,
	COALESCE(completed_packages, 0) AS completed_packages,
	COALESCE(avg_recovery_rate, 0) AS avg_recovery_rate,
	COALESCE(avg_disposal_days, 0) AS avg_disposal_days,
	COALESCE(contact_person, '') AS contact_person,
	COALESCE(contact_phone, '') AS contact_phone,
	COALESCE(contact_email, '') AS contact_email`

func scanOrganization(s rowScanner) (domain.Organization, error) {
	var o domain.Organization
	var status string
	var load sql.NullFloat64

	err := s.Scan(
		&o.OrgID,
		&o.OrgName,
		&o.OrgType,
		&status,
		pq.Array(&o.ServiceRegions),
		pq.Array(&o.CaseTypes),
		pq.Array(&o.DisposalMethods),
		&o.MonthlyCaseCapacity,
		&load,
		&o.MembershipPaid,
		&o.Performance.CompletedPackages,
		&o.Performance.AvgRecoveryRate,
		&o.Performance.AvgDisposalDays,
		&o.ContactPerson,
		&o.ContactPhone,
		&o.ContactEmail,
	)
	if err != nil {
		return domain.Organization{}, err
	}
	o.Status = domain.OrgStatus(status)
	o.CurrentLoadPercentage = nullFloatPtr(load)
	return o, nil
}

// ListOrganizations 全量机构快照（按 org_id 排序）
func (r *PostgresOrganizationsRepository) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	query := `SELECT` + organizationColumns + `
		FROM organizations
		ORDER BY org_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	out := []domain.Organization{}
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organizations: %w", err)
	}
	return out, nil
}

// GetOrganization 根据 org_id 获取机构
func (r *PostgresOrganizationsRepository) GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error) {
	if orgID == "" {
		return nil, domain.Validation("org_id is required")
	}

	query := `SELECT` + organizationColumns + `
		FROM organizations
		WHERE org_id = $1`

	o, err := scanOrganization(r.db.QueryRowContext(ctx, query, orgID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("organization", orgID)
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &o, nil
}
