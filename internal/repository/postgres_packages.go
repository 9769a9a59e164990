package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"drmp-assignment/internal/domain"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresPackagesRepository 案件包仓库（case_packages 表）
type PostgresPackagesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresPackagesRepository 创建案件包仓库
func NewPostgresPackagesRepository(db *sql.DB, logger *zap.Logger) *PostgresPackagesRepository {
	return &PostgresPackagesRepository{db: db, logger: logger}
}

// 确保实现了接口
var _ PackagesRepository = (*PostgresPackagesRepository)(nil)

const packageColumns = `
	package_id,
	COALESCE(package_code, '') AS package_code,
	COALESCE(package_name, '') AS package_name,
	status,
	total_amount,
	remaining_amount,
	case_count,
	COALESCE(expected_recovery_rate, 0) AS expected_recovery_rate,
	COALESCE(expected_disposal_days, 0) AS expected_disposal_days,
	COALESCE(preferred_disposal_methods, '{}') AS preferred_disposal_methods,
	COALESCE(region, '') AS region,
	COALESCE(required_regions, '{}') AS required_regions,
	COALESCE(case_type, '') AS case_type,
	source_org_id,
	disposal_org_id,
	published_at,
	assigned_at,
	accepted_at,
	closed_at,
	created_at,
	updated_at,
	version`

func scanPackage(s rowScanner) (*domain.CasePackage, error) {
	var p domain.CasePackage
	var status string
	var disposalOrg sql.NullString
	var publishedAt, assignedAt, acceptedAt, closedAt sql.NullTime

	err := s.Scan(
		&p.PackageID,
		&p.PackageCode,
		&p.PackageName,
		&status,
		&p.TotalAmount,
		&p.RemainingAmount,
		&p.CaseCount,
		&p.ExpectedRecoveryRate,
		&p.ExpectedDisposalDays,
		pq.Array(&p.PreferredDisposalMethods),
		&p.Region,
		pq.Array(&p.RequiredRegions),
		&p.CaseType,
		&p.SourceOrgID,
		&disposalOrg,
		&publishedAt,
		&assignedAt,
		&acceptedAt,
		&closedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Version,
	)
	if err != nil {
		return nil, err
	}

	p.Status = domain.PackageStatus(status)
	if disposalOrg.Valid && disposalOrg.String != "" {
		p.DisposalOrgID = &disposalOrg.String
	}
	p.PublishedAt = nullTimePtr(publishedAt)
	p.AssignedAt = nullTimePtr(assignedAt)
	p.AcceptedAt = nullTimePtr(acceptedAt)
	p.ClosedAt = nullTimePtr(closedAt)
	return &p, nil
}

// GetPackage 根据 package_id 获取案件包
func (r *PostgresPackagesRepository) GetPackage(ctx context.Context, packageID string) (*domain.CasePackage, error) {
	if packageID == "" {
		return nil, domain.Validation("package_id is required")
	}

	query := `SELECT` + packageColumns + `
		FROM case_packages
		WHERE package_id = $1`

	pkg, err := scanPackage(r.db.QueryRowContext(ctx, query, packageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("case package", packageID)
		}
		return nil, fmt.Errorf("failed to get case package: %w", err)
	}
	return pkg, nil
}

// GetPackagesByIDs 单条 SQL 读取多个案件包
func (r *PostgresPackagesRepository) GetPackagesByIDs(ctx context.Context, packageIDs []string) (map[string]*domain.CasePackage, error) {
	out := make(map[string]*domain.CasePackage, len(packageIDs))
	if len(packageIDs) == 0 {
		return out, nil
	}

	query := `SELECT` + packageColumns + `
		FROM case_packages
		WHERE package_id = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(packageIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query case packages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case package: %w", err)
		}
		out[pkg.PackageID] = pkg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate case packages: %w", err)
	}
	return out, nil
}

// ListPackages 按状态 / 案源机构过滤，按创建时间倒序
func (r *PostgresPackagesRepository) ListPackages(ctx context.Context, filter PackageFilter) ([]*domain.CasePackage, error) {
	where := []string{}
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.SourceOrgID != "" {
		where = append(where, fmt.Sprintf("source_org_id = $%d", argIdx))
		args = append(args, filter.SourceOrgID)
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s
		FROM case_packages
		%s
		ORDER BY created_at DESC, package_id
		LIMIT $%d`, packageColumns, whereClause, argIdx)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list case packages: %w", err)
	}
	defer rows.Close()

	out := []*domain.CasePackage{}
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case package: %w", err)
		}
		out = append(out, pkg)
	}
	return out, rows.Err()
}

// CreatePackage 新建案件包（DRAFT）
func (r *PostgresPackagesRepository) CreatePackage(ctx context.Context, pkg *domain.CasePackage) error {
	if err := pkg.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO case_packages (
			package_id, package_code, package_name, status,
			total_amount, remaining_amount, case_count,
			expected_recovery_rate, expected_disposal_days, preferred_disposal_methods,
			region, required_regions, case_type, source_org_id,
			created_at, updated_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15,0)
	`
	_, err := r.db.ExecContext(ctx, query,
		pkg.PackageID,
		pkg.PackageCode,
		pkg.PackageName,
		string(pkg.Status),
		pkg.TotalAmount,
		pkg.RemainingAmount,
		pkg.CaseCount,
		pkg.ExpectedRecoveryRate,
		pkg.ExpectedDisposalDays,
		pq.Array(pkg.PreferredDisposalMethods),
		nullString(pkg.Region),
		pq.Array(pkg.RequiredRegions),
		nullString(pkg.CaseType),
		pkg.SourceOrgID,
		pkg.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.NewError(domain.KindConflict, "case package already exists: %s", pkg.PackageID)
		}
		return fmt.Errorf("failed to create case package: %w", err)
	}
	pkg.Version = 0
	return nil
}

const updatePackageStateSQL = `
	UPDATE case_packages
	SET status = $2,
		disposal_org_id = $3,
		published_at = $4,
		assigned_at = $5,
		accepted_at = $6,
		closed_at = $7,
		updated_at = $8,
		version = version + 1
	WHERE package_id = $1
	  AND version = $9
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updatePackageState(ctx context.Context, ex execer, pkg *domain.CasePackage) error {
	var disposalOrg any
	if pkg.DisposalOrgID != nil {
		disposalOrg = *pkg.DisposalOrgID
	}

	res, err := ex.ExecContext(ctx, updatePackageStateSQL,
		pkg.PackageID,
		string(pkg.Status),
		disposalOrg,
		pkg.PublishedAt,
		pkg.AssignedAt,
		pkg.AcceptedAt,
		pkg.ClosedAt,
		pkg.UpdatedAt,
		pkg.Version,
	)
	if err != nil {
		return domain.WrapError(domain.KindPersistence, err, "failed to update case package %s", pkg.PackageID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.WrapError(domain.KindPersistence, err, "failed to read affected rows for %s", pkg.PackageID)
	}
	if n == 0 {
		return domain.NewError(domain.KindConflict,
			"case package %s was modified concurrently (expected version %d)", pkg.PackageID, pkg.Version)
	}
	return nil
}

// SavePackageState 持久化单个案件包的状态变更
func (r *PostgresPackagesRepository) SavePackageState(ctx context.Context, pkg *domain.CasePackage) error {
	if err := pkg.Validate(); err != nil {
		return err
	}
	if err := updatePackageState(ctx, r.db, pkg); err != nil {
		return err
	}
	pkg.Version++
	return nil
}

// SaveAssignments 在同一事务内写入批量分配结果
func (r *PostgresPackagesRepository) SaveAssignments(ctx context.Context, pkgs []*domain.CasePackage) error {
	if len(pkgs) == 0 {
		return nil
	}
	for _, p := range pkgs {
		if err := p.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.KindPersistence, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, p := range pkgs {
		if err := updatePackageState(ctx, tx, p); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.KindPersistence, err, "failed to commit batch assignment")
	}

	for _, p := range pkgs {
		p.Version++
	}
	r.logger.Debug("Batch assignment persisted", zap.Int("packages", len(pkgs)))
	return nil
}
