package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/AnTengye/contractledger/model"
)

// CompanyAppRepository stores which apps a company has selected.
type CompanyAppRepository interface {
	Exists(ctx context.Context, companyID, appID string) (bool, error)
	// Insert is idempotent.
	Insert(ctx context.Context, companyID, appID string, at time.Time) error
	Delete(ctx context.Context, companyID, appID string) (bool, error)
	ListApps(ctx context.Context, companyID string) ([]*model.App, error)
}

type companyAppRepo struct {
	db     DBTX
	logger *slog.Logger
}

func NewCompanyAppRepository(db DBTX, logger *slog.Logger) CompanyAppRepository {
	return &companyAppRepo{
		db:     db,
		logger: logger,
	}
}

func (r *companyAppRepo) Exists(ctx context.Context, companyID, appID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM company_apps WHERE company_id=$1 AND app_id=$2
`, companyID, appID).Scan(&n)
	if err != nil {
		r.logger.Error("failed to check company app", "company_id", companyID, "app_id", appID, "error", err)
		return false, err
	}
	return n > 0, nil
}

func (r *companyAppRepo) Insert(ctx context.Context, companyID, appID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO company_apps(company_id,app_id,created_at)
VALUES($1,$2,$3)
ON CONFLICT (company_id,app_id) DO NOTHING
`, companyID, appID, at.UTC())
	if err != nil {
		r.logger.Error("failed to insert company app", "company_id", companyID, "app_id", appID, "error", err)
	}
	return err
}

func (r *companyAppRepo) Delete(ctx context.Context, companyID, appID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM company_apps WHERE company_id=$1 AND app_id=$2`, companyID, appID)
	if err != nil {
		r.logger.Error("failed to delete company app", "company_id", companyID, "app_id", appID, "error", err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *companyAppRepo) ListApps(ctx context.Context, companyID string) ([]*model.App, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT a.id, a.name, a.category, a.is_predefined, a.api_supported, a.created_at
FROM company_apps ca
JOIN apps a ON a.id = ca.app_id
WHERE ca.company_id=$1
ORDER BY a.name
`, companyID)
	if err != nil {
		r.logger.Error("failed to list company apps", "company_id", companyID, "error", err)
		return nil, err
	}
	defer rows.Close()
	return scanApps(rows)
}
