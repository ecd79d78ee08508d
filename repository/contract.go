package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AnTengye/contractledger/model"
)

type ContractRepository interface {
	Insert(ctx context.Context, c *model.Contract) error
	Get(ctx context.Context, id string) (*model.Contract, error)
	FindByPair(ctx context.Context, companyID, appID string) (*model.Contract, error)
	ListByCompany(ctx context.Context, companyID string) ([]*model.Contract, error)
	Update(ctx context.Context, id string, patch model.ContractPatch) error
	Delete(ctx context.Context, id string) (bool, error)
}

type contractRepo struct {
	db     DBTX
	logger *slog.Logger
}

func NewContractRepository(db DBTX, logger *slog.Logger) ContractRepository {
	return &contractRepo{
		db:     db,
		logger: logger,
	}
}

const contractColumns = `id, company_id, app_id, renewal_date, review_date, overall_total_value,
notes, contact_details, contract_file_path, contract_file_url, created_at, updated_at`

func scanContract(row rowScanner) (*model.Contract, error) {
	var (
		c       model.Contract
		renewal sql.NullTime
		review  sql.NullTime
		total   sql.NullFloat64
	)
	err := row.Scan(&c.ID, &c.CompanyID, &c.AppID, &renewal, &review, &total,
		&c.Notes, &c.ContactDetails, &c.DocumentPath, &c.DocumentURL, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.RenewalDate = timePtr(renewal)
	c.ReviewDate = timePtr(review)
	c.OverallTotalValue = floatPtr(total)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (r *contractRepo) Insert(ctx context.Context, c *model.Contract) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO contracts(`+contractColumns+`)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`, c.ID, c.CompanyID, c.AppID, nullTime(c.RenewalDate), nullTime(c.ReviewDate), nullFloat(c.OverallTotalValue),
		c.Notes, c.ContactDetails, c.DocumentPath, c.DocumentURL, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("failed to insert contract", "contract_id", c.ID, "company_id", c.CompanyID, "app_id", c.AppID, "error", err)
		return err
	}
	return nil
}

func (r *contractRepo) Get(ctx context.Context, id string) (*model.Contract, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id=$1`, id)
	c, err := scanContract(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return c, nil
}

func (r *contractRepo) FindByPair(ctx context.Context, companyID, appID string) (*model.Contract, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+contractColumns+`
FROM contracts
WHERE company_id=$1 AND app_id=$2
`, companyID, appID)
	c, err := scanContract(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return c, nil
}

func (r *contractRepo) ListByCompany(ctx context.Context, companyID string) ([]*model.Contract, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+contractColumns+`
FROM contracts
WHERE company_id=$1
ORDER BY created_at, id
`, companyID)
	if err != nil {
		r.logger.Error("failed to list contracts", "company_id", companyID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*model.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update writes the non-nil columns of patch. A patch without columns is a no-op.
func (r *contractRepo) Update(ctx context.Context, id string, patch model.ContractPatch) error {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}

	if patch.RenewalDate != nil {
		set("renewal_date", patch.RenewalDate.UTC())
	}
	if patch.ReviewDate != nil {
		set("review_date", patch.ReviewDate.UTC())
	}
	if patch.OverallTotalValue != nil {
		set("overall_total_value", *patch.OverallTotalValue)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	if patch.ContactDetails != nil {
		set("contact_details", *patch.ContactDetails)
	}
	if patch.DocumentPath != nil {
		set("contract_file_path", *patch.DocumentPath)
	}
	if patch.DocumentURL != nil {
		set("contract_file_url", *patch.DocumentURL)
	}
	if patch.UpdatedAt != nil {
		set("updated_at", patch.UpdatedAt.UTC())
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE contracts SET %s WHERE id=$%d`, strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to update contract", "contract_id", id, "error", err)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *contractRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contracts WHERE id=$1`, id)
	if err != nil {
		r.logger.Error("failed to delete contract", "contract_id", id, "error", err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
