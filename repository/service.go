package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AnTengye/contractledger/model"
)

// ServiceRepository stores contract line items.
type ServiceRepository interface {
	// InsertMany writes every service in a single statement, so either all
	// rows are stored or none are.
	InsertMany(ctx context.Context, services []*model.Service) error
	ListByContract(ctx context.Context, contractID string) ([]*model.Service, error)
	DeleteByContract(ctx context.Context, contractID string) (int64, error)
}

type serviceRepo struct {
	db     DBTX
	logger *slog.Logger
}

func NewServiceRepository(db DBTX, logger *slog.Logger) ServiceRepository {
	return &serviceRepo{
		db:     db,
		logger: logger,
	}
}

const serviceColumns = `id, contract_id, name, license_type, pricing_model, cost_per_user, number_of_licenses, total_cost, created_at`

func (r *serviceRepo) InsertMany(ctx context.Context, services []*model.Service) error {
	if len(services) == 0 {
		return nil
	}

	const width = 9
	values := make([]string, 0, len(services))
	args := make([]any, 0, len(services)*width)
	for i, s := range services {
		ph := make([]string, width)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", i*width+j+1)
		}
		values = append(values, "("+strings.Join(ph, ",")+")")
		args = append(args, s.ID, s.ContractID, s.Name, string(s.LicenseType), string(s.PricingModel),
			nullFloat(s.UnitCost), nullInt(s.UnitCount), nullFloat(s.TotalCost), s.CreatedAt.UTC())
	}

	query := `INSERT INTO services(` + serviceColumns + `) VALUES ` + strings.Join(values, ",")
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to insert services", "contract_id", services[0].ContractID, "count", len(services), "error", err)
		return err
	}
	return nil
}

func (r *serviceRepo) ListByContract(ctx context.Context, contractID string) ([]*model.Service, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+serviceColumns+`
FROM services
WHERE contract_id=$1
ORDER BY created_at, id
`, contractID)
	if err != nil {
		r.logger.Error("failed to list services", "contract_id", contractID, "error", err)
		return nil, err
	}
	defer rows.Close()

	out := []*model.Service{}
	for rows.Next() {
		var (
			s         model.Service
			license   string
			pricing   string
			unitCost  sql.NullFloat64
			unitCount sql.NullInt64
			totalCost sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &s.ContractID, &s.Name, &license, &pricing,
			&unitCost, &unitCount, &totalCost, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.LicenseType = model.LicenseType(license)
		s.PricingModel = model.PricingModel(pricing)
		s.UnitCost = floatPtr(unitCost)
		s.UnitCount = intPtr(unitCount)
		s.TotalCost = floatPtr(totalCost)
		s.CreatedAt = s.CreatedAt.UTC()
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *serviceRepo) DeleteByContract(ctx context.Context, contractID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM services WHERE contract_id=$1`, contractID)
	if err != nil {
		r.logger.Error("failed to delete services", "contract_id", contractID, "error", err)
		return 0, err
	}
	return res.RowsAffected()
}
