package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/AnTengye/contractledger/model"
)

// AppRepository is the application catalogue.
type AppRepository interface {
	Get(ctx context.Context, id string) (*model.App, error)
	FindByName(ctx context.Context, name string) (*model.App, error)
	Insert(ctx context.Context, app *model.App) error
	List(ctx context.Context, category string) ([]*model.App, error)
}

type appRepo struct {
	db     DBTX
	logger *slog.Logger
}

func NewAppRepository(db DBTX, logger *slog.Logger) AppRepository {
	return &appRepo{
		db:     db,
		logger: logger,
	}
}

const appColumns = `id, name, category, is_predefined, api_supported, created_at`

func scanApp(row rowScanner) (*model.App, error) {
	var a model.App
	if err := row.Scan(&a.ID, &a.Name, &a.Category, &a.IsPredefined, &a.APISupported, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func scanApps(rows *sql.Rows) ([]*model.App, error) {
	out := []*model.App{}
	for rows.Next() {
		a, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *appRepo) Get(ctx context.Context, id string) (*model.App, error) {
	a, err := scanApp(r.db.QueryRowContext(ctx, `SELECT `+appColumns+` FROM apps WHERE id=$1`, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return a, nil
}

// FindByName matches names case-insensitively.
func (r *appRepo) FindByName(ctx context.Context, name string) (*model.App, error) {
	a, err := scanApp(r.db.QueryRowContext(ctx, `
SELECT `+appColumns+`
FROM apps
WHERE lower(name)=lower($1)
ORDER BY created_at
LIMIT 1
`, name))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return a, nil
}

func (r *appRepo) Insert(ctx context.Context, app *model.App) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO apps(`+appColumns+`)
VALUES($1,$2,$3,$4,$5,$6)
`, app.ID, app.Name, app.Category, app.IsPredefined, app.APISupported, app.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("failed to insert app", "name", app.Name, "error", err)
		return err
	}
	return nil
}

// List returns every app, or only those of category when it is not empty.
func (r *appRepo) List(ctx context.Context, category string) ([]*model.App, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if category == "" {
		rows, err = r.db.QueryContext(ctx, `SELECT `+appColumns+` FROM apps ORDER BY name`)
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT `+appColumns+` FROM apps WHERE category=$1 ORDER BY name`, category)
	}
	if err != nil {
		r.logger.Error("failed to list apps", "category", category, "error", err)
		return nil, err
	}
	defer rows.Close()
	return scanApps(rows)
}
