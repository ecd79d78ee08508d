package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AnTengye/contractledger/model"
	"github.com/AnTengye/contractledger/repository"
)

// ContractService keeps a contract and its services consistent. Multi-step
// writes undo their completed steps when a later step fails.
type ContractService struct {
	contracts   repository.ContractRepository
	services    repository.ServiceRepository
	companyApps repository.CompanyAppRepository
	locker      PairLocker
	logger      *slog.Logger
	now         func() time.Time
}

func NewContractService(
	contracts repository.ContractRepository,
	services repository.ServiceRepository,
	companyApps repository.CompanyAppRepository,
	locker PairLocker,
	logger *slog.Logger,
) *ContractService {
	if locker == nil {
		locker = NopLocker{}
	}
	return &ContractService{
		contracts:   contracts,
		services:    services,
		companyApps: companyApps,
		locker:      locker,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a contract and its services. The app must already be
// selected by the company and the pair must not have a contract yet.
func (s *ContractService) Create(ctx context.Context, in model.NewContract) (c *model.Contract, err error) {
	ctx, span := tracer.Start(ctx, "contracts.create")
	defer func() { endSpan(span, err) }()

	if in.CompanyID == "" {
		return nil, &model.ValidationError{Field: "company_id", Reason: "required"}
	}
	if in.AppID == "" {
		return nil, &model.ValidationError{Field: "app_id", Reason: "required"}
	}
	span.SetAttributes(attribute.String("company_id", in.CompanyID), attribute.String("app_id", in.AppID))

	unlock, err := s.locker.Lock(ctx, in.CompanyID, in.AppID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	selected, err := s.companyApps.Exists(ctx, in.CompanyID, in.AppID)
	if err != nil {
		return nil, fmt.Errorf("check company app: %w", err)
	}
	if !selected {
		return nil, &model.ValidationError{Field: "app_id", Reason: "app is not selected for this company"}
	}

	if _, err := s.contracts.FindByPair(ctx, in.CompanyID, in.AppID); err == nil {
		return nil, &model.ConflictError{CompanyID: in.CompanyID, AppID: in.AppID}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find contract: %w", err)
	}

	draft := in.Contract
	s.reconcile(ctx, &draft, in.Services)

	now := s.now()
	c = &model.Contract{
		ID:                uuid.NewString(),
		CompanyID:         in.CompanyID,
		AppID:             in.AppID,
		RenewalDate:       draft.RenewalDate,
		ReviewDate:        draft.ReviewDate,
		OverallTotalValue: draft.OverallTotalValue,
		Notes:             draft.Notes,
		ContactDetails:    draft.ContactDetails,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.contracts.Insert(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &model.ConflictError{CompanyID: in.CompanyID, AppID: in.AppID}
		}
		return nil, &model.PersistenceError{Op: "insert contract", Err: err}
	}

	services := buildServices(c.ID, in.Services, now)
	if err := s.services.InsertMany(ctx, services); err != nil {
		s.logger.Error("service insert failed, removing contract", "contract_id", c.ID, "error", err)
		if _, delErr := s.contracts.Delete(context.WithoutCancel(ctx), c.ID); delErr != nil {
			s.logger.Error("failed to remove contract after service insert failure", "contract_id", c.ID, "error", delErr)
			err = errors.Join(err, fmt.Errorf("compensation: %w", delErr))
		}
		return nil, &model.PersistenceError{Op: "insert services", Err: err}
	}

	c.Services = services
	s.logger.Info("contract created", "contract_id", c.ID, "company_id", c.CompanyID, "app_id", c.AppID, "services", len(services))
	return c, nil
}

// Update applies a partial update. A non-nil Services replaces the whole
// service set. An update without fields leaves the contract untouched,
// including its updated_at.
func (s *ContractService) Update(ctx context.Context, id, companyID string, upd model.ContractUpdate) (c *model.Contract, err error) {
	ctx, span := tracer.Start(ctx, "contracts.update")
	defer func() { endSpan(span, err) }()

	existing, err := s.lookup(ctx, id, companyID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, existing.CompanyID, existing.AppID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	patch := model.ContractPatch{
		RenewalDate:       upd.RenewalDate,
		ReviewDate:        upd.ReviewDate,
		OverallTotalValue: upd.OverallTotalValue,
		Notes:             upd.Notes,
		ContactDetails:    upd.ContactDetails,
		DocumentPath:      upd.DocumentPath,
		DocumentURL:       upd.DocumentURL,
	}

	if patch.IsEmpty() && upd.Services == nil {
		return s.assemble(ctx, existing)
	}

	now := s.now()
	var oldServices []*model.Service
	if upd.Services != nil {
		draft := model.ContractDraft{OverallTotalValue: patch.OverallTotalValue}
		if draft.OverallTotalValue == nil {
			draft.OverallTotalValue = existing.OverallTotalValue
		}
		s.reconcile(ctx, &draft, *upd.Services)
		if len(*upd.Services) > 0 {
			patch.OverallTotalValue = draft.OverallTotalValue
		}

		oldServices, err = s.replaceServices(ctx, id, buildServices(id, *upd.Services, now))
		if err != nil {
			return nil, err
		}
	} else if patch.OverallTotalValue != nil {
		// The stored services still define the total.
		current, err := s.services.ListByContract(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list services: %w", err)
		}
		draft := model.ContractDraft{OverallTotalValue: patch.OverallTotalValue}
		if adj, ok := ReconcileAggregate(&draft, serviceDraftsOf(current)); ok {
			LogAdjustments(ctx, s.logger, []model.Adjustment{adj})
		}
		patch.OverallTotalValue = draft.OverallTotalValue
	}

	patch.UpdatedAt = &now
	if err := s.contracts.Update(ctx, id, patch); err != nil {
		if upd.Services != nil {
			if _, restoreErr := s.replaceServices(context.WithoutCancel(ctx), id, oldServices); restoreErr != nil {
				err = errors.Join(err, fmt.Errorf("compensation: %w", restoreErr))
			}
		}
		return nil, &model.PersistenceError{Op: "update contract", Err: err}
	}

	s.logger.Info("contract updated", "contract_id", id, "company_id", companyID, "services_replaced", upd.Services != nil)
	return s.Get(ctx, id, companyID)
}

// replaceServices swaps the services of a contract and returns the previous
// set. When the new set cannot be inserted the previous set is put back.
func (s *ContractService) replaceServices(ctx context.Context, contractID string, next []*model.Service) ([]*model.Service, error) {
	old, err := s.services.ListByContract(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	if _, err := s.services.DeleteByContract(ctx, contractID); err != nil {
		return nil, &model.PersistenceError{Op: "delete services", Err: err}
	}
	if err := s.services.InsertMany(ctx, next); err != nil {
		s.logger.Error("service replacement failed, restoring previous services", "contract_id", contractID, "error", err)
		if restoreErr := s.services.InsertMany(context.WithoutCancel(ctx), old); restoreErr != nil {
			s.logger.Error("failed to restore services", "contract_id", contractID, "error", restoreErr)
			err = errors.Join(err, fmt.Errorf("compensation: %w", restoreErr))
		}
		return nil, &model.PersistenceError{Op: "replace services", Err: err}
	}
	return old, nil
}

// Delete removes a contract and its services. It reports false when the
// contract does not exist for the company.
func (s *ContractService) Delete(ctx context.Context, id, companyID string) (deleted bool, err error) {
	ctx, span := tracer.Start(ctx, "contracts.delete")
	defer func() { endSpan(span, err) }()

	existing, err := s.lookup(ctx, id, companyID)
	if err != nil {
		var nf *model.NotFoundError
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}

	unlock, err := s.locker.Lock(ctx, existing.CompanyID, existing.AppID)
	if err != nil {
		return false, err
	}
	defer unlock()

	return s.deleteContract(ctx, existing.ID)
}

func (s *ContractService) deleteContract(ctx context.Context, id string) (bool, error) {
	if _, err := s.services.DeleteByContract(ctx, id); err != nil {
		return false, &model.PersistenceError{Op: "delete services", Err: err}
	}
	deleted, err := s.contracts.Delete(ctx, id)
	if err != nil {
		return false, &model.PersistenceError{Op: "delete contract", Err: err}
	}
	if deleted {
		s.logger.Info("contract deleted", "contract_id", id)
	}
	return deleted, nil
}

// Get returns the contract with its services.
func (s *ContractService) Get(ctx context.Context, id, companyID string) (*model.Contract, error) {
	c, err := s.lookup(ctx, id, companyID)
	if err != nil {
		return nil, err
	}
	return s.assemble(ctx, c)
}

// ListByCompany returns every contract of the company with its services.
func (s *ContractService) ListByCompany(ctx context.Context, companyID string) ([]*model.Contract, error) {
	list, err := s.contracts.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	out := make([]*model.Contract, 0, len(list))
	for _, c := range list {
		full, err := s.assemble(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, full)
	}
	return out, nil
}

// UpsertAssociation selects an app for a company. Selecting twice is a no-op.
func (s *ContractService) UpsertAssociation(ctx context.Context, companyID, appID string) error {
	if companyID == "" {
		return &model.ValidationError{Field: "company_id", Reason: "required"}
	}
	if appID == "" {
		return &model.ValidationError{Field: "app_id", Reason: "required"}
	}
	if err := s.companyApps.Insert(ctx, companyID, appID, s.now()); err != nil {
		return fmt.Errorf("insert company app: %w", err)
	}
	return nil
}

// RemoveAssociation deletes the pair's contract, if any, and then the
// association. It returns the removed contract so its document can be cleaned up.
func (s *ContractService) RemoveAssociation(ctx context.Context, companyID, appID string) (*model.Contract, error) {
	unlock, err := s.locker.Lock(ctx, companyID, appID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var removed *model.Contract
	c, err := s.contracts.FindByPair(ctx, companyID, appID)
	switch {
	case err == nil:
		if _, err := s.deleteContract(ctx, c.ID); err != nil {
			return nil, err
		}
		removed = c
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("find contract: %w", err)
	}

	ok, err := s.companyApps.Delete(ctx, companyID, appID)
	if err != nil {
		return removed, fmt.Errorf("delete company app: %w", err)
	}
	if !ok && removed == nil {
		return nil, &model.NotFoundError{Resource: "company app", ID: companyID + "/" + appID}
	}
	return removed, nil
}

// lookup loads a contract and hides contracts of other companies.
func (s *ContractService) lookup(ctx context.Context, id, companyID string) (*model.Contract, error) {
	c, err := s.contracts.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && c.CompanyID != companyID) {
		return nil, &model.NotFoundError{Resource: "contract", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get contract: %w", err)
	}
	return c, nil
}

func (s *ContractService) assemble(ctx context.Context, c *model.Contract) (*model.Contract, error) {
	services, err := s.services.ListByContract(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	c.Services = services
	return c, nil
}

// reconcile recomputes service and aggregate totals and audit-logs every change.
func (s *ContractService) reconcile(ctx context.Context, draft *model.ContractDraft, services []model.ServiceDraft) {
	for i := range services {
		if adj, ok := ReconcileService(&services[i]); ok {
			adj.Field = fmt.Sprintf("services[%d].%s", i, adj.Field)
			LogAdjustments(ctx, s.logger, []model.Adjustment{adj})
		}
	}
	if adj, ok := ReconcileAggregate(draft, services); ok {
		LogAdjustments(ctx, s.logger, []model.Adjustment{adj})
	}
}

// LogAdjustments writes one audit record per recomputed amount.
func LogAdjustments(ctx context.Context, logger *slog.Logger, adjustments []model.Adjustment) {
	for _, a := range adjustments {
		logger.WarnContext(ctx, "amount recomputed", "audit", true, "field", a.Field, "stated", a.Stated, "computed", a.Computed)
	}
}

func serviceDraftsOf(services []*model.Service) []model.ServiceDraft {
	out := make([]model.ServiceDraft, 0, len(services))
	for _, s := range services {
		out = append(out, model.ServiceDraft{
			Name:         s.Name,
			LicenseType:  s.LicenseType,
			PricingModel: s.PricingModel,
			UnitCost:     s.UnitCost,
			UnitCount:    s.UnitCount,
			TotalCost:    s.TotalCost,
		})
	}
	return out
}

func buildServices(contractID string, drafts []model.ServiceDraft, now time.Time) []*model.Service {
	out := make([]*model.Service, 0, len(drafts))
	for i, d := range drafts {
		out = append(out, &model.Service{
			ID:           uuid.NewString(),
			ContractID:   contractID,
			Name:         d.Name,
			LicenseType:  d.LicenseType,
			PricingModel: d.PricingModel,
			UnitCost:     d.UnitCost,
			UnitCount:    d.UnitCount,
			TotalCost:    d.TotalCost,
			// keep insertion order stable for listing
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}
	return out
}
