package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AnTengye/contractledger/model"
	"github.com/AnTengye/contractledger/pkg/logger"
	"github.com/AnTengye/contractledger/repository"
)

// DocumentExtractor turns a document into a structured extraction payload.
type DocumentExtractor interface {
	Extract(ctx context.Context, document []byte, contentType string) (*model.ExtractedPayload, error)
}

type PipelineDeps struct {
	Extractor   DocumentExtractor
	Parser      *PayloadParser
	Normalizer  Normalizer
	Contracts   *ContractService
	Apps        repository.AppRepository
	Attachments *AttachmentService
	Notifier    Notifier
	Validator   *validator.Validate
	Workers     int
	Logger      *slog.Logger
}

// ContractPipeline is the set of contract operations offered to the HTTP layer.
type ContractPipeline struct {
	extractor   DocumentExtractor
	parser      *PayloadParser
	normalizer  Normalizer
	contracts   *ContractService
	apps        repository.AppRepository
	attachments *AttachmentService
	notifier    Notifier
	validate    *validator.Validate
	workers     int
	logger      *slog.Logger
	now         func() time.Time
}

func NewContractPipeline(deps PipelineDeps) *ContractPipeline {
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Validator == nil {
		deps.Validator = NewValidator()
	}
	if deps.Workers <= 0 {
		deps.Workers = 4
	}
	return &ContractPipeline{
		extractor:   deps.Extractor,
		parser:      deps.Parser,
		normalizer:  deps.Normalizer,
		contracts:   deps.Contracts,
		apps:        deps.Apps,
		attachments: deps.Attachments,
		notifier:    deps.Notifier,
		validate:    deps.Validator,
		workers:     deps.Workers,
		logger:      deps.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ProcessDocument extracts a contract from an uploaded PDF, stores it for the
// company and attaches the document. If the document cannot be stored the
// new contract is removed again.
func (p *ContractPipeline) ProcessDocument(ctx context.Context, companyID string, u model.Upload) (c *model.Contract, err error) {
	ctx, span := tracer.Start(ctx, "pipeline.process_document")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("company_id", companyID), attribute.String("filename", u.Filename))

	if companyID == "" {
		return nil, &model.ValidationError{Field: "company_id", Reason: "required"}
	}
	if !IsPDF(u) {
		return nil, &model.ValidationError{Field: "file", Reason: "only PDF files are allowed"}
	}
	log := logger.Enrich(ctx, p.logger)

	payload, err := p.extractor.Extract(ctx, u.Data, pdfContentType)
	if err != nil {
		return nil, err
	}
	log = log.With("job_id", payload.JobID)

	data, err := p.normalize(ctx, payload.Data)
	if err != nil {
		log.Warn("extracted payload rejected", "error", err)
		return nil, err
	}
	LogAdjustments(ctx, log, data.Adjustments)

	app, err := p.findOrCreateApp(ctx, data.Contract.AppName, data.Contract.Category)
	if err != nil {
		return nil, err
	}
	if err := p.contracts.UpsertAssociation(ctx, companyID, app.ID); err != nil {
		return nil, err
	}

	draft := data.Contract
	if draft.ContractURL != "" {
		draft.Notes = joinLines(draft.Notes, "Contract URL: "+draft.ContractURL)
	}
	c, err = p.contracts.Create(ctx, model.NewContract{
		CompanyID: companyID,
		AppID:     app.ID,
		Contract:  draft,
		Services:  data.Services,
	})
	if err != nil {
		return nil, err
	}

	c, err = p.attach(ctx, c, u)
	if err != nil {
		if _, delErr := p.contracts.Delete(context.WithoutCancel(ctx), c.ID, companyID); delErr != nil {
			log.Error("failed to remove contract after attachment failure", "contract_id", c.ID, "error", delErr)
			err = errors.Join(err, delErr)
		}
		return nil, err
	}

	log.Info("contract processed", "contract_id", c.ID, "app", app.Name, "services", len(c.Services))
	p.notify(ctx, EventContractProcessed, c)
	return c, nil
}

// BatchResult is the outcome of one document in a batch upload.
type BatchResult struct {
	Filename string
	Contract *model.Contract
	Err      error
}

// ProcessDocuments runs ProcessDocument for every upload with bounded
// concurrency. A failing document does not stop the others; results keep the
// order of uploads.
func (p *ContractPipeline) ProcessDocuments(ctx context.Context, companyID string, uploads []model.Upload) []BatchResult {
	results := make([]BatchResult, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, u := range uploads {
		g.Go(func() error {
			c, err := p.ProcessDocument(gctx, companyID, u)
			results[i] = BatchResult{Filename: u.Filename, Contract: c, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *ContractPipeline) normalize(ctx context.Context, data []byte) (*model.ExtractedContractData, error) {
	_, span := tracer.Start(ctx, "pipeline.normalize")
	defer span.End()

	raw, err := p.parser.Parse(data)
	if err != nil {
		return nil, err
	}
	return p.normalizer.Normalize(raw)
}

// attach stores the document and records its location on the contract.
// On failure c is returned unchanged together with the error.
func (p *ContractPipeline) attach(ctx context.Context, c *model.Contract, u model.Upload) (*model.Contract, error) {
	objectPath, url, err := p.attachments.Store(ctx, c.CompanyID, c.ID, u)
	if err != nil {
		return c, err
	}
	updated, err := p.contracts.Update(ctx, c.ID, c.CompanyID, model.ContractUpdate{
		DocumentPath: &objectPath,
		DocumentURL:  &url,
	})
	if err != nil {
		if _, delErr := p.attachments.Delete(context.WithoutCancel(ctx), objectPath); delErr != nil {
			p.logger.Warn("failed to remove orphaned document", "path", objectPath, "error", delErr)
		}
		return c, err
	}
	return updated, nil
}

// AttachFile stores u as the contract's document, replacing any previous one.
func (p *ContractPipeline) AttachFile(ctx context.Context, contractID, companyID string, u model.Upload) (*model.Contract, error) {
	existing, err := p.contracts.Get(ctx, contractID, companyID)
	if err != nil {
		return nil, err
	}
	oldPath := existing.DocumentPath

	updated, err := p.attach(ctx, existing, u)
	if err != nil {
		return nil, err
	}
	if oldPath != "" && oldPath != updated.DocumentPath {
		if _, err := p.attachments.Delete(ctx, oldPath); err != nil {
			p.logger.Warn("failed to remove previous document", "contract_id", contractID, "path", oldPath, "error", err)
		}
	}
	p.notify(ctx, EventContractUpdated, updated)
	return updated, nil
}

// CreateContract stores a contract entered by hand.
func (p *ContractPipeline) CreateContract(ctx context.Context, in model.CreateContractInput) (*model.Contract, error) {
	if err := validateInput(p.validate, in); err != nil {
		return nil, err
	}

	var (
		draft model.ContractDraft
		err   error
	)
	if draft.RenewalDate, err = ParseDate("renewal_date", in.RenewalDate); err != nil {
		return nil, err
	}
	if draft.ReviewDate, err = ParseDate("review_date", in.ReviewDate); err != nil {
		return nil, err
	}
	if draft.ReviewDate == nil && draft.RenewalDate != nil {
		review := subtractMonths(*draft.RenewalDate, 2)
		draft.ReviewDate = &review
	}
	draft.OverallTotalValue = in.OverallTotalValue
	draft.Notes = in.Notes
	draft.ContactDetails = in.ContactDetails

	services, err := serviceDrafts(in.Services)
	if err != nil {
		return nil, err
	}

	c, err := p.contracts.Create(ctx, model.NewContract{
		CompanyID: in.CompanyID,
		AppID:     in.AppID,
		Contract:  draft,
		Services:  services,
	})
	if err != nil {
		return nil, err
	}
	p.notify(ctx, EventContractCreated, c)
	return c, nil
}

// UpdateContract applies a partial update entered by hand.
func (p *ContractPipeline) UpdateContract(ctx context.Context, id, companyID string, in model.UpdateContractInput) (*model.Contract, error) {
	if err := validateInput(p.validate, in); err != nil {
		return nil, err
	}

	upd := model.ContractUpdate{
		OverallTotalValue: in.OverallTotalValue,
		Notes:             in.Notes,
		ContactDetails:    in.ContactDetails,
	}
	var err error
	if in.RenewalDate != nil {
		if upd.RenewalDate, err = ParseDate("renewal_date", *in.RenewalDate); err != nil {
			return nil, err
		}
	}
	if in.ReviewDate != nil {
		if upd.ReviewDate, err = ParseDate("review_date", *in.ReviewDate); err != nil {
			return nil, err
		}
	}
	if in.Services != nil {
		services, err := serviceDrafts(*in.Services)
		if err != nil {
			return nil, err
		}
		upd.Services = &services
	}

	c, err := p.contracts.Update(ctx, id, companyID, upd)
	if err != nil {
		return nil, err
	}
	p.notify(ctx, EventContractUpdated, c)
	return c, nil
}

// DeleteContract removes a contract, its services and its stored document.
func (p *ContractPipeline) DeleteContract(ctx context.Context, id, companyID string) (bool, error) {
	existing, err := p.contracts.Get(ctx, id, companyID)
	if err != nil {
		var nf *model.NotFoundError
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}

	deleted, err := p.contracts.Delete(ctx, id, companyID)
	if err != nil || !deleted {
		return deleted, err
	}
	p.removeDocument(ctx, existing)
	p.notify(ctx, EventContractDeleted, existing)
	return true, nil
}

func (p *ContractPipeline) removeDocument(ctx context.Context, c *model.Contract) {
	if c.DocumentPath == "" {
		return
	}
	if _, err := p.attachments.Delete(ctx, c.DocumentPath); err != nil {
		p.logger.Warn("failed to remove contract document", "contract_id", c.ID, "path", c.DocumentPath, "error", err)
	}
}

func (p *ContractPipeline) GetContract(ctx context.Context, id, companyID string) (*model.Contract, error) {
	return p.contracts.Get(ctx, id, companyID)
}

func (p *ContractPipeline) ListContracts(ctx context.Context, companyID string) ([]*model.Contract, error) {
	if companyID == "" {
		return nil, &model.ValidationError{Field: "company_id", Reason: "required"}
	}
	return p.contracts.ListByCompany(ctx, companyID)
}

// DownloadFile returns the stored document of a contract and its file name.
func (p *ContractPipeline) DownloadFile(ctx context.Context, id, companyID string) (string, []byte, error) {
	c, err := p.contracts.Get(ctx, id, companyID)
	if err != nil {
		return "", nil, err
	}
	if c.DocumentPath == "" {
		return "", nil, &model.NotFoundError{Resource: "document", ID: id}
	}
	data, err := p.attachments.Retrieve(ctx, c.DocumentPath)
	if err != nil {
		return "", nil, err
	}
	return path.Base(c.DocumentPath), data, nil
}

// SelectApp adds an app from the catalogue to the company's apps.
func (p *ContractPipeline) SelectApp(ctx context.Context, in model.SelectAppInput) error {
	if err := validateInput(p.validate, in); err != nil {
		return err
	}
	if _, err := p.apps.Get(ctx, in.AppID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &model.NotFoundError{Resource: "app", ID: in.AppID}
		}
		return fmt.Errorf("get app: %w", err)
	}
	return p.contracts.UpsertAssociation(ctx, in.CompanyID, in.AppID)
}

// UnselectApp removes an app from the company together with its contract.
func (p *ContractPipeline) UnselectApp(ctx context.Context, companyID, appID string) error {
	removed, err := p.contracts.RemoveAssociation(ctx, companyID, appID)
	if removed != nil {
		p.removeDocument(ctx, removed)
		p.notify(ctx, EventContractDeleted, removed)
	}
	return err
}

// ListApps lists the catalogue, optionally filtered by category.
func (p *ContractPipeline) ListApps(ctx context.Context, category string) ([]*model.App, error) {
	if category != "" && !slices.Contains(model.Categories, category) {
		return nil, &model.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", category)}
	}
	return p.apps.List(ctx, category)
}

func (p *ContractPipeline) ListCompanyApps(ctx context.Context, companyID string) ([]*model.App, error) {
	return p.contracts.companyApps.ListApps(ctx, companyID)
}

// findOrCreateApp looks an app up by name and adds it to the catalogue when missing.
func (p *ContractPipeline) findOrCreateApp(ctx context.Context, name, category string) (*model.App, error) {
	if name == "" {
		return nil, &model.ValidationError{Field: "app_name", Reason: "required"}
	}
	app, err := p.apps.FindByName(ctx, name)
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find app: %w", err)
	}

	if category == "" {
		category = model.CategoryCSV
	}
	app = &model.App{
		ID:        uuid.NewString(),
		Name:      name,
		Category:  category,
		CreatedAt: p.now(),
	}
	if err := p.apps.Insert(ctx, app); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return p.apps.FindByName(ctx, name)
		}
		return nil, fmt.Errorf("create app: %w", err)
	}
	p.logger.Info("app added to catalogue", "app_id", app.ID, "name", app.Name, "category", app.Category)
	return app, nil
}

func (p *ContractPipeline) notify(ctx context.Context, eventType string, c *model.Contract) {
	p.notifier.Notify(ctx, ContractEvent{
		Type:       eventType,
		ContractID: c.ID,
		CompanyID:  c.CompanyID,
		AppID:      c.AppID,
		OccurredAt: p.now(),
	})
}

func serviceDrafts(inputs []model.ServiceInput) ([]model.ServiceDraft, error) {
	out := make([]model.ServiceDraft, 0, len(inputs))
	for i, in := range inputs {
		prefix := fmt.Sprintf("services[%d].", i)
		license, err := ParseLicenseType(prefix+"license_type", in.LicenseType)
		if err != nil {
			return nil, err
		}
		pricing, err := ParsePricingModel(prefix+"pricing_model", in.PricingModel)
		if err != nil {
			return nil, err
		}
		out = append(out, model.ServiceDraft{
			Name:         in.Name,
			LicenseType:  license,
			PricingModel: pricing,
			UnitCost:     in.UnitCost,
			UnitCount:    in.UnitCount,
			TotalCost:    in.TotalCost,
		})
	}
	return out, nil
}

func joinLines(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}
