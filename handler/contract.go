package handler

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AnTengye/contractledger/middleware"
	"github.com/AnTengye/contractledger/model"
	"github.com/AnTengye/contractledger/service"
)

// ContractOperations is what the contract routes need from the service layer.
type ContractOperations interface {
	ProcessDocument(ctx context.Context, companyID string, u model.Upload) (*model.Contract, error)
	ProcessDocuments(ctx context.Context, companyID string, uploads []model.Upload) []service.BatchResult
	CreateContract(ctx context.Context, in model.CreateContractInput) (*model.Contract, error)
	UpdateContract(ctx context.Context, id, companyID string, in model.UpdateContractInput) (*model.Contract, error)
	DeleteContract(ctx context.Context, id, companyID string) (bool, error)
	GetContract(ctx context.Context, id, companyID string) (*model.Contract, error)
	ListContracts(ctx context.Context, companyID string) ([]*model.Contract, error)
	AttachFile(ctx context.Context, id, companyID string, u model.Upload) (*model.Contract, error)
	DownloadFile(ctx context.Context, id, companyID string) (string, []byte, error)
}

// ContractExporter renders a company's contracts as a spreadsheet.
type ContractExporter interface {
	ExportXLSX(ctx context.Context, companyID string) ([]byte, error)
}

type ContractHandler struct {
	contracts      ContractOperations
	exporter       ContractExporter
	maxUploadBytes int64
}

func NewContractHandler(contracts ContractOperations, exporter ContractExporter, maxUploadBytes int64) *ContractHandler {
	return &ContractHandler{
		contracts:      contracts,
		exporter:       exporter,
		maxUploadBytes: maxUploadBytes,
	}
}

// Process extracts a contract from one uploaded PDF.
func (h *ContractHandler) Process(c *gin.Context) {
	companyID, ok := requireCompany(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	upload, err := h.readUpload(header)
	if err != nil {
		respondError(c, err)
		return
	}

	contract, err := h.contracts.ProcessDocument(c.Request.Context(), companyID, upload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contract)
}

// ProcessBatch extracts one contract per uploaded file. Files fail
// independently; the response lists the outcome of each.
func (h *ContractHandler) ProcessBatch(c *gin.Context) {
	companyID, ok := requireCompany(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}

	uploads := make([]model.Upload, 0, len(form.File["files"]))
	for _, header := range form.File["files"] {
		u, err := h.readUpload(header)
		if err != nil {
			respondError(c, err)
			return
		}
		uploads = append(uploads, u)
	}

	results := h.contracts.ProcessDocuments(c.Request.Context(), companyID, uploads)

	out := make([]gin.H, 0, len(results))
	failed := 0
	for _, r := range results {
		item := gin.H{"filename": r.Filename}
		if r.Err != nil {
			failed++
			item["error"] = r.Err.Error()
		} else {
			item["contract"] = r.Contract
		}
		out = append(out, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"results":   out,
		"processed": len(results) - failed,
		"failed":    failed,
	})
}

// Create stores a contract entered by hand.
func (h *ContractHandler) Create(c *gin.Context) {
	var input model.CreateContractInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	contract, err := h.contracts.CreateContract(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contract)
}

// Get returns a single contract with its services
func (h *ContractHandler) Get(c *gin.Context) {
	companyID, ok := requireCompany(c)
	if !ok {
		return
	}

	contract, err := h.contracts.GetContract(c.Request.Context(), c.Param("id"), companyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// Update applies a partial update.
func (h *ContractHandler) Update(c *gin.Context) {
	companyID, ok := requireCompany(c)
	if !ok {
		return
	}

	var input model.UpdateContractInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	contract, err := h.contracts.UpdateContract(c.Request.Context(), c.Param("id"), companyID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// Delete deletes a contract
func (h *ContractHandler) Delete(c *gin.Context) {
	companyID, ok := requireCompany(c)
	if !ok {
		return
	}

	deleted, err := h.contracts.DeleteContract(c.Request.Context(), c.Param("id"), companyID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Contract deleted"})
}

// List returns all contracts of the company.
func (h *ContractHandler) List(c *gin.Context) {
	contracts, err := h.contracts.ListContracts(c.Request.Context(), c.Param("company_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": contracts})
}

// Upload attaches a new document to an existing contract.
func (h *ContractHandler) Upload(c *gin.Context) {
	companyID, ok := requireCompany(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	upload, err := h.readUpload(header)
	if err != nil {
		respondError(c, err)
		return
	}

	contract, err := h.contracts.AttachFile(c.Request.Context(), c.Param("id"), companyID, upload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// Download streams the stored document of a contract.
func (h *ContractHandler) Download(c *gin.Context) {
	companyID, ok := requireCompany(c)
	if !ok {
		return
	}

	filename, data, err := h.contracts.DownloadFile(c.Request.Context(), c.Param("id"), companyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}

// Export returns the company's contracts as an xlsx workbook.
func (h *ContractHandler) Export(c *gin.Context) {
	companyID := c.Param("company_id")

	data, err := h.exporter.ExportXLSX(c.Request.Context(), companyID)
	if err != nil {
		respondError(c, err)
		return
	}
	filename := fmt.Sprintf("contracts_%s_%s.xlsx", companyID, time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (h *ContractHandler) readUpload(header *multipart.FileHeader) (model.Upload, error) {
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		return model.Upload{}, &model.ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("%s exceeds the %d MB limit", header.Filename, h.maxUploadBytes>>20),
		}
	}

	file, err := header.Open()
	if err != nil {
		return model.Upload{}, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return model.Upload{}, fmt.Errorf("read upload: %w", err)
	}
	return model.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// requireCompany writes a 400 and reports false when the request names no company.
func requireCompany(c *gin.Context) (string, bool) {
	companyID := middleware.GetCompanyID(c)
	if companyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company_id is required", "field": "company_id"})
		return "", false
	}
	return companyID, true
}
