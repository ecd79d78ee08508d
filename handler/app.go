package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AnTengye/contractledger/model"
)

// AppCatalog is what the app routes need from the service layer.
type AppCatalog interface {
	ListApps(ctx context.Context, category string) ([]*model.App, error)
	ListCompanyApps(ctx context.Context, companyID string) ([]*model.App, error)
	SelectApp(ctx context.Context, in model.SelectAppInput) error
	UnselectApp(ctx context.Context, companyID, appID string) error
}

type AppHandler struct {
	apps AppCatalog
}

func NewAppHandler(apps AppCatalog) *AppHandler {
	return &AppHandler{apps: apps}
}

// List returns the catalogue, optionally filtered by ?category=.
func (h *AppHandler) List(c *gin.Context) {
	apps, err := h.apps.ListApps(c.Request.Context(), c.Query("category"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"apps": apps})
}

// ListCompany returns the apps a company has selected.
func (h *AppHandler) ListCompany(c *gin.Context) {
	apps, err := h.apps.ListCompanyApps(c.Request.Context(), c.Param("company_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"apps": apps})
}

func (h *AppHandler) Select(c *gin.Context) {
	var input model.SelectAppInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.apps.SelectApp(c.Request.Context(), input); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "App selected"})
}

// Unselect removes the app from the company along with its contract.
func (h *AppHandler) Unselect(c *gin.Context) {
	if err := h.apps.UnselectApp(c.Request.Context(), c.Param("company_id"), c.Param("app_id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "App removed"})
}

// RegisterRoutes mounts the contract and app routes under api.
func RegisterRoutes(api *gin.RouterGroup, contracts *ContractHandler, apps *AppHandler) {
	api.POST("/contracts/process", contracts.Process)
	api.POST("/contracts/batch", contracts.ProcessBatch)
	api.POST("/contracts", contracts.Create)
	api.GET("/contracts/:id", contracts.Get)
	api.PUT("/contracts/:id", contracts.Update)
	api.DELETE("/contracts/:id", contracts.Delete)
	api.POST("/contracts/:id/upload", contracts.Upload)
	api.GET("/contracts/:id/download", contracts.Download)

	api.GET("/companies/:company_id/contracts", contracts.List)
	api.GET("/companies/:company_id/contracts/export", contracts.Export)
	api.GET("/companies/:company_id/apps", apps.ListCompany)

	api.GET("/apps", apps.List)
	api.POST("/apps/select", apps.Select)
	api.DELETE("/apps/select/:company_id/:app_id", apps.Unselect)
}
