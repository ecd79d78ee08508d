package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AnTengye/contractledger/model"
	"github.com/AnTengye/contractledger/pkg/logger"
	"github.com/AnTengye/contractledger/service"
)

// respondError writes the status and body matching err's kind.
func respondError(c *gin.Context, err error) {
	var (
		ve *model.ValidationError
		ee *model.ExtractionError
		ce *model.ConflictError
		nf *model.NotFoundError
		se *model.StorageError
		pe *model.PersistenceError
	)

	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}

	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		if ve.Field != "" {
			body["field"] = ve.Field
		}
	case errors.As(err, &ee):
		status = http.StatusUnprocessableEntity
		if ee.Status == model.JobTimedOut {
			status = http.StatusGatewayTimeout
		}
		body["job_status"] = ee.Status
	case errors.As(err, &ce):
		status = http.StatusConflict
	case errors.Is(err, service.ErrPairBusy):
		status = http.StatusConflict
	case errors.As(err, &nf):
		status = http.StatusNotFound
	case errors.As(err, &se):
		status = http.StatusBadGateway
	case errors.As(err, &pe):
		body = gin.H{"error": "Failed to save contract"}
	default:
		body = gin.H{"error": "Internal server error"}
	}

	log := logger.WithContext(c.Request.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status, "error", err)
	} else {
		log.Debug("request rejected", "status", status, "error", err)
	}

	c.Error(err)
	c.AbortWithStatusJSON(status, body)
}
