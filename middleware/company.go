package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/AnTengye/contractledger/pkg/logger"
)

// CompanyScope picks the company a request acts on from the :company_id path
// parameter or the company_id query parameter and adds it to the log context.
func CompanyScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID := c.Param("company_id")
		if companyID == "" {
			companyID = c.Query("company_id")
		}
		if companyID != "" {
			c.Set(string(logger.CompanyKey), companyID)
			c.Request = c.Request.WithContext(logger.WithCompany(c.Request.Context(), companyID))
		}
		c.Next()
	}
}

// GetCompanyID returns the company set by CompanyScope, or "".
func GetCompanyID(c *gin.Context) string {
	return c.GetString(string(logger.CompanyKey))
}
