package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/AnTengye/contractledger/pkg/logger"
)

// Recovery turns a panic into a 500 response carrying the request id.
// Panics caused by a client hanging up mid-upload are logged without a
// stack and no response is written.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			log := logger.WithContext(c.Request.Context())

			if err, ok := rec.(error); ok && clientGone(err) {
				log.Warn("client disconnected", "route", c.FullPath(), "error", err)
				c.Abort()
				return
			}

			log.Error("panic recovered",
				"error", rec,
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":      "Internal server error",
				"request_id": GetRequestID(c),
			})
		}()

		c.Next()
	}
}

func clientGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, http.ErrAbortHandler)
}
