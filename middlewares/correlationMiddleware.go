package middlewares

import (
	"github.com/cellsync/fiscal_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const HeaderCorrelationId = "x-correlation-id"

// CorrelationMiddleware generates a correlation id once per request and echoes it back.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(HeaderCorrelationId)
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header(HeaderCorrelationId, cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}
