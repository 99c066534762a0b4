package middlewares

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cellsync/fiscal_backend/utils"
	"github.com/gin-gonic/gin"
)

const (
	HeaderTenantId = "X-Tenant-Id"
	HeaderUserId   = "X-User-Id"
	HeaderUserName = "X-User-Name"
)

// TenantMiddleware copies the gateway-authenticated tenant and user onto the request
// context. Requests without a tenant are rejected.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId := strings.TrimSpace(c.GetHeader(HeaderTenantId))
		if tenantId == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		if raw := strings.TrimSpace(c.GetHeader(HeaderUserId)); raw != "" {
			userId, err := strconv.Atoi(raw)
			if err != nil || userId < 0 {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + HeaderUserId})
				return
			}
			ctx = utils.SetUserIdInContext(ctx, userId)
		}
		if name := strings.TrimSpace(c.GetHeader(HeaderUserName)); name != "" {
			ctx = utils.SetUserNameInContext(ctx, name)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
