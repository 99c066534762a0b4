package api

import (
	"errors"
	"net/http"

	"github.com/cellsync/fiscal_backend/config"
	"github.com/cellsync/fiscal_backend/escpos"
	"github.com/cellsync/fiscal_backend/nfe"
	"github.com/cellsync/fiscal_backend/reconcile"
	"github.com/cellsync/fiscal_backend/utils"
	"github.com/gin-gonic/gin"
)

var errEmptyDocument = errors.New("xml document is required")

func statusFor(err error) int {
	var perr *reconcile.PersistenceError
	switch {
	case errors.Is(err, nfe.ErrMalformedDocument), errors.Is(err, nfe.ErrUnsupportedSchemaVersion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, reconcile.ErrDuplicateImport):
		return http.StatusConflict
	case errors.Is(err, reconcile.ErrMissingTenant):
		return http.StatusUnauthorized
	case errors.Is(err, utils.ErrValidation), errors.Is(err, escpos.ErrInvalidSale), errors.Is(err, errEmptyDocument):
		return http.StatusBadRequest
	case errors.As(err, &perr):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// abortWithError writes the mapped status. Server-side failures are logged with their
// cause and answered with a generic message.
func (h *handler) abortWithError(c *gin.Context, fn string, data interface{}, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		config.LogError(h.logger, "api", fn, c.Request.URL.Path, data, err)
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
