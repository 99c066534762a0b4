package api

import (
	"fmt"
	"net/http"

	"github.com/cellsync/fiscal_backend/config"
	"github.com/cellsync/fiscal_backend/escpos"
	"github.com/cellsync/fiscal_backend/utils"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

type receiptRequest struct {
	Sale          *escpos.Sale `json:"sale" validate:"required"`
	PaperWidth    *int         `json:"paper_width" validate:"omitempty,oneof=58 80"`
	IncludeQRCode *bool        `json:"include_qrcode"`
}

type receiptResponse struct {
	EscPosBase64 string `json:"escpos_base64"`
	Size         int    `json:"size"`
	Columns      int    `json:"columns"`
}

func (h *handler) receiptOptions(req receiptRequest) escpos.Options {
	width := config.ReceiptPaperWidth()
	if req.PaperWidth != nil {
		width = *req.PaperWidth
	}
	qr := config.ReceiptIncludeQRCode()
	if req.IncludeQRCode != nil {
		qr = *req.IncludeQRCode
	}
	return escpos.Options{
		Columns:       escpos.ColumnsForPaper(width),
		IncludeQRCode: qr,
		Location:      h.location,
	}
}

func (h *handler) encodeReceipt(c *gin.Context) {
	var req receiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, "encodeReceipt", nil, fmt.Errorf("%w: %v", utils.ErrValidation, err))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.abortWithError(c, "encodeReceipt", nil, err)
		return
	}
	if err := escpos.Validate(req.Sale); err != nil {
		h.abortWithError(c, "encodeReceipt", nil, err)
		return
	}

	_, span := tracer.Start(c.Request.Context(), "api.encodeReceipt")
	defer span.End()

	opts := h.receiptOptions(req)
	data := escpos.Encode(req.Sale, opts)
	span.SetAttributes(
		attribute.Int("sale.id", req.Sale.Id),
		attribute.Int("sale.items", len(req.Sale.Items)),
		attribute.Int("receipt.columns", opts.Columns),
		attribute.Int("receipt.bytes", len(data)),
	)

	if c.Query("raw") == "1" {
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="receipt-%d.bin"`, req.Sale.Id))
		c.Data(http.StatusOK, "application/octet-stream", data)
		return
	}
	c.JSON(http.StatusOK, receiptResponse{
		EscPosBase64: escpos.ToTransportEncoding(data),
		Size:         len(data),
		Columns:      opts.Columns,
	})
}
