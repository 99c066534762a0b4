package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cellsync/fiscal_backend/config"
	"github.com/cellsync/fiscal_backend/reconcile"
	"github.com/cellsync/fiscal_backend/utils"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type importRequest struct {
	XML               string `json:"xml" validate:"required"`
	CreateNewProducts *bool  `json:"create_new_products"`
	UpdatePrices      *bool  `json:"update_prices"`
}

type batchFile struct {
	Filename string `json:"filename" validate:"required"`
	XML      string `json:"xml"`
}

type batchRequest struct {
	Files             []batchFile `json:"files" validate:"required,min=1,dive"`
	CreateNewProducts *bool       `json:"create_new_products"`
	UpdatePrices      *bool       `json:"update_prices"`
}

type batchResponse struct {
	Message      string                 `json:"message"`
	Results      []reconcile.FileResult `json:"results"`
	TotalFiles   int                    `json:"total_files"`
	SuccessCount int                    `json:"success_count"`
	ErrorCount   int                    `json:"error_count"`
}

// importOptions fills unset flags from the env defaults.
func importOptions(createNew, updatePrices *bool) reconcile.Options {
	opts := reconcile.Options{}
	opts.CreateNewProducts, opts.UpdatePrices = config.ImportDefaults()
	if createNew != nil {
		opts.CreateNewProducts = *createNew
	}
	if updatePrices != nil {
		opts.UpdatePrices = *updatePrices
	}
	return opts
}

func isJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "application/json")
}

// queryBool reads an optional boolean from the query string or form.
func queryBool(c *gin.Context, key string) (*bool, error) {
	v, ok := c.GetQuery(key)
	if !ok {
		v, ok = c.GetPostForm(key)
	}
	if !ok || strings.TrimSpace(v) == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a boolean", utils.ErrValidation, key)
	}
	return &b, nil
}

// readDocument accepts either {"xml": "..."} or the raw XML as the request body.
func readDocument(c *gin.Context) ([]byte, reconcile.Options, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxDocumentBytes)

	if isJSON(c) {
		var req importRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, reconcile.Options{}, fmt.Errorf("%w: %v", utils.ErrValidation, err)
		}
		if err := utils.ValidateStruct(req); err != nil {
			return nil, reconcile.Options{}, err
		}
		return []byte(req.XML), importOptions(req.CreateNewProducts, req.UpdatePrices), nil
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, reconcile.Options{}, fmt.Errorf("%w: %v", utils.ErrValidation, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, reconcile.Options{}, errEmptyDocument
	}
	createNew, err := queryBool(c, "create_new_products")
	if err != nil {
		return nil, reconcile.Options{}, err
	}
	updatePrices, err := queryBool(c, "update_prices")
	if err != nil {
		return nil, reconcile.Options{}, err
	}
	return raw, importOptions(createNew, updatePrices), nil
}

func (h *handler) previewNfe(c *gin.Context) {
	raw, _, err := readDocument(c)
	if err != nil {
		h.abortWithError(c, "previewNfe", nil, err)
		return
	}
	preview, err := h.engine.Preview(c.Request.Context(), raw)
	if err != nil {
		h.abortWithError(c, "previewNfe", nil, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (h *handler) importNfe(c *gin.Context) {
	raw, opts, err := readDocument(c)
	if err != nil {
		h.abortWithError(c, "importNfe", nil, err)
		return
	}
	result, err := h.engine.ImportXML(c.Request.Context(), raw, opts)
	if err != nil {
		h.abortWithError(c, "importNfe", opts, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// readBatch accepts multipart "files" uploads or a JSON list of {filename, xml}.
func readBatch(c *gin.Context) ([]reconcile.File, reconcile.Options, error) {
	if isJSON(c) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxMultipartBytes)
		var req batchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, reconcile.Options{}, fmt.Errorf("%w: %v", utils.ErrValidation, err)
		}
		if err := utils.ValidateStruct(req); err != nil {
			return nil, reconcile.Options{}, err
		}
		files := make([]reconcile.File, 0, len(req.Files))
		for _, f := range req.Files {
			files = append(files, reconcile.File{Label: f.Filename, Content: []byte(f.XML)})
		}
		return files, importOptions(req.CreateNewProducts, req.UpdatePrices), nil
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxMultipartBytes)
	form, err := c.MultipartForm()
	if err != nil {
		return nil, reconcile.Options{}, fmt.Errorf("%w: %v", utils.ErrValidation, err)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return nil, reconcile.Options{}, fmt.Errorf("%w: at least one file is required", utils.ErrValidation)
	}
	files := make([]reconcile.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, reconcile.Options{}, err
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, reconcile.Options{}, err
		}
		files = append(files, reconcile.File{Label: fh.Filename, Content: content})
	}
	createNew, err := queryBool(c, "create_new_products")
	if err != nil {
		return nil, reconcile.Options{}, err
	}
	updatePrices, err := queryBool(c, "update_prices")
	if err != nil {
		return nil, reconcile.Options{}, err
	}
	return files, importOptions(createNew, updatePrices), nil
}

func (h *handler) importNfeBatch(c *gin.Context) {
	files, opts, err := readBatch(c)
	if err != nil {
		h.abortWithError(c, "importNfeBatch", nil, err)
		return
	}
	results, err := h.engine.ReconcileBatch(c.Request.Context(), files, opts)
	if err != nil {
		h.abortWithError(c, "importNfeBatch", len(files), err)
		return
	}

	if strings.EqualFold(c.Query("format"), "xlsx") {
		var buf bytes.Buffer
		if err := reconcile.WriteBatchReport(&buf, results); err != nil {
			h.abortWithError(c, "importNfeBatch", "xlsx", fmt.Errorf("write batch report: %w", err))
			return
		}
		c.Header("Content-Disposition", `attachment; filename="nfe-import.xlsx"`)
		c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
		return
	}

	ok, failed := reconcile.Counts(results)
	c.JSON(http.StatusOK, batchResponse{
		Message:      fmt.Sprintf("batch import finished: %d succeeded, %d failed", ok, failed),
		Results:      results,
		TotalFiles:   len(files),
		SuccessCount: ok,
		ErrorCount:   failed,
	})
}
