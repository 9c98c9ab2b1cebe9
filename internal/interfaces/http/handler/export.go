package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	appresolution "github.com/itdd/backend/internal/application/resolution"
	"github.com/itdd/backend/internal/interfaces/http/dto"
)

// ExportHandler renders scope projections
type ExportHandler struct {
	BaseHandler
	exports   *appresolution.ExportService
	urlExpiry time.Duration
}

// NewExportHandler creates a new ExportHandler
func NewExportHandler(exports *appresolution.ExportService, urlExpiry time.Duration) *ExportHandler {
	if urlExpiry <= 0 {
		urlExpiry = 15 * time.Minute
	}
	return &ExportHandler{exports: exports, urlExpiry: urlExpiry}
}

// Export godoc
// @ID           exportScope
// @Summary      Export the active records of a scope
// @Description  Streams the projection, or uploads it and returns a download URL when publish=true.
// @Tags         export
// @Produce      application/yaml,json
// @Param        deal_id path string true "Deal ID" format(uuid)
// @Param        scope path string true "Ownership scope" Enums(target, acquirer)
// @Param        format query string false "yaml or json" default(yaml)
// @Param        publish query bool false "Upload and return a presigned URL"
// @Success      200 {object} APIResponse[appresolution.ExportResult]
// @Failure      400 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /deals/{deal_id}/scopes/{scope}/export [get]
func (h *ExportHandler) Export(c *gin.Context) {
	key, err := scopeKey(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var q dto.ExportQuery
	if !h.BindQuery(c, &q) {
		return
	}
	format, err := appresolution.ParseExportFormat(q.Format)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if q.Publish {
		res, err := h.exports.Publish(c.Request.Context(), key, format, h.urlExpiry)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, res)
		return
	}

	res, err := h.exports.Render(c.Request.Context(), key, format)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	filename := fmt.Sprintf("%s-%s.%s", key.DealID, key.Scope, format.Extension())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, res.ContentType, res.Data)
}
