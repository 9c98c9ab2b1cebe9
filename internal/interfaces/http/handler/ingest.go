package handler

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appresolution "github.com/itdd/backend/internal/application/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"github.com/itdd/backend/internal/interfaces/http/dto"
)

// IngestHandler accepts extraction batches for one deal
type IngestHandler struct {
	BaseHandler
	ingestion *appresolution.IngestionService
}

// NewIngestHandler creates a new IngestHandler
func NewIngestHandler(ingestion *appresolution.IngestionService) *IngestHandler {
	return &IngestHandler{ingestion: ingestion}
}

// Ingest godoc
// @ID           ingestBatch
// @Summary      Ingest an extraction batch
// @Description  Resolves structured and narrative events into inventory records. Events without deal_scope inherit the path deal.
// @Tags         ingestion
// @Accept       json
// @Produce      json
// @Param        deal_id path string true "Deal ID" format(uuid)
// @Param        request body appresolution.Batch true "Extraction batch"
// @Success      200 {object} APIResponse[appresolution.BatchResult]
// @Failure      400 {object} ErrorResponse
// @Failure      413 {object} ErrorResponse
// @Router       /deals/{deal_id}/ingest [post]
func (h *IngestHandler) Ingest(c *gin.Context) {
	dealID, err := uuid.Parse(c.Param("deal_id"))
	if err != nil || dealID == uuid.Nil {
		h.HandleError(c, shared.NewValidationError("deal_scope", "must be a non-nil UUID"))
		return
	}

	var batch appresolution.Batch
	if !h.BindJSON(c, &batch) {
		return
	}
	if batch.Size() == 0 {
		h.HandleError(c, shared.NewValidationError("batch", "contains no events"))
		return
	}
	if details := pinDeal(&batch, dealID); len(details) > 0 {
		h.ValidationError(c, details)
		return
	}

	result, err := h.ingestion.IngestBatch(c.Request.Context(), batch)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// pinDeal fills empty deal scopes with dealID and reports events naming another deal.
// Ownership scope is never filled in.
func pinDeal(batch *appresolution.Batch, dealID uuid.UUID) []dto.ValidationDetail {
	var details []dto.ValidationDetail
	check := func(deal *string, kind string, i int) {
		text := strings.TrimSpace(*deal)
		if text == "" {
			*deal = dealID.String()
			return
		}
		if id, err := uuid.Parse(text); err == nil && id != dealID {
			details = append(details, dto.ValidationDetail{
				Field:   fmt.Sprintf("%s[%d].deal_scope", kind, i),
				Message: "does not match the deal in the path",
			})
		}
	}
	for i := range batch.Structured {
		check(&batch.Structured[i].DealScope, "structured", i)
	}
	for i := range batch.Narrative {
		check(&batch.Narrative[i].DealScope, "narrative", i)
	}
	return details
}
