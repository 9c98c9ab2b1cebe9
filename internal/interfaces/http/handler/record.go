package handler

import (
	"github.com/gin-gonic/gin"
	appresolution "github.com/itdd/backend/internal/application/resolution"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/interfaces/http/dto"
)

// RecordHandler serves inventory record reads and reviewer corrections
type RecordHandler struct {
	BaseHandler
	query   *appresolution.QueryService
	reviews *appresolution.ReviewService
}

// NewRecordHandler creates a new RecordHandler
func NewRecordHandler(query *appresolution.QueryService, reviews *appresolution.ReviewService) *RecordHandler {
	return &RecordHandler{query: query, reviews: reviews}
}

// ListByScope godoc
// @ID           listScopeRecords
// @Summary      List records of a scope
// @Tags         records
// @Produce      json
// @Param        deal_id path string true "Deal ID" format(uuid)
// @Param        scope path string true "Ownership scope" Enums(target, acquirer)
// @Param        status query string false "Lifecycle status, defaults to active"
// @Success      200 {object} APIResponse[[]appresolution.RecordView]
// @Failure      400 {object} ErrorResponse
// @Router       /deals/{deal_id}/scopes/{scope}/records [get]
func (h *RecordHandler) ListByScope(c *gin.Context) {
	key, err := scopeKey(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var q dto.ListRecordsQuery
	if !h.BindQuery(c, &q) {
		return
	}

	views, err := h.query.ListByScope(c.Request.Context(), key, resolution.LifecycleStatus(q.Status))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, views)
}

// FindSimilar godoc
// @ID           findSimilarRecords
// @Summary      Fuzzy-match a name within a scope
// @Tags         records
// @Produce      json
// @Param        deal_id path string true "Deal ID" format(uuid)
// @Param        scope path string true "Ownership scope" Enums(target, acquirer)
// @Param        name query string true "Name to match"
// @Param        type query string false "Record type"
// @Param        threshold query number false "Minimum similarity in (0,1]"
// @Success      200 {object} APIResponse[[]appresolution.SimilarView]
// @Failure      400 {object} ErrorResponse
// @Router       /deals/{deal_id}/scopes/{scope}/similar [get]
func (h *RecordHandler) FindSimilar(c *gin.Context) {
	key, err := scopeKey(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var q dto.SimilarRecordsQuery
	if !h.BindQuery(c, &q) {
		return
	}

	matches, err := h.query.FindSimilar(c.Request.Context(), resolution.SimilarQuery{
		Name:      q.Name,
		Type:      resolution.RecordType(q.Type),
		Scope:     key.Scope,
		DealID:    key.DealID,
		Threshold: q.Threshold,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, matches)
}

// Get godoc
// @ID           getRecord
// @Summary      Get a record by id
// @Description  Tombstoned records are returned with their merged_into pointer.
// @Tags         records
// @Produce      json
// @Param        id path string true "Record ID"
// @Success      200 {object} APIResponse[appresolution.RecordView]
// @Failure      404 {object} ErrorResponse
// @Router       /records/{id} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	view, err := h.query.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// GetEvidence godoc
// @ID           getRecordEvidence
// @Summary      Get the evidence chain of a record
// @Tags         records
// @Produce      json
// @Param        id path string true "Record ID"
// @Success      200 {object} APIResponse[appresolution.EvidenceChain]
// @Failure      404 {object} ErrorResponse
// @Router       /records/{id}/evidence [get]
func (h *RecordHandler) GetEvidence(c *gin.Context) {
	chain, err := h.query.GetEvidenceChain(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, chain)
}

// Confirm godoc
// @ID           confirmRecordAttributes
// @Summary      Confirm attribute values
// @Description  Records a manual observation that outranks every extracted one.
// @Tags         records
// @Accept       json
// @Produce      json
// @Param        id path string true "Record ID"
// @Param        request body dto.ConfirmAttributesRequest true "Confirmed fields"
// @Success      200 {object} APIResponse[appresolution.RecordView]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /records/{id}/confirm [post]
func (h *RecordHandler) Confirm(c *gin.Context) {
	var req dto.ConfirmAttributesRequest
	if !h.BindJSON(c, &req) {
		return
	}

	rec, err := h.reviews.ConfirmAttributes(c.Request.Context(), c.Param("id"), req.Reviewer, req.Fields)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appresolution.ToRecordView(rec))
}

// Remove godoc
// @ID           removeRecord
// @Summary      Remove a record from inventory
// @Tags         records
// @Accept       json
// @Produce      json
// @Param        id path string true "Record ID"
// @Param        request body dto.RemoveRecordRequest true "Removal reason"
// @Success      200 {object} APIResponse[appresolution.RecordView]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /records/{id}/remove [post]
func (h *RecordHandler) Remove(c *gin.Context) {
	var req dto.RemoveRecordRequest
	if !h.BindJSON(c, &req) {
		return
	}

	rec, err := h.reviews.RemoveRecord(c.Request.Context(), c.Param("id"), req.Reviewer, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appresolution.ToRecordView(rec))
}
