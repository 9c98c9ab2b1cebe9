package handler

import (
	"github.com/gin-gonic/gin"
	appresolution "github.com/itdd/backend/internal/application/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"github.com/itdd/backend/internal/interfaces/http/dto"
)

// ReviewHandler serves the manual-review queue
type ReviewHandler struct {
	BaseHandler
	reviews *appresolution.ReviewService
}

// NewReviewHandler creates a new ReviewHandler
func NewReviewHandler(reviews *appresolution.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// ListPending godoc
// @ID           listPendingReviews
// @Summary      List pending merge reviews of a scope
// @Tags         reviews
// @Produce      json
// @Param        deal_id path string true "Deal ID" format(uuid)
// @Param        scope path string true "Ownership scope" Enums(target, acquirer)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Param        order_by query string false "Sort field" Enums(created_at, updated_at, score, vendor_score)
// @Param        order_dir query string false "Sort direction" Enums(asc, desc)
// @Success      200 {object} APIResponse[[]dto.ReviewResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /deals/{deal_id}/scopes/{scope}/reviews [get]
func (h *ReviewHandler) ListPending(c *gin.Context) {
	key, err := scopeKey(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var page dto.PageRequest
	if !h.BindQuery(c, &page) {
		return
	}
	page = page.WithDefaults()

	result, err := h.reviews.ListPending(c.Request.Context(), key, shared.Filter{
		Page:     page.Page,
		PageSize: page.PageSize,
		OrderBy:  page.OrderBy,
		OrderDir: page.OrderDir,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.ToReviewResponses(result.Items), result.Total, result.Page, result.PageSize)
}

// Get godoc
// @ID           getReview
// @Summary      Get a merge review
// @Tags         reviews
// @Produce      json
// @Param        id path string true "Review ID"
// @Success      200 {object} APIResponse[dto.ReviewResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /reviews/{id} [get]
func (h *ReviewHandler) Get(c *gin.Context) {
	review, err := h.reviews.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToReviewResponse(review))
}

// Resolve godoc
// @ID           resolveReview
// @Summary      Merge or reject a flagged pair
// @Tags         reviews
// @Accept       json
// @Produce      json
// @Param        id path string true "Review ID"
// @Param        request body appresolution.ResolveReviewRequest true "Decision"
// @Success      200 {object} APIResponse[dto.ResolveReviewResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /reviews/{id}/resolve [post]
func (h *ReviewHandler) Resolve(c *gin.Context) {
	var req appresolution.ResolveReviewRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.reviews.Resolve(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ResolveReviewResponse{
		Review:     dto.ToReviewResponse(result.Review),
		SurvivorID: result.SurvivorID,
		LoserID:    result.LoserID,
	})
}
