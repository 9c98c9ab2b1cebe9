package handler

import (
	"github.com/gin-gonic/gin"
	appresolution "github.com/itdd/backend/internal/application/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"github.com/itdd/backend/internal/interfaces/http/dto"
)

// ReconcileHandler queues reconciliation passes on demand. Passes never run on
// the request goroutine.
type ReconcileHandler struct {
	BaseHandler
	trigger appresolution.ReconciliationTrigger
}

// NewReconcileHandler creates a new ReconcileHandler. A nil trigger rejects
// every request as deferred.
func NewReconcileHandler(trigger appresolution.ReconciliationTrigger) *ReconcileHandler {
	return &ReconcileHandler{trigger: trigger}
}

// Reconcile godoc
// @ID           reconcileScope
// @Summary      Reconcile a scope
// @Description  Queues a pass on the background runner and returns 202.
// @Tags         reconciliation
// @Produce      json
// @Param        deal_id path string true "Deal ID" format(uuid)
// @Param        scope path string true "Ownership scope" Enums(target, acquirer)
// @Success      202 {object} APIResponse[dto.ReconcileAcceptedResponse]
// @Failure      409 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /deals/{deal_id}/scopes/{scope}/reconcile [post]
func (h *ReconcileHandler) Reconcile(c *gin.Context) {
	key, err := scopeKey(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if h.trigger == nil {
		h.HandleError(c, shared.ErrReconciliationDeferred)
		return
	}
	if err := h.trigger.Trigger(c.Request.Context(), key); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, dto.ReconcileAcceptedResponse{Scope: key.String(), Queued: true})
}
