package handler

import (
	"ev-marketplace/internal/core/ports"
	"ev-marketplace/pkg/response"

	"github.com/gin-gonic/gin"
)

// SyncHandler exposes the carrier reconciliation operations to admins.
type SyncHandler struct {
	reconciler ports.ReconcilerService
}

func NewSyncHandler(reconciler ports.ReconcilerService) *SyncHandler {
	return &SyncHandler{reconciler: reconciler}
}

// SyncOrder handles POST /api/v1/admin/sync/orders/:number.
func (h *SyncHandler) SyncOrder(c *gin.Context) {
	result, err := h.reconciler.SyncOrder(c.Request.Context(), c.Param("number"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// SyncAll handles POST /api/v1/admin/sync/orders.
func (h *SyncHandler) SyncAll(c *gin.Context) {
	results, err := h.reconciler.SyncAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"synced": len(results), "results": results})
}
