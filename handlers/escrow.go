package handlers

import (
	"net/http"

	"washflow/services/escrow"
	"washflow/utils"

	"github.com/gin-gonic/gin"
)

// EscrowHandler exposes the ledger to operators for reconciliation.
type EscrowHandler struct {
	Ledger escrow.Ledger
}

func NewEscrowHandler(ledger escrow.Ledger) *EscrowHandler {
	return &EscrowHandler{Ledger: ledger}
}

func (h *EscrowHandler) GetTransaction(c *gin.Context) {
	tx, err := h.Ledger.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	history, err := h.Ledger.History(c.Request.Context(), tx.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx, "history": history})
}
