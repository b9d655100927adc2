package handlers

import (
	"net/http"

	"washflow/services/dispute"
	"washflow/utils"

	"github.com/gin-gonic/gin"
)

type DisputeHandler struct {
	Service dispute.DisputeService
}

func NewDisputeHandler(svc dispute.DisputeService) *DisputeHandler {
	return &DisputeHandler{Service: svc}
}

func (h *DisputeHandler) OpenDispute(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var req dispute.OpenRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.Service.OpenDispute(c.Request.Context(), caller, c.Param("id"), req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"dispute": d})
}

func (h *DisputeHandler) GetDispute(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	d, err := h.Service.GetDispute(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

func (h *DisputeHandler) RespondToDispute(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var body struct {
		Response string `json:"response" binding:"required"`
	}
	if !bindJSON(c, &body) {
		return
	}
	d, err := h.Service.RespondToDispute(c.Request.Context(), caller, c.Param("id"), body.Response)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

func (h *DisputeHandler) ResolveDispute(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var req dispute.ResolveRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.Service.ResolveDispute(c.Request.Context(), caller, c.Param("id"), req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}
