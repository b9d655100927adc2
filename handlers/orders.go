package handlers

import (
	"context"
	"net/http"
	"strconv"

	"washflow/models"
	"washflow/services/order"
	"washflow/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type OrderHandler struct {
	Service order.OrderService
}

func NewOrderHandler(svc order.OrderService) *OrderHandler {
	return &OrderHandler{Service: svc}
}

// respondOrder writes the order, or 202 with the order when the operation
// committed but left follow-up work (a pending refund or payment capture).
func respondOrder(c *gin.Context, status int, o *models.Order, err error) {
	if err != nil && o != nil && utils.IsKind(err, utils.KindDependency) {
		reqLogger(c).Warn("order committed with pending follow-up",
			zap.String("orderId", o.ID), zap.String("code", utils.CodeOf(err)))
		c.JSON(http.StatusAccepted, gin.H{"order": o, "pending": utils.CodeOf(err)})
		return
	}
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(status, gin.H{"order": o})
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var req order.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	o, err := h.Service.CreateOrder(c.Request.Context(), caller, req)
	respondOrder(c, http.StatusCreated, o, err)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	o, err := h.Service.GetOrder(c.Request.Context(), caller, c.Param("id"))
	respondOrder(c, http.StatusOK, o, err)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	filter := models.OrderFilter{
		DriverID:   c.Query("driverId"),
		ProviderID: c.Query("providerId"),
		Status:     models.OrderStatus(c.Query("status")),
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		filter.Limit = limit
	}
	orders, err := h.Service.ListOrders(c.Request.Context(), caller, filter)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

type orderAction func(ctx context.Context, by models.Caller, orderID string) (*models.Order, error)

// transition adapts a parameterless order operation to a handler.
func (h *OrderHandler) transition(op orderAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		o, err := op(c.Request.Context(), caller, c.Param("id"))
		respondOrder(c, http.StatusOK, o, err)
	}
}

func (h *OrderHandler) AcceptOrder() gin.HandlerFunc    { return h.transition(h.Service.AcceptOrder) }
func (h *OrderHandler) MarkEnRoute() gin.HandlerFunc    { return h.transition(h.Service.MarkEnRoute) }
func (h *OrderHandler) CheckIn() gin.HandlerFunc        { return h.transition(h.Service.CheckIn) }
func (h *OrderHandler) StartWork() gin.HandlerFunc      { return h.transition(h.Service.StartWork) }
func (h *OrderHandler) ApproveQA() gin.HandlerFunc      { return h.transition(h.Service.ApproveQA) }
func (h *OrderHandler) CapturePayment() gin.HandlerFunc { return h.transition(h.Service.CapturePayment) }

func (h *OrderHandler) UpdateWorkStep(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		utils.RespondError(c, utils.NewValidationError("step_invalid", "step index must be a number"))
		return
	}
	var update order.StepUpdate
	if !bindJSON(c, &update) {
		return
	}
	o, err := h.Service.UpdateWorkStep(c.Request.Context(), caller, c.Param("id"), index, update)
	respondOrder(c, http.StatusOK, o, err)
}

func (h *OrderHandler) SubmitQA(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var sub order.QASubmission
	if !bindJSON(c, &sub) {
		return
	}
	o, err := h.Service.SubmitQA(c.Request.Context(), caller, c.Param("id"), sub)
	respondOrder(c, http.StatusOK, o, err)
}

type rejectBody struct {
	Feedback    string `json:"feedback" binding:"required"`
	ReworkSteps []int  `json:"reworkSteps"`
}

func (h *OrderHandler) RejectQA(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var body rejectBody
	if !bindJSON(c, &body) {
		return
	}
	o, err := h.Service.RejectQA(c.Request.Context(), caller, c.Param("id"), body.Feedback, body.ReworkSteps)
	respondOrder(c, http.StatusOK, o, err)
}

type reviewBody struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

func (h *OrderHandler) SubmitReview(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var body reviewBody
	if !bindJSON(c, &body) {
		return
	}
	o, err := h.Service.SubmitReview(c.Request.Context(), caller, c.Param("id"), body.Rating, body.Comment)
	respondOrder(c, http.StatusOK, o, err)
}

type cancelBody struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var body cancelBody
	// An empty body is a cancellation without a reason.
	if c.Request.ContentLength > 0 && !bindJSON(c, &body) {
		return
	}
	o, err := h.Service.CancelOrder(c.Request.Context(), caller, c.Param("id"), body.Reason)
	respondOrder(c, http.StatusOK, o, err)
}

func (h *OrderHandler) VerifyConsistency(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	report, err := h.Service.VerifyConsistency(c.Request.Context(), caller, c.Param("id"))
	// A mismatch is the answer, not a failure of the check.
	if err != nil && (report == nil || !utils.IsKind(err, utils.KindInconsistent)) {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}
