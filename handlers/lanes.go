package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"washflow/models"
	"washflow/services/slots"
	"washflow/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LaneHandler struct {
	Slots slots.SlotAllocator
}

func NewLaneHandler(allocator slots.SlotAllocator) *LaneHandler {
	return &LaneHandler{Slots: allocator}
}

func (h *LaneHandler) RegisterLane(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var lane models.Lane
	if !bindJSON(c, &lane) {
		return
	}
	created, err := h.Slots.RegisterLane(c.Request.Context(), caller, lane)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"lane": created})
}

// ListAvailableSlots serves ?lanes=a,b&date=YYYY-MM-DD&duration=minutes.
func (h *LaneHandler) ListAvailableSlots(c *gin.Context) {
	var laneIDs []string
	for _, id := range strings.Split(c.Query("lanes"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			laneIDs = append(laneIDs, id)
		}
	}
	duration, err := strconv.Atoi(c.DefaultQuery("duration", "0"))
	if err != nil {
		utils.RespondError(c, utils.NewValidationError("duration_invalid", "duration must be a number of minutes"))
		return
	}

	available, err := h.Slots.ListAvailableSlots(c.Request.Context(), laneIDs, c.Query("date"), duration)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": available})
}

func (h *LaneHandler) Occupancy(c *gin.Context) {
	occ, err := h.Slots.OccupancyRate(c.Request.Context(), c.Param("id"), c.Query("date"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, occ)
}

type blockBody struct {
	Date   string `json:"date" binding:"required"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Reason string `json:"reason"`
}

func (h *LaneHandler) BlockWindow(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var body blockBody
	if !bindJSON(c, &body) {
		return
	}
	err := h.Slots.BlockWindow(c.Request.Context(), caller, slots.BlockRequest{
		LaneID: c.Param("id"), Date: body.Date, Start: body.Start, End: body.End, Reason: body.Reason,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	reqLogger(c).Info("lane window blocked", zap.String("laneId", c.Param("id")), zap.String("date", body.Date), zap.Int("start", body.Start))
	c.JSON(http.StatusCreated, gin.H{"message": "window blocked"})
}

func (h *LaneHandler) UnblockWindow(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	start, err := strconv.Atoi(c.Query("start"))
	if err != nil {
		utils.RespondError(c, utils.NewValidationError("start_invalid", "start must be minutes from midnight"))
		return
	}
	if err := h.Slots.UnblockWindow(c.Request.Context(), caller, c.Param("id"), c.Query("date"), start); err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "window released"})
}
