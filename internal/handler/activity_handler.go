package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pomodoro/sessions/internal/service"
)

type ActivityHandler struct {
	activityService *service.ActivityService
}

type createActivityRequest struct {
	Name string `json:"name"`
}

func NewActivityHandler(activityService *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{activityService: activityService}
}

func (h *ActivityHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req createActivityRequest
	if !bindJSON(c, &req, false) {
		return
	}

	activity, apiErr := h.activityService.Create(c.Request.Context(), userID, req.Name)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"activity": activity})
}

func (h *ActivityHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	activity, apiErr := h.activityService.Get(c.Request.Context(), c.Param("activityId"), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": activity})
}
