package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "pomodoro/sessions/internal/errors"
	"pomodoro/sessions/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
}

type commandRequest struct {
	BaseVersion int     `json:"baseVersion"`
	Note        *string `json:"note"`
}

type timingFields struct {
	FocusDuration           int `json:"focusDuration"`
	BreakDuration           int `json:"breakDuration"`
	LongBreakDuration       int `json:"longBreakDuration"`
	LongBreakIntervalCycles int `json:"longBreakIntervalCycles"`
}

func (f timingFields) input() service.TimingInput {
	return service.TimingInput{
		FocusMinutes:      f.FocusDuration,
		BreakMinutes:      f.BreakDuration,
		LongBreakMinutes:  f.LongBreakDuration,
		LongBreakInterval: f.LongBreakIntervalCycles,
	}
}

func (f timingFields) empty() bool {
	return f == timingFields{}
}

type createSessionRequest struct {
	timingFields
	SessionType string `json:"sessionType"`
	TotalCycles int    `json:"totalCycles"`
	Note        string `json:"note"`
}

type updateTimingRequest struct {
	BaseVersion             int  `json:"baseVersion"`
	FocusDuration           *int `json:"focusDuration"`
	BreakDuration           *int `json:"breakDuration"`
	LongBreakDuration       *int `json:"longBreakDuration"`
	LongBreakIntervalCycles *int `json:"longBreakIntervalCycles"`
}

type setNoteRequest struct {
	BaseVersion int     `json:"baseVersion"`
	Note        *string `json:"note"`
}

type sessionCommand func(ctx context.Context, sessionID, userID string, input service.CommandInput) (*service.SessionView, *apperrors.APIError)

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

func (h *SessionHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req createSessionRequest
	if !bindJSON(c, &req, false) {
		return
	}

	input := service.CreateSessionInput{
		ActivityID:  c.Param("activityId"),
		SessionType: req.SessionType,
		TotalCycles: req.TotalCycles,
		Note:        req.Note,
	}
	if !req.timingFields.empty() {
		timing := req.timingFields.input()
		input.Timing = &timing
	}

	view, apiErr := h.sessionService.Create(c.Request.Context(), userID, input)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": view})
}

func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	views, apiErr := h.sessionService.ListForActivity(c.Request.Context(), c.Param("activityId"), userID, c.Query("status"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	view, apiErr := h.sessionService.Get(c.Request.Context(), c.Param("sessionId"), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": view})
}

func (h *SessionHandler) Deliveries(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	deliveries, apiErr := h.sessionService.Deliveries(c.Request.Context(), c.Param("sessionId"), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": deliveries})
}

func (h *SessionHandler) Start(c *gin.Context) {
	h.run(c, h.sessionService.Start)
}

func (h *SessionHandler) Pause(c *gin.Context) {
	h.run(c, h.sessionService.Pause)
}

func (h *SessionHandler) Resume(c *gin.Context) {
	h.run(c, h.sessionService.Resume)
}

func (h *SessionHandler) Stop(c *gin.Context) {
	h.run(c, h.sessionService.Stop)
}

func (h *SessionHandler) Cancel(c *gin.Context) {
	h.run(c, h.sessionService.Cancel)
}

func (h *SessionHandler) CompletePhase(c *gin.Context) {
	h.run(c, h.sessionService.CompletePhase)
}

func (h *SessionHandler) Finish(c *gin.Context) {
	h.run(c, h.sessionService.Finish)
}

func (h *SessionHandler) UpdateTiming(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req updateTimingRequest
	if !bindJSON(c, &req, false) {
		return
	}

	view, apiErr := h.sessionService.UpdateTiming(c.Request.Context(), c.Param("sessionId"), userID, req.BaseVersion, service.TimingPatch{
		FocusMinutes:      req.FocusDuration,
		BreakMinutes:      req.BreakDuration,
		LongBreakMinutes:  req.LongBreakDuration,
		LongBreakInterval: req.LongBreakIntervalCycles,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": view})
}

func (h *SessionHandler) SetNote(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req setNoteRequest
	if !bindJSON(c, &req, false) {
		return
	}
	if req.Note == nil {
		writeError(c, apperrors.Validation("note", "note is required"))
		return
	}

	view, apiErr := h.sessionService.SetNote(c.Request.Context(), c.Param("sessionId"), userID, req.BaseVersion, *req.Note)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": view})
}

// run handles the lifecycle commands, which share an optional
// {baseVersion, note} body.
func (h *SessionHandler) run(c *gin.Context, cmd sessionCommand) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req commandRequest
	if !bindJSON(c, &req, true) {
		return
	}
	if req.BaseVersion < 0 {
		writeError(c, apperrors.Validation("baseVersion", "baseVersion must be positive"))
		return
	}

	view, apiErr := cmd(c.Request.Context(), c.Param("sessionId"), userID, service.CommandInput{
		BaseVersion: req.BaseVersion,
		Note:        req.Note,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": view})
}
