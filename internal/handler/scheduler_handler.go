package handler

import (
	"context"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"beeper/backend/internal/middleware"
	"beeper/backend/internal/model"
	"beeper/backend/internal/service"
)

type SchedulerHandler struct {
	scheduler *service.SchedulerService
}

type statusRequest struct {
	Status string `json:"status"`
}

type callRequest struct {
	State string `json:"state"`
}

func NewSchedulerHandler(scheduler *service.SchedulerService) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler}
}

func (h *SchedulerHandler) GetState(c *gin.Context) {
	state, err := h.scheduler.State(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *SchedulerHandler) GetStats(c *gin.Context) {
	stats, err := h.scheduler.Stats(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (h *SchedulerHandler) SetStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}
	status, err := model.ParseSchedulerStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_status", "message": err.Error()},
		})
		return
	}

	h.run(c, func(ctx context.Context) error {
		return h.scheduler.SetStatus(ctx, status)
	})
}

func (h *SchedulerHandler) Accept(c *gin.Context) {
	h.run(c, h.scheduler.AcceptBeep)
}

func (h *SchedulerHandler) Decline(c *gin.Context) {
	h.run(c, h.scheduler.DeclineBeep)
}

func (h *SchedulerHandler) Pause(c *gin.Context) {
	h.run(c, h.scheduler.DeclineAndPause)
}

func (h *SchedulerHandler) Expire(c *gin.Context) {
	h.run(c, h.scheduler.ExpireBeep)
}

func (h *SchedulerHandler) Call(c *gin.Context) {
	var req callRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}

	h.run(c, func(ctx context.Context) error {
		return h.scheduler.HandleCallState(ctx, model.CallState(req.State))
	})
}

// Events streams controller events as server-sent events until the client
// goes away.
func (h *SchedulerHandler) Events(c *gin.Context) {
	events := make(chan service.Event, 16)
	unsubscribe := h.scheduler.Subscribe(func(e service.Event) {
		select {
		case events <- e:
		default:
			// Slow clients miss events rather than stall the scheduler.
		}
	})
	defer unsubscribe()

	log.Printf("[http] event stream opened by %s", middleware.Subject(c))
	defer log.Printf("[http] event stream closed for %s", middleware.Subject(c))

	// Commit the headers now so clients know the subscription is live.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e := <-events:
			c.SSEvent(string(e.Type), e)
			return true
		}
	})
}

// run performs a mutating operation and answers with the resulting state.
func (h *SchedulerHandler) run(c *gin.Context, op func(ctx context.Context) error) {
	ctx := c.Request.Context()
	if err := op(ctx); err != nil {
		writeServiceError(c, err)
		return
	}
	state, err := h.scheduler.State(ctx)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}
