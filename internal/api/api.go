// Package api exposes capture jobs and schedules over HTTP while serve runs.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tastythames/switch-backup/internal/cache"
	"github.com/tastythames/switch-backup/internal/model"
	"github.com/tastythames/switch-backup/internal/scheduler"
)

// JobQueue is the subset of the capture queue the handlers use.
type JobQueue interface {
	Submit(job scheduler.Job) (string, error)
	Status(id string) (cache.JobStatus, bool)
	Cancel(id string) error
}

// ScheduleLister lists schedules with their next run.
type ScheduleLister interface {
	List() ([]scheduler.ScheduleView, error)
}

// Response is the envelope of every reply.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type backupRequest struct {
	// DeviceID empty captures every device.
	DeviceID string `json:"device_id"`
}

// NewRouter returns the gin engine serving /api.
func NewRouter(queue JobQueue, schedules ScheduleLister, logger *logrus.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	api := router.Group("/api")
	{
		jobs := api.Group("/jobs")
		{
			jobs.POST("", func(c *gin.Context) {
				submitJob(c, queue)
			})
			jobs.GET("/:id", func(c *gin.Context) {
				getJob(c, queue)
			})
			jobs.DELETE("/:id", func(c *gin.Context) {
				cancelJob(c, queue)
			})
		}

		api.GET("/schedules", func(c *gin.Context) {
			views, err := schedules.List()
			if err != nil {
				c.JSON(http.StatusInternalServerError, Response{Error: err.Error()})
				return
			}

			c.JSON(http.StatusOK, Response{Success: true, Data: views})
		})
	}

	return router
}

func submitJob(c *gin.Context, queue JobQueue) {
	var req backupRequest

	// an empty body asks for every device
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
			return
		}
	}

	id, err := queue.Submit(scheduler.Job{DeviceID: req.DeviceID, Source: scheduler.SourceManual})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, model.ErrQueueFull) || errors.Is(err, scheduler.ErrQueueStopped) {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, Response{Error: err.Error()})

		return
	}

	c.JSON(http.StatusAccepted, Response{Success: true, Data: gin.H{"id": id}})
}

func getJob(c *gin.Context, queue JobQueue) {
	st, ok := queue.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, Response{Error: scheduler.ErrJobNotFound.Error()})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: st})
}

func cancelJob(c *gin.Context, queue JobQueue) {
	err := queue.Cancel(c.Param("id"))

	switch {
	case err == nil:
		c.JSON(http.StatusOK, Response{Success: true})
	case errors.Is(err, scheduler.ErrJobNotFound):
		c.JSON(http.StatusNotFound, Response{Error: err.Error()})
	case errors.Is(err, scheduler.ErrJobFinished):
		c.JSON(http.StatusConflict, Response{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, Response{Error: err.Error()})
	}
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Debug("api request")
	}
}
