package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edirooss/blocklog/internal/logsink"
	"github.com/edirooss/blocklog/internal/service"
	"github.com/edirooss/blocklog/internal/storage/filestore"
	"github.com/edirooss/blocklog/internal/storage/redisstore"
)

// TailReader returns the most recently committed bytes.
type TailReader interface {
	Tail() []byte
}

type SinkHandler struct {
	log     *zap.Logger
	loop    *service.SinkLoop
	tail    TailReader
	timeout time.Duration
}

// NewSinkHandler constructs a SinkHandler. tail may be nil.
func NewSinkHandler(log *zap.Logger, loop *service.SinkLoop, tail TailReader) *SinkHandler {
	return &SinkHandler{
		log:     log.Named("sink"),
		loop:    loop,
		tail:    tail,
		timeout: 5 * time.Second,
	}
}

// Register mounts the sink routes on r.
func (h *SinkHandler) Register(r gin.IRouter) {
	r.GET("/api/sink/stats", h.GetStats)
	r.POST("/api/sink/flush", h.Flush)
	r.POST("/api/sink/drain", h.Drain)
	r.POST("/api/sink/rename", h.Rename)
	r.DELETE("/api/sink/buffer", h.ClearBuffer)
	r.GET("/api/sink/tail", h.GetTail)
}

func (h *SinkHandler) do(c *gin.Context, fn func(*logsink.Sink) error) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	return h.loop.Do(ctx, fn)
}

func (h *SinkHandler) GetStats(c *gin.Context) {
	var st logsink.Stats
	err := h.do(c, func(s *logsink.Sink) error {
		st = s.Stats()
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Flush performs a single flush step.
func (h *SinkHandler) Flush(c *gin.Context) {
	h.runAndReport(c, (*logsink.Sink).Flush)
}

// Drain flushes until both buffers are empty.
func (h *SinkHandler) Drain(c *gin.Context) {
	h.runAndReport(c, (*logsink.Sink).Drain)
}

// ClearBuffer discards the primary buffer.
func (h *SinkHandler) ClearBuffer(c *gin.Context) {
	h.runAndReport(c, func(s *logsink.Sink) error {
		s.Clear()
		return nil
	})
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *SinkHandler) Rename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	h.runAndReport(c, func(s *logsink.Sink) error { return s.Rename(req.Name) })
}

// GetTail returns the last committed bytes as text. The optional "bytes"
// query parameter limits the response to the final n bytes.
func (h *SinkHandler) GetTail(c *gin.Context) {
	if h.tail == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "tail disabled"})
		return
	}
	data := h.tail.Tail()
	if v := c.Query("bytes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "bytes must be a non-negative integer"})
			return
		}
		if n < len(data) {
			data = data[len(data)-n:]
		}
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

func (h *SinkHandler) runAndReport(c *gin.Context, fn func(*logsink.Sink) error) {
	var st logsink.Stats
	err := h.do(c, func(s *logsink.Sink) error {
		err := fn(s)
		st = s.Stats()
		return err
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *SinkHandler) fail(c *gin.Context, err error) {
	c.Error(err)
	c.JSON(statusFor(err), gin.H{"message": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, logsink.ErrHalted), errors.Is(err, service.ErrLoopStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, logsink.ErrNotOpen):
		return http.StatusConflict
	case errors.Is(err, os.ErrExist), errors.Is(err, redisstore.ErrExists):
		return http.StatusConflict
	case errors.Is(err, filestore.ErrInvalidName):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
