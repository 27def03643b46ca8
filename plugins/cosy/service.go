package cosy

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/joshp123/geocosy/internal/logger"
	"github.com/joshp123/geocosy/internal/rate"
)

const (
	errStateFailed     = "failed to read thermostat state"
	errSetpointsFailed = "failed to read setpoints"
	errCommandFailed   = "failed to apply command"
	errJournalFailed   = "failed to read command journal"
	errInvalidBodyPref = "invalid body: "
)

type service struct {
	controller *Controller
	log        *logger.Logger
}

type setpointRequest struct {
	TemperatureCelsius *float64 `json:"temperature_celsius" binding:"required"`
}

type presetRequest struct {
	Preset string `json:"preset" binding:"required"`
}

type hibernateRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// serviceRoutes lists what RegisterService mounts, for the plugin manifest.
var serviceRoutes = []string{
	"GET /plugins/cosy/state",
	"GET /plugins/cosy/setpoints",
	"GET /plugins/cosy/setpoints/:preset",
	"PUT /plugins/cosy/setpoints/:preset",
	"POST /plugins/cosy/preset",
	"POST /plugins/cosy/hibernate",
	"GET /plugins/cosy/journal",
}

// RegisterService mounts the control API on group.
func RegisterService(group *gin.RouterGroup, controller *Controller, log *logger.Logger) {
	if log == nil {
		log = logger.Nop()
	}
	s := &service{controller: controller, log: log}

	group.GET("/state", s.getState)
	group.GET("/setpoints", s.getSetpoints)
	group.GET("/setpoints/:preset", s.getSetpoint)
	group.PUT("/setpoints/:preset", s.putSetpoint)
	group.POST("/preset", s.postPreset)
	group.POST("/hibernate", s.postHibernate)
	group.GET("/journal", s.getJournal)
}

func (s *service) getState(c *gin.Context) {
	if !s.configured(c) {
		return
	}
	state, err := s.controller.State(c.Request.Context())
	if err != nil {
		s.logAndJSONError(c, err, errStateFailed)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *service) getSetpoints(c *gin.Context) {
	if !s.configured(c) {
		return
	}
	setpoints, err := s.controller.Setpoints(c.Request.Context())
	if err != nil {
		s.logAndJSONError(c, err, errSetpointsFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"setpoints": setpoints.ByPreset()})
}

func (s *service) getSetpoint(c *gin.Context) {
	if !s.configured(c) {
		return
	}
	preset, err := ParsePreset(c.Param("preset"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	value, err := s.controller.TargetTemperature(c.Request.Context(), preset)
	if err != nil {
		s.logAndJSONError(c, err, errSetpointsFailed, "preset", preset)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preset": preset, "temperature_celsius": value})
}

func (s *service) putSetpoint(c *gin.Context) {
	if !s.configured(c) {
		return
	}
	preset, err := ParsePreset(c.Param("preset"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req setpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	if err := s.controller.SetTargetTemperature(c.Request.Context(), preset, *req.TemperatureCelsius); err != nil {
		s.logAndJSONError(c, err, errCommandFailed, "preset", preset)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "applied", "preset": preset, "temperature_celsius": *req.TemperatureCelsius})
}

func (s *service) postPreset(c *gin.Context) {
	if !s.configured(c) {
		return
	}
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	preset, err := ParsePreset(req.Preset)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.controller.ActivatePreset(c.Request.Context(), preset); err != nil {
		s.logAndJSONError(c, err, errCommandFailed, "preset", preset)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "applied", "preset": preset})
}

func (s *service) postHibernate(c *gin.Context) {
	if !s.configured(c) {
		return
	}
	var req hibernateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	if err := s.controller.SetHibernate(c.Request.Context(), *req.Enabled); err != nil {
		s.logAndJSONError(c, err, errCommandFailed, "hibernate", *req.Enabled)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "applied", "hibernate": *req.Enabled})
}

func (s *service) getJournal(c *gin.Context) {
	if !s.configured(c) {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	entries, err := s.controller.History(c.Request.Context(), limit)
	if errors.Is(err, ErrJournalDisabled) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.logAndJSONError(c, err, errJournalFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *service) configured(c *gin.Context) bool {
	if s.controller == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cosy client not configured"})
		return false
	}
	return true
}

func (s *service) logAndJSONError(c *gin.Context, err error, userMsg string, kv ...interface{}) {
	code := httpStatus(err)
	fields := append([]interface{}{"err", err, "status", code, "path", c.FullPath()}, kv...)
	if code >= http.StatusInternalServerError {
		s.log.Errorw(userMsg, fields...)
	} else {
		s.log.Warnw(userMsg, fields...)
	}
	c.JSON(code, gin.H{"error": userMsg + ": " + err.Error()})
}

// httpStatus maps client errors onto response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedPreset):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDataUnavailable), errors.Is(err, ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, rate.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrConnection):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
