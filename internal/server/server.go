// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"imagedim/internal/dimension"
	"imagedim/internal/models"
)

// PreferenceStore is the persistence surface the preference routes need.
// *storage.Storage implements it.
type PreferenceStore interface {
	PreferenceFor(ctx context.Context, userID, channelID int64) (*models.ChatNotificationPreference, error)
	PreferencesForUser(ctx context.Context, userID int64) ([]models.ChatNotificationPreference, error)
	SetPreference(ctx context.Context, userID, channelID int64, enabled bool) (*models.ChatNotificationPreference, error)
}

type Server struct {
	cfg    *models.Config
	router *gin.Engine
	prefs  PreferenceStore
	bulk   *dimension.BulkLookup
	log    *zap.Logger
}

func NewServer(cfg *models.Config, prefs PreferenceStore, bulk *dimension.BulkLookup, log *zap.Logger) *Server {
	r := gin.Default()

	s := &Server{cfg: cfg, router: r, prefs: prefs, bulk: bulk, log: log}

	if cfg.DimensionsEnabled {
		r.POST("/images/dimensions/bulk-lookup", s.handleBulkLookup)
	}

	r.GET("/lexicon/chat-notifications", s.handleListPreferences)
	r.GET("/lexicon/chat-notifications/:channel_id", s.handleShowPreference)
	r.PUT("/lexicon/chat-notifications/:channel_id", s.handleUpdatePreference)

	return s
}

func (s *Server) Start() error {
	return s.router.Run(s.cfg.ServerAddr)
}

func (s *Server) Stop() {
	// No shutdown needed for gin
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

type bulkLookupRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) handleBulkLookup(c *gin.Context) {
	var req bulkLookupRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(req.URLs) > s.cfg.MaxBulkURLs {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Too many URLs (max %d)", s.cfg.MaxBulkURLs)})
		return
	}

	dims, err := s.bulk.DimensionsForURLs(c.Request.Context(), req.URLs)
	if err != nil {
		if errors.Is(err, dimension.ErrTooManyURLs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Too many URLs (max %d)", s.bulk.MaxURLs())})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"dimensions": dims})
}

// userID pulls the acting user from the request. Authentication itself is
// the host platform's problem; by the time requests reach this service the
// platform has already attached the id.
func userID(c *gin.Context) (int64, bool) {
	raw := c.Query("user_id")
	if raw == "" {
		raw = c.GetHeader("X-User-Id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Server) handleListPreferences(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	prefs, err := s.prefs.PreferencesForUser(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(prefs))
	for _, p := range prefs {
		out = append(out, gin.H{"channel_id": p.ChannelID, "push_enabled": p.PushEnabled})
	}
	c.JSON(http.StatusOK, gin.H{"preferences": out})
}

func (s *Server) handleShowPreference(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	channelID, err := strconv.ParseInt(c.Param("channel_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel_id"})
		return
	}

	pref, err := s.prefs.PreferenceFor(c.Request.Context(), uid, channelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// No row means the user never opted out.
	enabled := true
	if pref != nil {
		enabled = pref.PushEnabled
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":      uid,
		"channel_id":   channelID,
		"push_enabled": enabled,
	})
}

type updatePreferenceRequest struct {
	PushEnabled *bool `json:"push_enabled"`
}

func (s *Server) handleUpdatePreference(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	channelID, err := strconv.ParseInt(c.Param("channel_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel_id"})
		return
	}

	var req updatePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PushEnabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "push_enabled parameter required"})
		return
	}

	pref, err := s.prefs.SetPreference(c.Request.Context(), uid, channelID, *req.PushEnabled)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      pref.UserID,
		"channel_id":   pref.ChannelID,
		"push_enabled": pref.PushEnabled,
	})
}
