package snapshot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"snapseal/config"
	"snapseal/logging"
	"snapseal/middleware"
	"snapseal/pkg/models"
	"snapseal/pkg/repository"
)

// OrganizationHeader carries the tenant scope for every API call. The
// gateway in front of this service authenticates the caller and injects it.
const OrganizationHeader = "X-Organization-ID"

const organizationContextKey = "organizationID"

// Server exposes the snapshot service over HTTP
type Server struct {
	router  *gin.Engine
	service *Service
	repo    *repository.Repository
	logger  *logging.Logger
}

// NewServer creates a snapshot API server
func NewServer(service *Service, repo *repository.Repository, cfg *config.Config) *Server {
	s := &Server{
		router:  gin.Default(),
		service: service,
		repo:    repo,
		logger:  logging.GetLogger(),
	}

	s.setupRoutes(cfg)
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes(cfg *config.Config) {
	// Configure CORS - must be first middleware to handle preflight
	if cfg.Security.CORS.Enabled {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Security.CORS.AllowedOrigins,
			AllowMethods:     cfg.Security.CORS.AllowedMethods,
			AllowHeaders:     cfg.Security.CORS.AllowedHeaders,
			ExposeHeaders:    []string{"Content-Length", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	if cfg.Security.RateLimiting.Enabled {
		limiter := middleware.NewRateLimiter(cfg)
		limiter.PrintRateLimitInfo(cfg.Service.Name)
		s.router.Use(limiter.Handler())
	}

	// Health check (no organization scope required)
	s.router.GET("/health", s.healthCheck)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	v1.Use(s.organizationMiddleware())
	{
		snapshots := v1.Group("/snapshots")
		{
			snapshots.POST("", s.createSnapshot)
			snapshots.GET("", s.listSnapshots)
			snapshots.GET("/:id", s.getSnapshot)
			snapshots.POST("/:id/lock", s.lockSnapshot)
			snapshots.GET("/:id/manifest", s.getManifest)
			snapshots.POST("/:id/verify", s.verifySnapshot)
			snapshots.POST("/:id/package", s.packageSnapshot)
		}
	}
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	s.logger.Startup("Starting snapshot API server on %s", addr)
	return s.router.Run(addr)
}

// Handler exposes the underlying router, mainly for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// organizationMiddleware extracts and validates the tenant scope header
func (s *Server) organizationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(OrganizationHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("%s header is required", OrganizationHeader),
			})
			return
		}

		organizationID, err := uuid.Parse(raw)
		if err != nil || organizationID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("%s header is not a valid UUID", OrganizationHeader),
			})
			return
		}

		c.Set(organizationContextKey, organizationID)
		c.Next()
	}
}

func (s *Server) organizationFromContext(c *gin.Context) uuid.UUID {
	value, exists := c.Get(organizationContextKey)
	if !exists {
		return uuid.Nil
	}
	organizationID, ok := value.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return organizationID
}

// healthCheck returns the server health status
func (s *Server) healthCheck(c *gin.Context) {
	if err := s.repo.Ping(context.Background()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"message": "database connection failed",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "snapshot-api",
		"version": "1.0.0",
	})
}

// createSnapshot creates a new open snapshot
func (s *Server) createSnapshot(c *gin.Context) {
	var req models.CreateSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot, err := s.service.CreateSnapshot(c.Request.Context(), s.organizationFromContext(c), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, snapshot)
}

// listSnapshots lists the organization's snapshots
func (s *Server) listSnapshots(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	snapshots, err := s.service.ListSnapshots(c.Request.Context(), s.organizationFromContext(c), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshots": snapshots,
		"count":     len(snapshots),
		"limit":     limit,
		"offset":    offset,
	})
}

// getSnapshot retrieves one snapshot
func (s *Server) getSnapshot(c *gin.Context) {
	id, err := s.parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot ID"})
		return
	}

	snapshot, err := s.service.GetSnapshot(c.Request.Context(), id, s.organizationFromContext(c))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// lockSnapshot freezes a snapshot and returns its signed manifest
func (s *Server) lockSnapshot(c *gin.Context) {
	id, err := s.parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot ID"})
		return
	}

	signed, err := s.service.LockSnapshot(c.Request.Context(), id, s.organizationFromContext(c))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, signed)
}

// getManifest returns the signed manifest of a locked snapshot
func (s *Server) getManifest(c *gin.Context) {
	id, err := s.parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot ID"})
		return
	}

	signed, err := s.service.GetManifest(c.Request.Context(), id, s.organizationFromContext(c))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, signed)
}

// verifySnapshot re-verifies a locked snapshot against storage
func (s *Server) verifySnapshot(c *gin.Context) {
	id, err := s.parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot ID"})
		return
	}

	result, err := s.service.VerifySnapshot(c.Request.Context(), id, s.organizationFromContext(c))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// packageSnapshot exports an evidence package for a locked snapshot
func (s *Server) packageSnapshot(c *gin.Context) {
	id, err := s.parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot ID"})
		return
	}

	includeFiles, _ := strconv.ParseBool(c.DefaultQuery("include_files", "false"))

	result, err := s.service.PackageSnapshot(c.Request.Context(), id, s.organizationFromContext(c), includeFiles)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// respondError maps service errors onto HTTP status codes. A snapshot that
// belongs to another organization answers exactly like one that does not
// exist.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrSnapshotNotFound), errors.Is(err, models.ErrManifestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrSnapshotLocked), errors.Is(err, models.ErrSnapshotNotLocked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidSnapshotName),
		errors.Is(err, models.ErrInvalidOrganizationID),
		errors.Is(err, models.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidFileRow), errors.Is(err, models.ErrInvalidManifest):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		s.logger.Error("snapshot API error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func (s *Server) parseUUID(id string) (uuid.UUID, error) {
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid UUID format")
	}
	return parsedID, nil
}
