// Package api exposes sites, events and scrape operations over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pevans/eventfed/logger"
	"github.com/pevans/eventfed/metrics"
	"github.com/pevans/eventfed/model"
	"github.com/pevans/eventfed/scrape"
	"github.com/pevans/eventfed/store"
)

// SiteStore is the persistence the API reads and writes.
type SiteStore interface {
	CreateSite(ctx context.Context, in store.NewSite) (*model.Site, error)
	GetSite(ctx context.Context, id uuid.UUID) (*model.Site, error)
	ListSites(ctx context.Context, filter store.SiteFilter) ([]model.Site, error)
	ListEvents(ctx context.Context, filter store.EventFilter) ([]model.PersistedEvent, error)
	GetEvent(ctx context.Context, hash string) (*model.PersistedEvent, error)
}

// Orchestrator runs discovery and scrapes for single sites.
type Orchestrator interface {
	DiscoverEventPage(ctx context.Context, site model.Site) (scrape.DiscoveryResult, error)
	ScrapeSite(ctx context.Context, site model.Site) ([]model.ExtractedEvent, error)
}

// BatchRunner runs batch scrapes.
type BatchRunner interface {
	ScrapeBatch(ctx context.Context, limit int, maxDistanceKm float64) (scrape.BatchResult, error)
	Start(ctx context.Context, limit int, maxDistanceKm float64) (uuid.UUID, error)
	Status() scrape.Status
}

// Config holds the batch defaults used when a request leaves them out.
type Config struct {
	BatchLimit    int
	MaxDistanceKm float64
}

// Server represents the HTTP API server.
type Server struct {
	sites   SiteStore
	scraper Orchestrator
	batch   BatchRunner
	metrics *metrics.Metrics
	cfg     Config
	log     logger.Logger
}

// NewServer creates a new API server.
func NewServer(sites SiteStore, scraper Orchestrator, batch BatchRunner, m *metrics.Metrics, cfg Config, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{
		sites:   sites,
		scraper: scraper,
		batch:   batch,
		metrics: m,
		cfg:     cfg,
		log:     log,
	}
}

// SetupRouter configures the Gin router with all API routes.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	api := router.Group("/api/v1")
	api.GET("/sites", s.HandleListSites)
	api.POST("/sites", s.HandleCreateSite)
	api.GET("/sites/:id", s.HandleGetSite)
	api.POST("/sites/:id/discover", s.HandleDiscover)
	api.POST("/sites/:id/scrape", s.HandleScrape)
	api.POST("/scrape/batch", s.HandleBatch)
	api.GET("/scrape/status", s.HandleStatus)
	api.GET("/events", s.HandleListEvents)
	api.GET("/events/:hash", s.HandleGetEvent)

	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	return router
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// handleError maps domain errors to HTTP responses.
func (s *Server) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrSiteNotFound), errors.Is(err, store.ErrEventNotFound):
		c.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, store.ErrDuplicateWebsite), errors.Is(err, scrape.ErrBatchInProgress):
		c.JSON(http.StatusConflict, errorResponse("conflict", err.Error()))
	case errors.Is(err, store.ErrInvalidCoordinate):
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
	case errors.Is(err, scrape.ErrNoWebsite), errors.Is(err, scrape.ErrNoEventPage), errors.Is(err, scrape.ErrNoEvents):
		c.JSON(http.StatusUnprocessableEntity, errorResponse("scrape_failed", err.Error()))
	default:
		s.log.Error("request failed", logger.String("path", c.FullPath()), logger.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to process request"))
	}
}

// site loads the site named by the :id parameter, writing the error
// response itself when that fails.
func (s *Server) site(c *gin.Context) (*model.Site, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid site ID"))
		return nil, false
	}

	site, err := s.sites.GetSite(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return nil, false
	}
	return site, true
}

// intQuery reads a non-negative integer query parameter.
func intQuery(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "invalid "+name))
		return 0, false
	}
	return n, true
}
