package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pevans/eventfed/model"
	"github.com/pevans/eventfed/scrape"
	"github.com/pevans/eventfed/store"
)

// ScrapeResponse represents the response for POST /api/v1/sites/{id}/scrape.
type ScrapeResponse struct {
	Site   *model.Site `json:"site"`
	Events int         `json:"events"`
}

// BatchRequest represents the request for POST /api/v1/scrape/batch.
type BatchRequest struct {
	Limit         *int     `json:"limit,omitempty"`
	MaxDistanceKm *float64 `json:"max_distance_km,omitempty"`
	// Wait runs the batch within the request instead of in the background.
	Wait bool `json:"wait,omitempty"`
}

// BatchStartedResponse is returned when a batch runs in the background.
type BatchStartedResponse struct {
	RunID string `json:"run_id"`
}

// HandleDiscover handles POST /api/v1/sites/{id}/discover.
func (s *Server) HandleDiscover(c *gin.Context) {
	site, ok := s.site(c)
	if !ok {
		return
	}

	result, err := s.scraper.DiscoverEventPage(c.Request.Context(), *site)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleScrape handles POST /api/v1/sites/{id}/scrape.
func (s *Server) HandleScrape(c *gin.Context) {
	site, ok := s.site(c)
	if !ok {
		return
	}

	events, err := s.scraper.ScrapeSite(c.Request.Context(), *site)
	if err != nil {
		if isSentinel(err) {
			s.handleError(c, err)
			return
		}
		c.JSON(http.StatusBadGateway, errorResponse("scrape_failed", err.Error()))
		return
	}

	// Return the site as the scrape left it
	updated, err := s.sites.GetSite(c.Request.Context(), site.ID)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ScrapeResponse{Site: updated, Events: len(events)})
}

// HandleBatch handles POST /api/v1/scrape/batch. A batch that is already
// running yields 409.
func (s *Server) HandleBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}

	limit := s.cfg.BatchLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	maxDistance := s.cfg.MaxDistanceKm
	if req.MaxDistanceKm != nil {
		maxDistance = *req.MaxDistanceKm
	}
	if limit < 0 || maxDistance < 0 {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", "limit and max_distance_km must not be negative"))
		return
	}

	if req.Wait {
		result, err := s.batch.ScrapeBatch(c.Request.Context(), limit, maxDistance)
		if err != nil {
			s.handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	// The batch outlives the request
	runID, err := s.batch.Start(context.WithoutCancel(c.Request.Context()), limit, maxDistance)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, BatchStartedResponse{RunID: runID.String()})
}

// HandleStatus handles GET /api/v1/scrape/status.
func (s *Server) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.batch.Status())
}

func isSentinel(err error) bool {
	for _, target := range []error{
		store.ErrSiteNotFound,
		scrape.ErrNoWebsite,
		scrape.ErrNoEventPage,
		scrape.ErrNoEvents,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
