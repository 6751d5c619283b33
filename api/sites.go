package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pevans/eventfed/model"
	"github.com/pevans/eventfed/store"
)

// ListSitesResponse represents the response for GET /api/v1/sites.
type ListSitesResponse struct {
	Sites []model.Site `json:"sites"`
	Total int          `json:"total"`
}

// ListEventsResponse represents the response for GET /api/v1/events.
type ListEventsResponse struct {
	Events []model.PersistedEvent `json:"events"`
	Total  int                    `json:"total"`
}

// HandleListSites handles GET /api/v1/sites.
func (s *Server) HandleListSites(c *gin.Context) {
	filter := store.SiteFilter{}

	if statusParam := c.Query("status"); statusParam != "" {
		status := model.ScrapeStatus(statusParam)
		if model.ParseScrapeStatus(statusParam) != status {
			c.JSON(http.StatusBadRequest, errorResponse("bad_request", "invalid status"))
			return
		}
		filter.Status = &status
	}

	if pageParam := c.Query("has_event_page"); pageParam != "" {
		hasPage, err := strconv.ParseBool(pageParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("bad_request", "invalid has_event_page"))
			return
		}
		filter.HasEventPage = &hasPage
	}

	var ok bool
	if filter.Limit, ok = intQuery(c, "limit"); !ok {
		return
	}
	if filter.Offset, ok = intQuery(c, "offset"); !ok {
		return
	}

	sites, err := s.sites.ListSites(c.Request.Context(), filter)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if sites == nil {
		sites = []model.Site{}
	}

	c.JSON(http.StatusOK, ListSitesResponse{Sites: sites, Total: len(sites)})
}

// HandleGetSite handles GET /api/v1/sites/{id}.
func (s *Server) HandleGetSite(c *gin.Context) {
	site, ok := s.site(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, site)
}

// HandleCreateSite handles POST /api/v1/sites.
func (s *Server) HandleCreateSite(c *gin.Context) {
	var req store.NewSite

	// Bind JSON -- Gin validates required fields automatically
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
		return
	}

	site, err := s.sites.CreateSite(c.Request.Context(), req)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, site)
}

// HandleListEvents handles GET /api/v1/events.
func (s *Server) HandleListEvents(c *gin.Context) {
	filter := store.EventFilter{}

	if siteParam := c.Query("site_id"); siteParam != "" {
		id, err := uuid.Parse(siteParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid site ID"))
			return
		}
		filter.SiteID = &id
	}

	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{
		{"from", &filter.From},
		{"to", &filter.To},
	} {
		raw := c.Query(bound.name)
		if raw == "" {
			continue
		}
		t, err := parseTimeParam(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("bad_request", "invalid "+bound.name+": use RFC 3339 or YYYY-MM-DD"))
			return
		}
		*bound.dst = &t
	}

	var ok bool
	if filter.Limit, ok = intQuery(c, "limit"); !ok {
		return
	}
	if filter.Offset, ok = intQuery(c, "offset"); !ok {
		return
	}

	events, err := s.sites.ListEvents(c.Request.Context(), filter)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if events == nil {
		events = []model.PersistedEvent{}
	}

	c.JSON(http.StatusOK, ListEventsResponse{Events: events, Total: len(events)})
}

// HandleGetEvent handles GET /api/v1/events/:hash.
func (s *Server) HandleGetEvent(c *gin.Context) {
	event, err := s.sites.GetEvent(c.Request.Context(), c.Param("hash"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// parseTimeParam accepts an RFC 3339 timestamp or a plain date.
func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
