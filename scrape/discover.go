package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pevans/eventfed/apisource"
	"github.com/pevans/eventfed/candidates"
	"github.com/pevans/eventfed/cms"
	"github.com/pevans/eventfed/extract"
	"github.com/pevans/eventfed/fetch"
	"github.com/pevans/eventfed/logger"
	"github.com/pevans/eventfed/model"
	"github.com/pevans/eventfed/render"
	"github.com/pevans/eventfed/store"
)

// DiscoveryState is a step of event-page discovery.
type DiscoveryState string

const (
	StateUnknown             DiscoveryState = "unknown"
	StateCandidatesGenerated DiscoveryState = "candidates-generated"
	StateVerifying           DiscoveryState = "verifying"
	StateFound               DiscoveryState = "found"
	StateExhausted           DiscoveryState = "exhausted"
)

// Signals that can confirm a candidate.
const (
	SignalEvents         = "events"
	SignalStructuredData = "structured-data"
	SignalAPI            = "api"
)

// CandidateCheck records the verification of one candidate.
type CandidateCheck struct {
	URL    string `json:"url"`
	Status int    `json:"status,omitempty"`
	Signal string `json:"signal,omitempty"`
	Error  string `json:"error,omitempty"`
}

// DiscoveryResult is the outcome of DiscoverEventPage.
type DiscoveryResult struct {
	State              DiscoveryState         `json:"state"`
	EventPageURL       string                 `json:"event_page_url,omitempty"`
	EventPagePattern   string                 `json:"event_page_pattern,omitempty"`
	CmsType            model.CmsType          `json:"cms_type"`
	APIEndpoint        string                 `json:"api_endpoint,omitempty"`
	Confidence         float64                `json:"confidence,omitempty"`
	RequiresJavascript bool                   `json:"requires_javascript"`
	Candidates         []candidates.Candidate `json:"candidates,omitempty"`
	Checks             []CandidateCheck       `json:"checks,omitempty"`
}

// DiscoverEventPage locates the events listing of site. Candidates are
// verified one at a time in rank order and the first that answers 200
// with an event signal wins, even if a later candidate would score
// higher. Advertised API endpoints are probed afterwards. The site is
// updated only when something was found.
func (s *Service) DiscoverEventPage(ctx context.Context, site model.Site) (DiscoveryResult, error) {
	log := s.siteLogger(site)
	result := DiscoveryResult{State: StateUnknown, CmsType: model.CmsUnknown}

	if strings.TrimSpace(site.WebsiteURL) == "" {
		s.metrics.RecordDiscovery("error")
		return result, ErrNoWebsite
	}

	homepage := ""
	resp, err := s.fetcher.Get(ctx, site.WebsiteURL, fetch.Options{Timeout: s.cfg.PageTimeout})
	if err != nil {
		log.Warn("homepage fetch failed, falling back to guessed paths", logger.Error(err))
	} else {
		homepage = resp.Body
		result.CmsType = cms.Detect(homepage, site.WebsiteURL)
	}

	result.Candidates = s.discoverer.Discover(ctx, homepage, site.WebsiteURL)
	result.State = StateCandidatesGenerated
	log.Debug("candidates generated", logger.Int("candidates", len(result.Candidates)))

	result.State = StateVerifying
	for _, c := range result.Candidates {
		check, found := s.verify(ctx, site, c.URL)
		result.Checks = append(result.Checks, check.CandidateCheck)
		if !found {
			continue
		}

		result.State = StateFound
		result.EventPageURL = check.URL
		result.EventPagePattern = pathOf(check.URL)
		result.Confidence = check.confidence
		result.RequiresJavascript = check.rendered
		if family := cms.Detect(check.html, check.URL); family != model.CmsUnknown {
			result.CmsType = family
		}
		break
	}

	for _, endpoint := range apisource.DiscoverEndpoints(homepage, site.WebsiteURL) {
		if !s.api.Probe(ctx, endpoint) {
			continue
		}
		result.APIEndpoint = endpoint
		result.Checks = append(result.Checks, CandidateCheck{URL: endpoint, Status: 200, Signal: SignalAPI})
		if result.State != StateFound {
			result.State = StateFound
			result.Confidence = extract.ConfidenceJSONLD
		}
		break
	}

	if result.State != StateFound {
		result.State = StateExhausted
		s.metrics.RecordDiscovery(string(StateExhausted))
		log.Info("no event page found", logger.Int("checked", len(result.Checks)))
		return result, nil
	}

	confidence := result.Confidence
	err = s.store.UpdateSiteDiscovery(ctx, site.ID, store.Discovery{
		EventPageURL:       result.EventPageURL,
		EventPagePattern:   result.EventPagePattern,
		CmsType:            result.CmsType,
		APIEndpoint:        result.APIEndpoint,
		Confidence:         &confidence,
		RequiresJavascript: result.RequiresJavascript,
	})
	if err != nil {
		s.metrics.RecordDiscovery("error")
		return result, fmt.Errorf("failed to save discovery: %w", err)
	}

	s.metrics.RecordDiscovery(string(StateFound))
	log.Info("event page found",
		logger.String("url", result.EventPageURL),
		logger.String("api_endpoint", result.APIEndpoint),
		logger.String("cms", string(result.CmsType)),
		logger.Float64("confidence", result.Confidence))
	return result, nil
}

type verification struct {
	CandidateCheck
	html       string
	confidence float64
	rendered   bool
}

// verify fetches a candidate and looks for events on it. A page that
// shows nothing statically but looks script-driven is rendered once.
func (s *Service) verify(ctx context.Context, site model.Site, candidate string) (verification, bool) {
	v := verification{CandidateCheck: CandidateCheck{URL: candidate}}

	resp, err := s.fetcher.Get(ctx, candidate, fetch.Options{Timeout: s.cfg.ProbeTimeout})
	if resp != nil {
		v.Status = resp.Status
	}
	if err != nil {
		v.Error = err.Error()
		return v, false
	}
	if resp.FinalURL != "" && sameURL(resp.FinalURL, site.WebsiteURL) {
		v.Error = "redirected to homepage"
		return v, false
	}

	v.html = resp.Body
	if s.signal(&v, site) {
		return v, true
	}

	if render.NeedsJavaScript(v.html) {
		if rendered, ok := s.render(ctx, candidate, s.siteLogger(site)); ok {
			v.html = rendered
			if s.signal(&v, site) {
				v.rendered = true
				return v, true
			}
		}
	}
	return v, false
}

// signal runs the extraction chain, then the structured-data probe.
func (s *Service) signal(v *verification, site model.Site) bool {
	report := s.chain.Extract(v.html, extract.Context{
		PageURL: v.URL,
		BaseURL: site.WebsiteURL,
		Cms:     cms.Detect(v.html, v.URL),
	})
	if report.Found() {
		v.Signal = SignalEvents
		v.confidence = report.Best.Confidence
		return true
	}
	if extract.HasStructuredEvents(v.html) {
		v.Signal = SignalStructuredData
		v.confidence = extract.ConfidenceJSONLD
		return true
	}
	return false
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.RawQuery != "" {
		return u.Path + "?" + u.RawQuery
	}
	return u.Path
}

func sameURL(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}
