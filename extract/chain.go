// Package extract turns an events listing page into ExtractedEvents by
// running a fixed chain of independent strategies and keeping the most
// trustworthy non-empty result.
package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/eventfed/cms"
	"github.com/pevans/eventfed/dateparse"
	"github.com/pevans/eventfed/logger"
	"github.com/pevans/eventfed/model"
)

// Method tags and their fixed confidences.
const (
	MethodCMS       = "cms-selectors"
	MethodJSONLD    = "json-ld"
	MethodGeneric   = "generic-selectors"
	MethodTable     = "table"
	MethodList      = "list"
	MethodCards     = "cards"
	MethodHeuristic = "heuristic"

	ConfidenceCMS       = 0.9
	ConfidenceJSONLD    = 0.95
	ConfidenceGeneric   = 0.8
	ConfidenceTable     = 0.75
	ConfidenceList      = 0.7
	ConfidenceCards     = 0.6
	ConfidenceHeuristic = 0.5
)

// Context describes the page being extracted.
type Context struct {
	// PageURL is the event page; relative links resolve against it.
	PageURL string
	// BaseURL is the site root, used when PageURL cannot serve as a base.
	BaseURL    string
	Cms        model.CmsType
	Selectors  *model.SelectorSet
	DateFormat dateparse.Format
	Parser     *dateparse.Parser
}

func (c Context) parser() *dateparse.Parser {
	if c.Parser != nil {
		return c.Parser
	}
	return dateparse.New()
}

// Outcome is what a strategy found on a page.
type Outcome struct {
	Events []model.ExtractedEvent
	// Selectors is the selector set that produced the events, when the
	// strategy is selector driven.
	Selectors *model.SelectorSet
	Errors    []string
}

// Strategy is one way of finding events on a page.
type Strategy interface {
	Method() string
	Confidence() float64
	Extract(doc *goquery.Document, ctx Context) Outcome
}

// Attempt records how a strategy fared.
type Attempt struct {
	Method     string        `json:"method"`
	Confidence float64       `json:"confidence"`
	Events     int           `json:"events"`
	Errors     []string      `json:"errors,omitempty"`
	Skipped    bool          `json:"skipped,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Report is the result of running the chain on a page.
type Report struct {
	Best     model.StrategyResult
	Attempts []Attempt
	// Selectors is set when a selector-driven strategy won.
	Selectors *model.SelectorSet
}

// Found reports whether any strategy produced events.
func (r Report) Found() bool {
	return len(r.Best.Events) > 0
}

// Chain runs strategies in priority order.
type Chain struct {
	strategies []Strategy
	log        logger.Logger
}

// NewChain returns the standard seven-strategy chain.
func NewChain(catalog *cms.Catalog, log logger.Logger) *Chain {
	if catalog == nil {
		catalog = cms.NewCatalog()
	}
	return NewChainWith(log,
		&cmsStrategy{catalog: catalog},
		&jsonLDStrategy{},
		&genericStrategy{},
		&tableStrategy{},
		&listStrategy{},
		&cardStrategy{},
		&heuristicStrategy{},
	)
}

// NewChainWith builds a chain from explicit strategies, run in the given
// order.
func NewChainWith(log logger.Logger, strategies ...Strategy) *Chain {
	if log == nil {
		log = logger.NewNop()
	}
	return &Chain{strategies: strategies, log: log}
}

// Extract runs every strategy against html. A result replaces the running
// best only when it has events and a strictly greater confidence, so a
// confident empty result never displaces a weaker non-empty one. Strategies
// that cannot beat the current best are skipped.
func (c *Chain) Extract(html string, ctx Context) Report {
	var report Report

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		report.Best.Errors = append(report.Best.Errors, fmt.Sprintf("failed to parse HTML: %v", err))
		return report
	}
	if ctx.Parser == nil {
		ctx.Parser = dateparse.New()
	}

	var best float64
	for _, s := range c.strategies {
		if report.Found() && s.Confidence() <= best {
			report.Attempts = append(report.Attempts, Attempt{Method: s.Method(), Skipped: true})
			continue
		}

		started := time.Now()
		out := c.run(s, doc, ctx)
		out.Events = dedupe(valid(out.Events))

		attempt := Attempt{
			Method:   s.Method(),
			Events:   len(out.Events),
			Errors:   out.Errors,
			Duration: time.Since(started),
		}
		if len(out.Events) > 0 {
			attempt.Confidence = s.Confidence()
		}
		report.Attempts = append(report.Attempts, attempt)

		c.log.Debug("strategy finished",
			logger.String("strategy", s.Method()),
			logger.Int("events", len(out.Events)),
			logger.Int("errors", len(out.Errors)))

		if len(out.Events) > 0 && s.Confidence() > best {
			best = s.Confidence()
			report.Best = model.StrategyResult{
				Events:     out.Events,
				Confidence: s.Confidence(),
				Method:     s.Method(),
				Errors:     out.Errors,
			}
			report.Selectors = out.Selectors
		}
	}

	return report
}

// run isolates a strategy so a panic becomes an error on its outcome.
func (c *Chain) run(s Strategy, doc *goquery.Document, ctx Context) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("strategy panicked",
				logger.String("strategy", s.Method()),
				logger.String("panic", fmt.Sprint(r)))
			out = Outcome{Errors: []string{fmt.Sprintf("%s: panic: %v", s.Method(), r)}}
		}
	}()
	return s.Extract(doc, ctx)
}

// valid keeps only events with a title and a start date.
func valid(events []model.ExtractedEvent) []model.ExtractedEvent {
	out := events[:0]
	for _, ev := range events {
		ev.Clean()
		if ev.Valid() {
			out = append(out, ev)
		}
	}
	return out
}
