package render

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// minVisibleText is the amount of body text below which a page that ships
// scripts is assumed to build its content client-side.
const minVisibleText = 200

// appRoots are mount points of single-page application frameworks.
var appRoots = []string{"#app", "#root", "#__next", "#__nuxt", "[ng-app]", "[data-reactroot]", "app-root"}

// widgetMarkers indicate calendars that load their entries over XHR.
var widgetMarkers = []string{"fullcalendar", "data-events-url", "eventon", "timely-calendar"}

// NeedsJavaScript guesses whether a statically fetched page has to be
// rendered before its events can be read.
func NeedsJavaScript(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}

	scripts := doc.Find("script").Length()
	if scripts == 0 {
		return false
	}

	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	visible := len([]rune(strings.Join(strings.Fields(body.Text()), " ")))
	if visible < minVisibleText {
		return true
	}

	for _, sel := range appRoots {
		root := doc.Find(sel).First()
		if root.Length() > 0 && strings.TrimSpace(root.Text()) == "" {
			return true
		}
	}

	noscript := strings.ToLower(doc.Find("noscript").Text())
	if strings.Contains(noscript, "javascript") && visible < 4*minVisibleText {
		return true
	}

	lower := strings.ToLower(html)
	for _, marker := range widgetMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
