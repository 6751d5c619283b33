// Package cms classifies the content-management system behind a municipal
// site and maps each family to the structural selectors worth trying first.
package cms

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/eventfed/model"
)

// generatorHints maps substrings of <meta name="generator"> to a family.
// Checked in order; the first hit wins.
var generatorHints = []struct {
	needle string
	cms    model.CmsType
}{
	{"drupal", model.CmsDrupal},
	{"typo3", model.CmsTypo3},
	{"wordpress", model.CmsWordPress},
	{"joomla", model.CmsJoomla},
	{"contao", model.CmsContao},
	{"iweb", model.CmsIWeb},
	{"onegov", model.CmsOneGov},
}

// markers are strong signatures in the raw markup: asset directories,
// settings globals and class names characteristic of each family.
var markers = []struct {
	cms     model.CmsType
	needles []string
}{
	{model.CmsDrupal, []string{"/sites/default/files", "drupal.settings", "drupalsettings", "data-drupal-", "/core/misc/drupal.js"}},
	{model.CmsTypo3, []string{"/typo3conf/", "/typo3temp/", "/fileadmin/", "tx-news", "typo3-"}},
	{model.CmsWordPress, []string{"/wp-content/", "/wp-includes/", "wp-json", "wp-block-"}},
	{model.CmsJoomla, []string{"/media/jui/", "/components/com_", "joomla-script-options", "option=com_"}},
	{model.CmsContao, []string{"/assets/contao/", "/system/modules/", "mod_eventlist", "ce_text"}},
	{model.CmsIWeb, []string{"i-web.ch", "/_docn/", "icms", "iweb-"}},
	{model.CmsOneGov, []string{"onegov", "seantis", "/static/onegov", "govikon"}},
}

// urlHints are substrings of the page URL that identify hosted platforms.
var urlHints = []struct {
	needle string
	cms    model.CmsType
}{
	{"onegov.cloud", model.CmsOneGov},
	{"/index.php?option=com_", model.CmsJoomla},
	{"/typo3", model.CmsTypo3},
	{"/wp-", model.CmsWordPress},
	{"/node/", model.CmsDrupal},
	{"i-web", model.CmsIWeb},
}

// Detect classifies the CMS family of a page. Signals are consulted in
// order: generator meta tag, strong markers, URL hints. It returns
// model.CmsUnknown when nothing matches.
func Detect(html, pageURL string) model.CmsType {
	lower := strings.ToLower(html)

	if c, ok := fromGenerator(html); ok {
		return c
	}

	for _, m := range markers {
		for _, needle := range m.needles {
			if strings.Contains(lower, needle) {
				return m.cms
			}
		}
	}

	lowerURL := strings.ToLower(pageURL)
	for _, h := range urlHints {
		if strings.Contains(lowerURL, h.needle) {
			return h.cms
		}
	}

	return model.CmsUnknown
}

func fromGenerator(html string) (model.CmsType, bool) {
	if html == "" {
		return model.CmsUnknown, false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return model.CmsUnknown, false
	}

	var found model.CmsType
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		if !strings.EqualFold(strings.TrimSpace(name), "generator") {
			return true
		}
		content := strings.ToLower(s.AttrOr("content", ""))
		for _, h := range generatorHints {
			if strings.Contains(content, h.needle) {
				found = h.cms
				return false
			}
		}
		return true
	})

	if found == "" {
		return model.CmsUnknown, false
	}
	return found, true
}
