package cms

import (
	"strings"

	"github.com/pevans/eventfed/model"
)

// SelfToken in a selector field means "the container element itself".
const SelfToken = "self"

// Catalog maps each CMS family to ordered selector-set variants and holds
// the generic fallback set shared by every family.
type Catalog struct {
	families map[model.CmsType][]model.SelectorSet
	generic  model.SelectorSet
}

// NewCatalog returns the built-in catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		families: defaultFamilies(),
		generic:  genericSet,
	}
}

// SelectorsFor returns the selector sets to try for a family, most specific
// first: the site's recorded override, the family's variants, then the
// generic fallback. The result is never empty.
func (c *Catalog) SelectorsFor(family model.CmsType, override *model.SelectorSet) []model.SelectorSet {
	var sets []model.SelectorSet
	if override != nil && strings.TrimSpace(override.Container) != "" {
		sets = append(sets, *override)
	}
	sets = append(sets, c.families[family]...)
	return append(sets, c.generic)
}

// Alternatives splits a comma-separated selector list into its members.
// Commas nested inside brackets or parentheses do not split.
func Alternatives(sel string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i, r := range sel {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				if part := strings.TrimSpace(sel[start:i]); part != "" {
					out = append(out, part)
				}
				start = i + 1
			}
		}
	}
	if part := strings.TrimSpace(sel[start:]); part != "" {
		out = append(out, part)
	}
	return out
}

var genericSet = model.SelectorSet{
	Container:   ".event, .events-item, .event-item, .veranstaltung, .agenda-item, .calendar-item, article",
	Title:       "h2, h3, h4, .title, .event-title, a",
	Date:        "time, .date, .event-date, .datum, [class*=date]",
	Location:    ".location, .ort, .venue, .lieu, .luogo, [class*=location]",
	Description: ".description, .teaser, .summary, p",
	Organizer:   ".organizer, .veranstalter, .organisateur",
	URL:         "a",
}

func defaultFamilies() map[model.CmsType][]model.SelectorSet {
	return map[model.CmsType][]model.SelectorSet{
		model.CmsDrupal: {
			{
				Container:   ".view-events .views-row, .view-veranstaltungen .views-row",
				Title:       ".views-field-title, .field--name-title, h3",
				Date:        ".date-display-single, .field--name-field-date time, .views-field-field-date",
				Location:    ".views-field-field-location, .field--name-field-location",
				Description: ".views-field-body, .field--name-body",
				URL:         ".views-field-title a, a",
			},
			{
				Container:   ".node--type-event, .node-event",
				Title:       "h2, .node__title",
				Date:        "time, .field--type-datetime",
				Location:    ".field--name-field-venue, .field--name-field-location",
				Description: ".field--name-body",
				URL:         "h2 a, a",
			},
		},
		model.CmsTypo3: {
			{
				Container:   ".news-list-item, .tx-news .article",
				Title:       "h3, .news-list-header, .header",
				Date:        "time, .news-list-date, .date",
				Location:    ".news-list-location, .location",
				Description: ".teaser-text, .news-list-teaser, p",
				URL:         "h3 a, a",
			},
			{
				Container:   ".tx-cal-controller .vevent, .tx-sfeventmgt .event, .eventlist-item",
				Title:       ".summary, h3, .title",
				Date:        ".dtstart, time, .date",
				Location:    ".location, .ort",
				Description: ".description, p",
				URL:         "a",
			},
		},
		model.CmsWordPress: {
			{
				Container:   ".tribe-events-calendar-list__event, .type-tribe_events, .tribe-event",
				Title:       ".tribe-events-calendar-list__event-title, .tribe-events-list-event-title, h3",
				Date:        ".tribe-event-date-start, time, .tribe-events-schedule",
				Location:    ".tribe-events-venue-details, .tribe-venue",
				Description: ".tribe-events-calendar-list__event-description, .tribe-events-list-event-description",
				Organizer:   ".tribe-organizer",
				URL:         ".tribe-events-calendar-list__event-title a, a",
			},
			{
				Container:   ".eventon_list_event, .mec-event-article, article.event",
				Title:       ".evcal_event_title, .mec-event-title, h2, h3",
				Date:        "time, .evo_date, .mec-start-date-label, .date",
				Location:    ".evo_location, .mec-event-address, .location",
				Description: ".mec-event-description, p",
				URL:         "a",
			},
		},
		model.CmsJoomla: {
			{
				Container:   ".jevents .ev_td_li, .eventlist .event, .dpcalendar-event",
				Title:       ".ev_link_row, .event-title, h3",
				Date:        ".ev_date, .event-date, time",
				Location:    ".ev_location, .event-location",
				Description: ".event-description, p",
				URL:         "a",
			},
		},
		model.CmsContao: {
			{
				Container:   ".mod_eventlist .event, .event.layout_teaser, .event.layout_list",
				Title:       "h2, h3, .title",
				Date:        "time, .date",
				Location:    ".location",
				Description: ".teaser, .ce_text, p",
				URL:         "a",
			},
		},
		model.CmsIWeb: {
			{
				Container:   ".icms-event, .event-list-item, table.icmsTable tr, .anlass",
				Title:       ".icms-event-title, .anlass-titel, td a, a",
				Date:        ".icms-event-date, .anlass-datum, td:first-child",
				Location:    ".icms-event-location, .anlass-ort",
				Description: ".icms-event-lead, p",
				URL:         "a",
			},
		},
		model.CmsOneGov: {
			{
				Container:   ".occurrences li, .occurrence, .event-item",
				Title:       ".occurrence-title, h3, a",
				Date:        ".occurrence-date, time, .date",
				Location:    ".occurrence-location, .location",
				Description: ".occurrence-lead, p",
				URL:         "a",
			},
		},
	}
}
