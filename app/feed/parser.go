package feed

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"
)

// Parser turns remote JSON trees into feed windows.
type Parser struct {
	sanitizer *Sanitizer
	location  *time.Location
}

// NewParser returns a parser reading all-day dates in loc.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{
		sanitizer: NewSanitizer(),
		location:  loc,
	}
}

// PostInfo reads the version token and total result count of a post feed.
func (p *Parser) PostInfo(root gjson.Result) (PostInfo, error) {
	feed := root.Get("feed")
	if !feed.IsObject() {
		return PostInfo{}, fmt.Errorf("response has no feed object")
	}

	version := feed.Get("updated.$t")
	if !version.Exists() || version.String() == "" {
		return PostInfo{}, fmt.Errorf("feed has no updated token")
	}

	total := feed.Get("openSearch$totalResults.$t")
	if !total.Exists() {
		return PostInfo{}, fmt.Errorf("feed has no total results count")
	}

	return PostInfo{
		Version:      version.String(),
		TotalResults: int(total.Int()),
	}, nil
}

// PostWindow reads one page of posts. Entries without a parsable
// published date are dropped and counted in Skipped.
func (p *Parser) PostWindow(root gjson.Result) (PostWindow, error) {
	feed := root.Get("feed")
	if !feed.IsObject() {
		return PostWindow{}, fmt.Errorf("response has no feed object")
	}

	version := feed.Get("updated.$t").String()
	if version == "" {
		return PostWindow{}, fmt.Errorf("feed has no updated token")
	}

	window := PostWindow{Version: version, Entries: []PostEntry{}}
	for _, entry := range feed.Get("entry").Array() {
		parsed, err := p.postEntry(entry)
		if err != nil {
			slog.Debug("Skipping post entry", "error", err)
			window.Skipped++
			continue
		}
		window.Entries = append(window.Entries, parsed)
	}

	return window, nil
}

func (p *Parser) postEntry(entry gjson.Result) (PostEntry, error) {
	published, err := ParseTimestamp(entry.Get("published.$t").String())
	if err != nil {
		return PostEntry{}, err
	}

	body := entry.Get("content.$t").String()
	if body == "" {
		body = entry.Get("summary.$t").String()
	}

	parsed := PostEntry{
		PublishedAt: published,
		Title:       entry.Get("title.$t").String(),
		BodyHTML:    p.sanitizer.Body(body),
		Excerpt:     p.sanitizer.Excerpt(body),
		URL:         entry.Get(`link.#(rel=="alternate").href`).String(),
		Categories:  stringArray(entry.Get("category.#.term")),
		Authors:     stringArray(entry.Get("author.#.name.$t")),
	}

	return parsed, nil
}

// EventVersion reads the version token of a calendar response.
func (p *Parser) EventVersion(root gjson.Result) (string, error) {
	version := root.Get("updated").String()
	if version == "" {
		return "", fmt.Errorf("calendar has no updated token")
	}
	return version, nil
}

// EventWindow reads one page of calendar events. Unparsable fields are
// left absent.
func (p *Parser) EventWindow(root gjson.Result) (EventWindow, error) {
	version, err := p.EventVersion(root)
	if err != nil {
		return EventWindow{}, err
	}

	window := EventWindow{Version: version, Events: []Event{}}
	for _, item := range root.Get("items").Array() {
		window.Events = append(window.Events, Event{
			Title:       optionalString(item.Get("summary")),
			Description: optionalString(item.Get("description")),
			Location:    optionalString(item.Get("location")),
			StartAt:     p.eventTime(item.Get("start")),
			EndAt:       p.eventTime(item.Get("end")),
		})
	}

	return window, nil
}

// eventTime prefers the exact dateTime and falls back to the all-day date.
func (p *Parser) eventTime(field gjson.Result) *time.Time {
	if dateTime := field.Get("dateTime"); dateTime.Exists() {
		if t, err := ParseTimestamp(dateTime.String()); err == nil {
			return &t
		}
	}
	if date := field.Get("date"); date.Exists() {
		if t, err := ParseDate(date.String(), p.location); err == nil {
			return &t
		}
	}
	return nil
}

func optionalString(value gjson.Result) *string {
	if !value.Exists() || value.Type == gjson.Null {
		return nil
	}
	s := value.String()
	return &s
}

func stringArray(value gjson.Result) []string {
	values := []string{}
	for _, v := range value.Array() {
		if s := v.String(); s != "" {
			values = append(values, s)
		}
	}
	return values
}
