package feed

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	blogBaseTemplate = "http://%s.blogspot.ca"
	calendarAPIBase  = "https://www.googleapis.com/calendar/v3"
)

// BlogBaseURL returns the public base URL of a hosted blog.
func BlogBaseURL(blogID string) string {
	return fmt.Sprintf(blogBaseTemplate, blogID)
}

// PostProbeURL asks for the feed header only.
func PostProbeURL(c *Config) string {
	query := url.Values{}
	query.Set("alt", "json")
	query.Set("max-results", "0")
	return postsEndpoint(c) + "?" + query.Encode()
}

// PostWindowURL asks for the newest page of posts, or when publishedMax is
// set, the newest page published strictly before it.
func PostWindowURL(c *Config, publishedMax *time.Time) string {
	query := url.Values{}
	query.Set("alt", "json")
	query.Set("max-results", strconv.Itoa(c.Settings.PageSize))
	if publishedMax != nil {
		query.Set("published-max", FormatCursor(*publishedMax))
	}
	return postsEndpoint(c) + "?" + query.Encode()
}

// EventProbeURL asks for a single already-started event, enough to read
// the calendar's version token.
func EventProbeURL(c *Config, now time.Time) string {
	query := url.Values{}
	query.Set("maxResults", "1")
	query.Set("timeMax", FormatCursor(now))
	query.Set("key", c.APIKey)
	return eventsEndpoint(c) + "?" + query.Encode()
}

// EventWindowURL asks for events ordered by start time, starting at or
// after timeMin when it is set.
func EventWindowURL(c *Config, timeMin *time.Time) string {
	query := url.Values{}
	query.Set("maxResults", strconv.Itoa(c.Settings.PageSize))
	query.Set("orderBy", "startTime")
	query.Set("singleEvents", "true")
	if timeMin != nil {
		query.Set("timeMin", FormatCursor(*timeMin))
	}
	query.Set("key", c.APIKey)
	return eventsEndpoint(c) + "?" + query.Encode()
}

func postsEndpoint(c *Config) string {
	return strings.TrimRight(c.BaseURL, "/") + "/feeds/posts/default"
}

func eventsEndpoint(c *Config) string {
	base := c.BaseURL
	if base == "" {
		base = calendarAPIBase
	}
	return strings.TrimRight(base, "/") + "/calendars/" + url.PathEscape(c.CalendarID) + "/events"
}
