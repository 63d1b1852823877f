package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"
)

type Generator struct {
	selfBaseURL string
	version     string
}

// NewGenerator returns a generator whose self links point below selfBaseURL.
func NewGenerator(selfBaseURL, version string) *Generator {
	return &Generator{
		selfBaseURL: strings.TrimRight(selfBaseURL, "/"),
		version:     version,
	}
}

// Run renders cached posts of a feed as RSS 2.0. Posts are expected newest first.
func (g *Generator) Run(feedConfig *Config, posts []Post) (string, error) {
	if feedConfig == nil {
		return "", fmt.Errorf("feed config is nil")
	}

	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:media="http://search.yahoo.com/mrss/">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", cmp.Or(feedConfig.Title, feedConfig.Name), 4)
	g.writeElement(&buf, "link", feedConfig.BaseURL, 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Cached posts from %s", cmp.Or(feedConfig.BaseURL, feedConfig.Name)), 4)

	selfLink := fmt.Sprintf("%s/feeds/%s", g.selfBaseURL, feedConfig.Name)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	lastBuildDate := time.Now().In(time.Local)
	if len(posts) > 0 {
		lastBuildDate = posts[0].PublishedAt
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Feed-Sync/%s", g.version), 4)

	for _, post := range posts {
		g.writeItem(&buf, post)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, post Post) {
	buf.WriteString("    <item>\n")

	guid := post.URL
	if guid == "" {
		guid = FormatCursor(post.PublishedAt)
	}
	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(guid)))
	xml.EscapeText(buf, []byte(guid))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", post.Title, 6)
	g.writeElement(buf, "link", post.URL, 6)
	g.writeElement(buf, "description", cmp.Or(post.Excerpt, "No description available"), 6)

	if post.BodyHTML != "" {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(strings.ReplaceAll(post.BodyHTML, "]]>", "]]]]><![CDATA[>"))
		buf.WriteString("]]></content:encoded>\n")
	}

	g.writeElement(buf, "pubDate", post.PublishedAt.Format(time.RFC1123Z), 6)

	for _, tag := range post.Tags {
		g.writeElement(buf, "category", tag, 6)
	}

	if g.isURL(post.LeadIcon) {
		buf.WriteString(fmt.Sprintf("      <media:thumbnail url=\"%s\" />\n", html.EscapeString(post.LeadIcon)))
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return (len(s) > 7 && s[:7] == "http://") || (len(s) > 8 && s[:8] == "https://")
}
