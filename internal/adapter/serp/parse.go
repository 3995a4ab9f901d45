// Package serp turns a search engine results page into hits and the plain
// text context handed to the field extractor.
package serp

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/pkg/utils"
)

// Options control how much of a results page is kept.
type Options struct {
	// Limit caps the number of hits, 0 keeps all.
	Limit int
	// Keyword, when set, keeps only hits whose snippet mentions it.
	Keyword string
	// MaxContextChars truncates the context text, 0 disables truncation.
	MaxContextChars int
	// BaseURL resolves relative result links.
	BaseURL string
}

type layout struct {
	block, title, link, snippet string
}

// Google organic results first, then the DuckDuckGo HTML endpoint.
var layouts = []layout{
	{block: ".g", title: "h3", link: "a[href]", snippet: ".VwiC3b, [data-sncf], .st"},
	{block: ".result", title: ".result__a", link: "a.result__a[href]", snippet: ".result__snippet"},
}

// Parse extracts result hits from htmlContent. When the page carries no
// recognisable result blocks, the visible body text becomes the context.
func Parse(htmlContent string, opts Options) ([]entity.SearchHit, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, "", fmt.Errorf("parse results page: %w", err)
	}

	var base *url.URL
	if opts.BaseURL != "" {
		base, _ = url.Parse(opts.BaseURL)
	}

	for _, l := range layouts {
		blocks := doc.Find(l.block)
		if blocks.Length() == 0 {
			continue
		}
		hits := collect(blocks, l, base, opts)
		return hits, truncate(FormatHits(hits), opts.MaxContextChars), nil
	}

	doc.Find("script, style, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	return nil, truncate(text, opts.MaxContextChars), nil
}

func collect(blocks *goquery.Selection, l layout, base *url.URL, opts Options) []entity.SearchHit {
	keyword := strings.ToLower(strings.TrimSpace(opts.Keyword))
	var hits []entity.SearchHit

	blocks.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if opts.Limit > 0 && i >= opts.Limit {
			return false
		}
		hit := entity.SearchHit{
			Title:   clean(s.Find(l.title).First().Text()),
			Snippet: clean(s.Find(l.snippet).First().Text()),
		}
		if href, ok := s.Find(l.link).First().Attr("href"); ok {
			hit.Link = resolve(base, href)
		}
		if hit.Title == "" && hit.Link == "" && hit.Snippet == "" {
			return true
		}
		if keyword != "" && !strings.Contains(strings.ToLower(hit.Snippet), keyword) {
			return true
		}
		hits = append(hits, hit)
		return true
	})
	return hits
}

func resolve(base *url.URL, href string) string {
	href = utils.UnwrapRedirect(href)
	if base == nil || strings.HasPrefix(href, "http") {
		return href
	}
	abs, err := utils.ToAbsoluteURL(base, href)
	if err != nil {
		return href
	}
	return abs
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FormatHits renders hits as the Title/Link/Snippet blocks the extractor
// reads as context.
func FormatHits(hits []entity.SearchHit) string {
	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "Title: %s\nLink: %s\nSnippet: %s\n\n", h.Title, h.Link, h.Snippet)
	}
	return strings.TrimSpace(b.String())
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
