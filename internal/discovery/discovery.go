// Package discovery finds candidate sources for a query through news search
// feeds.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/source"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/logger"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"
)

// PageTypeNews marks sources that came from a news feed.
const PageTypeNews = "news"

// Provider searches one engine or feed for a query.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]source.Source, error)
}

// FeedProvider queries an RSS or Atom search endpoint. The URL template
// holds a single %s that receives the escaped query.
type FeedProvider struct {
	name       string
	template   string
	userAgent  string
	maxResults int
	client     *http.Client
}

func NewFeedProvider(name string, cfg config.DiscoveryConfig, userAgent string, client *http.Client) *FeedProvider {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &FeedProvider{
		name:       name,
		template:   cfg.FeedURLTemplate,
		userAgent:  userAgent,
		maxResults: cfg.MaxResults,
		client:     client,
	}
}

func (p *FeedProvider) Name() string { return p.name }

func (p *FeedProvider) Search(ctx context.Context, query string) ([]source.Source, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	feedURL := fmt.Sprintf(p.template, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building feed request: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed %s: %w", p.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned %s", p.name, resp.Status)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", p.name, err)
	}

	out := make([]source.Source, 0, len(feed.Items))
	for _, it := range feed.Items {
		if p.maxResults > 0 && len(out) >= p.maxResults {
			break
		}
		if s, ok := fromItem(it); ok {
			out = append(out, s)
		}
	}
	return source.DedupeByURL(out), nil
}

func fromItem(it *gofeed.Item) (source.Source, bool) {
	link := strings.TrimSpace(it.Link)
	if link == "" {
		return source.Source{}, false
	}
	s := source.Source{
		URL:         link,
		Title:       strings.TrimSpace(it.Title),
		Description: plainText(it.Description),
		PageType:    PageTypeNews,
	}
	switch {
	case it.PublishedParsed != nil:
		t := it.PublishedParsed.UTC()
		s.TimePublished = &t
	case it.UpdatedParsed != nil:
		t := it.UpdatedParsed.UTC()
		s.TimePublished = &t
	}
	if it.Image != nil && it.Image.URL != "" {
		s.ImageLinks = append(s.ImageLinks, it.Image.URL)
	}
	for _, enc := range it.Enclosures {
		switch {
		case strings.HasPrefix(enc.Type, "image/"):
			s.ImageLinks = append(s.ImageLinks, enc.URL)
		case strings.HasPrefix(enc.Type, "video/"):
			s.VideoLinks = append(s.VideoLinks, enc.URL)
		}
	}
	s.ImageLinks = uniq(s.ImageLinks)
	s.VideoLinks = uniq(s.VideoLinks)
	return s, true
}

func uniq(links []string) []string {
	if len(links) < 2 {
		return links
	}
	seen := make(map[string]struct{}, len(links))
	out := links[:0]
	for _, l := range links {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// plainText strips markup from feed descriptions, which often carry HTML.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	text, err := fetch.Normalize(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.ReplaceAll(text, "\n", " ")
}

// Aggregate runs every query against every provider concurrently and merges
// the results, keeping the first occurrence of each URL in provider then
// query order. Failing calls are logged and skipped; an error is returned
// only when every call failed.
func Aggregate(ctx context.Context, providers []Provider, queries []string, timeout time.Duration) ([]source.Source, error) {
	log := logger.FromContext(ctx).With("component", "discovery")
	results := make([][]source.Source, len(providers)*len(queries))
	errs := make([]error, len(results))

	var g errgroup.Group
	g.SetLimit(8)
	for pi, p := range providers {
		for qi, q := range queries {
			slot := pi*len(queries) + qi
			g.Go(func() error {
				callCtx := ctx
				if timeout > 0 {
					var cancel context.CancelFunc
					callCtx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				found, err := p.Search(callCtx, q)
				if err != nil {
					errs[slot] = fmt.Errorf("%s %q: %w", p.Name(), q, err)
					log.Warn("discovery provider failed", "provider", p.Name(), "query", q, "error", err)
					return nil
				}
				results[slot] = found
				return nil
			})
		}
	}
	_ = g.Wait()

	var merged []source.Source
	failed := 0
	for i, r := range results {
		if errs[i] != nil {
			failed++
			continue
		}
		merged = append(merged, r...)
	}
	if len(results) > 0 && failed == len(results) {
		return nil, errors.Join(errs...)
	}
	merged = source.DedupeByURL(merged)
	log.Info("discovery complete", "providers", len(providers), "queries", len(queries), "sources", len(merged), "failed_calls", failed)
	return merged, nil
}
