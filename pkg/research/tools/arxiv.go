package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mbecker/deep-research/pkg/research"
)

const defaultArxivBaseURL = "https://export.arxiv.org/api/query"

// ArxivBackend implements research.SearchBackend against the arXiv Atom
// API. No results is a normal outcome and returns an empty slice.
type ArxivBackend struct {
	BaseURL    string
	MaxResults int
	Client     *http.Client
}

func NewArxivBackend(maxResults int) *ArxivBackend {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &ArxivBackend{
		BaseURL:    defaultArxivBaseURL,
		MaxResults: maxResults,
		Client:     http.DefaultClient,
	}
}

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	Title   string      `xml:"title"`
	Summary string      `xml:"summary"`
	Links   []arxivLink `xml:"link"`
	ID      string      `xml:"id"`
}

type arxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

func (b *ArxivBackend) Search(ctx context.Context, query string) ([]research.Document, error) {
	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(b.MaxResults))
	params.Add("start", "0")

	apiURL := b.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("arxiv returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal arxiv feed: %w", err)
	}

	docs := make([]research.Document, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		doc := research.Document{
			Title:   strings.TrimSpace(entry.Title),
			Snippet: strings.TrimSpace(entry.Summary),
			URL:     strings.TrimSpace(entry.ID),
		}
		for _, link := range entry.Links {
			if link.Type == "application/pdf" {
				doc.URL = link.Href
				break
			}
		}
		if doc.Title == "" || doc.URL == "" {
			continue
		}
		docs = append(docs, doc)
	}

	slog.Info("arXiv search complete", "query", query, "count", len(docs))
	return docs, nil
}
