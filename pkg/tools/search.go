package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/triage/pkg/domain"
)

const (
	tavilyEndpoint       = "https://api.tavily.com/search"
	searchTimeout        = 30 * time.Second
	maxResultContentSize = 1200
)

// SearchProfile restricts a search tool to trusted sources.
type SearchProfile struct {
	MaxResults     int      `yaml:"max_results"`
	IncludeDomains []string `yaml:"include_domains"`
	ExcludeDomains []string `yaml:"exclude_domains"`
}

// Search profiles of the clinic handlers.
var (
	GPSearchProfile = SearchProfile{
		MaxResults:     5,
		IncludeDomains: []string{"mayoclinic.org", "medlineplus.gov", "nhs.uk"},
		ExcludeDomains: []string{"wikipedia.org"},
	}
	SpecialistSearchProfile = SearchProfile{
		MaxResults:     7,
		IncludeDomains: []string{"nejm.org", "thelancet.com", "jamanetwork.com", "bmj.com"},
		ExcludeDomains: []string{"wikipedia.org"},
	}
	PsychologistSearchProfile = SearchProfile{
		MaxResults:     6,
		IncludeDomains: []string{"psychologytoday.com", "apa.org"},
		ExcludeDomains: []string{"wikipedia.org"},
	}
)

// Search queries the Tavily search API.
type Search struct {
	apiKey   string
	endpoint string
	profile  SearchProfile
	client   *http.Client
}

// SearchOption configures the Search tool.
type SearchOption func(*Search)

// WithEndpoint overrides the API URL.
func WithEndpoint(url string) SearchOption {
	return func(s *Search) { s.endpoint = url }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) SearchOption {
	return func(s *Search) { s.client = c }
}

// NewSearch creates a search tool restricted by profile.
func NewSearch(apiKey string, profile SearchProfile, opts ...SearchOption) *Search {
	if profile.MaxResults <= 0 {
		profile.MaxResults = 5
	}
	s := &Search{
		apiKey:   apiKey,
		endpoint: tavilyEndpoint,
		profile:  profile,
		client:   &http.Client{Timeout: searchTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Search) Spec() domain.Tool {
	desc := "Search the web for medical information."
	if len(s.profile.IncludeDomains) > 0 {
		desc += " Results come from " + strings.Join(s.profile.IncludeDomains, ", ") + "."
	}
	return domain.Tool{
		Name:        "search",
		Description: desc,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query.",
				},
			},
			"required": []string{"query"},
		},
	}
}

type tavilyRequest struct {
	Query             string   `json:"query"`
	SearchDepth       string   `json:"search_depth"`
	MaxResults        int      `json:"max_results"`
	IncludeDomains    []string `json:"include_domains,omitempty"`
	ExcludeDomains    []string `json:"exclude_domains,omitempty"`
	IncludeRawContent bool     `json:"include_raw_content"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (s *Search) Call(ctx context.Context, args map[string]any) (string, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(tavilyRequest{
		Query:          query,
		SearchDepth:    "advanced",
		MaxResults:     s.profile.MaxResults,
		IncludeDomains: s.profile.IncludeDomains,
		ExcludeDomains: s.profile.ExcludeDomains,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tavily API returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return "No results found.", nil
	}

	var sb strings.Builder
	for i, r := range parsed.Results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, truncate(strings.TrimSpace(r.Content), maxResultContentSize))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
