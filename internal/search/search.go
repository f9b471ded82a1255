// Package search looks up related web resources for research suggestions
// using the DuckDuckGo instant-answer API.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultEndpoint is the DuckDuckGo instant-answer API.
const DefaultEndpoint = "https://api.duckduckgo.com/"

// maxResults bounds what is collected and cached per query; callers get a
// prefix of it.
const maxResults = 20

// Result is one related resource.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Config configures a Client.
type Config struct {
	Endpoint  string        `json:"endpoint"`
	Timeout   time.Duration `json:"timeout"`
	RatePerS  float64       `json:"rate_per_second"`
	CacheTTL  time.Duration `json:"cache_ttl"`
	UserAgent string        `json:"user_agent"`
}

// Client queries the instant-answer API with a local rate limit and a
// result cache keyed by query.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	cache   *cache.Cache
	logger  *zap.Logger
}

// NewClient creates a search Client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RatePerS <= 0 {
		cfg.RatePerS = 1
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "clippy/1.0"
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerS), 1),
		cache:   cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger:  logger,
	}
}

type instantAnswer struct {
	Heading       string         `json:"Heading"`
	Abstract      string         `json:"Abstract"`
	AbstractURL   string         `json:"AbstractURL"`
	RelatedTopics []relatedTopic `json:"RelatedTopics"`
}

type relatedTopic struct {
	Text     string         `json:"Text"`
	FirstURL string         `json:"FirstURL"`
	Topics   []relatedTopic `json:"Topics"`
}

// Search returns up to limit results for query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}
	key := strings.ToLower(query)
	if v, ok := c.cache.Get(key); ok {
		return truncate(v.([]Result), limit), nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search error %d: %s", resp.StatusCode, string(body))
	}

	var ia instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&ia); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := collect(ia, maxResults)
	c.cache.Set(key, results, cache.DefaultExpiration)
	c.logger.Debug("search complete", zap.String("query", query), zap.Int("results", len(results)))
	return truncate(results, limit), nil
}

// collect puts the abstract first, then related topics, up to limit.
func collect(ia instantAnswer, limit int) []Result {
	var out []Result
	if ia.Abstract != "" {
		title := ia.Heading
		if title == "" {
			title = "Overview"
		}
		out = append(out, Result{Title: title, URL: ia.AbstractURL, Snippet: ia.Abstract})
	}
	var walk func([]relatedTopic)
	walk = func(topics []relatedTopic) {
		for _, t := range topics {
			if len(out) >= limit {
				return
			}
			if len(t.Topics) > 0 {
				walk(t.Topics)
				continue
			}
			if t.Text == "" || t.FirstURL == "" {
				continue
			}
			out = append(out, Result{Title: clip(t.Text, 100), URL: t.FirstURL, Snippet: t.Text})
		}
	}
	walk(ia.RelatedTopics)
	return truncate(out, limit)
}

func truncate(r []Result, n int) []Result {
	if len(r) > n {
		return r[:n:n]
	}
	return r
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
