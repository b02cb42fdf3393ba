package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/google/uuid"
	"github.com/xhad/research/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BrowserUserAgent is sent with every request; some servers reject non-browser clients.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

type ScraperConfig struct {
	UserAgent        string
	Timeout          time.Duration
	RateLimit        float64 // requests per second
	MinContentLength int
	Logger           *zap.Logger
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.UserAgent == "" {
		config.UserAgent = BrowserUserAgent
	}
	if config.Timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative")
	}
	if config.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit cannot be negative")
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.MinContentLength <= 0 {
		config.MinContentLength = 1
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	// A zero timeout means no client-side deadline; cancellation comes from ctx.
	return &Scraper{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  config.Logger,
	}, nil
}

func New() *Scraper {
	s, _ := NewWithConfig(ScraperConfig{})
	return s
}

// Fetch loads every URL in order and returns one document per page that
// yielded text. Pages that fail are logged and skipped.
func (s *Scraper) Fetch(ctx context.Context, urls []string) ([]models.Document, error) {
	documents := make([]models.Document, 0, len(urls))

	for _, urlStr := range urls {
		if err := ctx.Err(); err != nil {
			return documents, err
		}

		doc, err := s.fetchOne(ctx, urlStr)
		if err != nil {
			if ctx.Err() != nil {
				return documents, ctx.Err()
			}
			s.logger.Warn("skipping url", zap.String("url", urlStr), zap.Error(err))
			continue
		}

		documents = append(documents, *doc)
	}

	return documents, nil
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false
	}
	return parsedURL.Host != ""
}

func (s *Scraper) fetchOne(ctx context.Context, urlStr string) (*models.Document, error) {
	if !s.shouldProcessURL(urlStr) {
		return nil, fmt.Errorf("unsupported url: %q", urlStr)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	title, content, err := s.extract(body, resp.Request.URL)
	if err != nil {
		return nil, err
	}
	if len([]rune(content)) < s.config.MinContentLength {
		return nil, fmt.Errorf("no text content at %s", urlStr)
	}

	s.logger.Debug("fetched url",
		zap.String("url", urlStr),
		zap.Int("status", resp.StatusCode),
		zap.Int("content_length", len(content)),
	)

	return &models.Document{
		ID:      uuid.NewString(),
		URL:     urlStr,
		Title:   title,
		Content: content,
		Metadata: map[string]interface{}{
			"time":         time.Now(),
			"contentType":  resp.Header.Get("Content-Type"),
			"lastModified": resp.Header.Get("Last-Modified"),
		},
	}, nil
}

// extract prefers the readability article and falls back to the main
// content selectors when readability finds nothing.
func (s *Scraper) extract(body []byte, pageURL *url.URL) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		if content := cleanContent(article.TextContent); content != "" {
			if title == "" {
				title = article.Title
			}
			return title, content, nil
		}
	} else {
		s.logger.Debug("readability failed, using selectors", zap.String("url", pageURL.String()), zap.Error(err))
	}

	return title, extractMainContent(doc), nil
}

var blockElements = "p, h1, h2, h3, h4, h5, h6, li, pre, blockquote, td, th, dt, dd, figcaption"

func extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, header, footer, template, svg").Remove()

	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	root := doc.Find("body")
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			root = selected.First()
			break
		}
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	var paragraphs []string
	root.Find(blockElements).Each(func(_ int, sel *goquery.Selection) {
		// Nested blocks are emitted by their innermost element only.
		if sel.Find(blockElements).Length() > 0 {
			return
		}
		if text := strings.Join(strings.Fields(sel.Text()), " "); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	if len(paragraphs) == 0 {
		return cleanContent(root.Text())
	}
	return cleanContent(strings.Join(paragraphs, "\n\n"))
}

var noisePatterns = []string{
	"Cookie Policy",
	"Accept Cookies",
	"Privacy Policy",
	"Terms of Service",
}

// cleanContent collapses whitespace inside lines and keeps at most one blank
// line between paragraphs.
func cleanContent(content string) string {
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	lines := strings.Split(content, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
