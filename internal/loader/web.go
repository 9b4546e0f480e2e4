package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	defaultWebTimeout  = 10 * time.Second
	minWebTimeout      = 5 * time.Second
	defaultWebMaxChars = 10000

	// maxWebBodyBytes bounds how much of a response is parsed.
	maxWebBodyBytes = 5 << 20
)

// nonContentSelector lists elements removed before text extraction.
const nonContentSelector = "script, style, nav, footer, header, form, noscript"

// WebConfig holds configuration for the web loader.
type WebConfig struct {
	// Timeout bounds the whole request. Clamped to 5s..10s.
	// Default: 10s
	Timeout time.Duration

	// MaxChars truncates extracted text. Zero uses the default; negative disables truncation.
	// Default: 10000
	MaxChars int

	// UserAgent sent with every request.
	UserAgent string
}

// ApplyDefaults sets default values for unset fields.
func (c *WebConfig) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = defaultWebTimeout
	}
	if c.Timeout < minWebTimeout {
		c.Timeout = minWebTimeout
	}
	if c.Timeout > defaultWebTimeout {
		c.Timeout = defaultWebTimeout
	}
	if c.MaxChars == 0 {
		c.MaxChars = defaultWebMaxChars
	}
	if c.UserAgent == "" {
		c.UserAgent = "ragvisor/1.0 (document loader)"
	}
}

// Web fetches HTML pages and extracts their visible text.
type Web struct {
	client *http.Client
	config WebConfig
	logger *zap.Logger
}

// WebOption configures a Web loader.
type WebOption func(*Web)

// WithHTTPClient replaces the HTTP client. The configured timeout still applies
// through the request context.
func WithHTTPClient(c *http.Client) WebOption {
	return func(w *Web) {
		w.client = c
	}
}

// NewWeb creates a web loader.
func NewWeb(cfg WebConfig, logger *zap.Logger, opts ...WebOption) *Web {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	w := &Web{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Load fetches rawURL and returns its visible text. The source is the URL.
//
// Non-2xx responses and transport failures return a *FetchError.
func (w *Web) Load(ctx context.Context, rawURL string) (Unit, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return Unit{}, &FetchError{URL: rawURL, Err: fmt.Errorf("only absolute http and https URLs are supported")}
	}

	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Unit{}, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", w.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := w.client.Do(req)
	if err != nil {
		return Unit{}, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Unit{}, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebBodyBytes))
	if err != nil {
		return Unit{}, &FetchError{URL: rawURL, Err: fmt.Errorf("reading body: %w", err)}
	}

	var text string
	contentType := resp.Header.Get("Content-Type")
	switch {
	case contentType == "" || strings.Contains(contentType, "html"):
		text, err = ExtractText(string(body))
		if err != nil {
			return Unit{}, fmt.Errorf("%w: parsing %s: %v", ErrLoad, rawURL, err)
		}
	case strings.HasPrefix(contentType, "text/"):
		text = string(body)
	default:
		return Unit{}, fmt.Errorf("%w: unsupported content type %q for %s", ErrLoad, contentType, rawURL)
	}

	unit := Unit{Source: rawURL, Text: text}
	if w.config.MaxChars > 0 {
		if runes := []rune(text); len(runes) > w.config.MaxChars {
			unit.Text = string(runes[:w.config.MaxChars])
			unit.Truncated = true
			w.logger.Warn("content truncated",
				zap.String("url", rawURL),
				zap.Int("max_chars", w.config.MaxChars),
				zap.Int("original_chars", len(runes)),
			)
		}
	}

	return unit, nil
}

// ExtractText returns the visible text of an HTML document, one text node
// per line, after removing script, style and layout chrome.
func ExtractText(document string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return "", err
	}

	doc.Find(nonContentSelector).Remove()

	var lines []string
	for _, n := range doc.Nodes {
		lines = collectText(n, lines)
	}
	return strings.Join(lines, "\n"), nil
}

func collectText(n *html.Node, lines []string) []string {
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			lines = append(lines, t)
		}
		return lines
	case html.CommentNode:
		return lines
	case html.ElementNode:
		if n.Data == "head" {
			// <title> is kept, the rest of head is metadata.
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && c.Data == "title" {
					lines = collectText(c, lines)
				}
			}
			return lines
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		lines = collectText(c, lines)
	}
	return lines
}
