package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/phone-enrich/internal/resilience"
)

const (
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
	maxBodyBytes     = 4 << 20
)

// Page is a loaded and parsed document.
type Page struct {
	// URL is the address after redirects.
	URL string
	Doc *goquery.Document
}

// PageLoader navigates to a URL and returns the rendered document.
type PageLoader interface {
	Load(ctx context.Context, url string) (*Page, error)
	Close() error
}

// HTTPLoader loads pages with plain GET requests. It does not run scripts.
type HTTPLoader struct {
	client    *http.Client
	userAgent string
}

// HTTPOption configures an HTTPLoader.
type HTTPOption func(*HTTPLoader)

// WithClient sets the HTTP client.
func WithClient(hc *http.Client) HTTPOption {
	return func(l *HTTPLoader) {
		l.client = hc
	}
}

// WithProxy routes requests through the given proxy URL.
func WithProxy(proxyURL string) HTTPOption {
	return func(l *HTTPLoader) {
		if proxyURL == "" {
			return
		}
		u, err := url.Parse(proxyURL)
		if err != nil {
			return
		}
		l.client.Transport = &http.Transport{
			Proxy:               http.ProxyURL(u),
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
	}
}

// NewHTTPLoader creates an HTTPLoader.
func NewHTTPLoader(opts ...HTTPOption) *HTTPLoader {
	l := &HTTPLoader{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// StatusError is returned when a page responds with a 4xx or 5xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("browser: %s responded with status %d", e.URL, e.StatusCode)
}

// retryableLoad reports whether a failed load is worth another attempt. Error
// statuses are retried only when transient; every other failure is retried.
func retryableLoad(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return resilience.IsTransientHTTPStatus(se.StatusCode)
	}
	return true
}

// Load fetches target and parses the body.
func (l *HTTPLoader) Load(ctx context.Context, target string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, eris.Wrap(err, "browser: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "browser: get")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "browser: read body")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "browser: parse html")
	}
	return &Page{URL: resp.Request.URL.String(), Doc: doc}, nil
}

// Close releases idle connections.
func (l *HTTPLoader) Close() error {
	l.client.CloseIdleConnections()
	return nil
}
