// Package probe checks whether a website answers before it is sent to the
// scraping job.
package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/phone-enrich/internal/ident"
	"github.com/sells-group/phone-enrich/internal/model"
)

// Failure reasons recorded on unreachable websites.
const (
	ReasonEmptyURL         = "Empty URL"
	ReasonSSL              = "SSL Error"
	ReasonTimeout          = "Timeout"
	ReasonConnection       = "Connection Failed"
	ReasonTooManyRedirects = "Too Many Redirects"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 8
	maxRedirects       = 10
	userAgent          = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
)

var errTooManyRedirects = errors.New("probe: too many redirects")

// Checker reports website reachability.
type Checker interface {
	Check(ctx context.Context, raw string) model.ProbeResult
	CheckAll(ctx context.Context, urls []string) []model.ProbeResult
}

// Cache stores probe results between runs.
type Cache interface {
	GetCachedProbe(ctx context.Context, url string) (*model.ProbeResult, error)
	SetCachedProbe(ctx context.Context, result model.ProbeResult, ttl time.Duration) error
}

// Prober implements Checker with HEAD requests.
type Prober struct {
	client      *http.Client
	limiter     *rate.Limiter
	concurrency int
	cache       Cache
	ttl         time.Duration
}

// Option configures a Prober.
type Option func(*Prober)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client. Its redirect policy is overridden.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Prober) {
		c := *hc
		p.client = &c
	}
}

// WithConcurrency bounds parallel checks in CheckAll.
func WithConcurrency(n int) Option {
	return func(p *Prober) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithRate limits requests per second across all checks. Zero disables it.
func WithRate(perSec float64) Option {
	return func(p *Prober) {
		if perSec > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perSec), int(perSec)+1)
		}
	}
}

// WithCache enables a result cache with the given TTL.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(p *Prober) {
		p.cache = c
		p.ttl = ttl
	}
}

// New creates a Prober.
func New(opts ...Option) *Prober {
	p := &Prober{
		client:      &http.Client{Timeout: defaultTimeout},
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errTooManyRedirects
		}
		return nil
	}
	return p
}

// Check probes raw. A missing scheme gets https://; an https failure (HTTP
// status >= 400, certificate or connection error) is retried once over http.
func (p *Prober) Check(ctx context.Context, raw string) model.ProbeResult {
	raw = strings.TrimSpace(raw)
	res := model.ProbeResult{URL: raw, CheckedAt: time.Now().UTC()}
	if raw == "" {
		res.Reason = ReasonEmptyURL
		return res
	}

	if p.cache != nil {
		cached, err := p.cache.GetCachedProbe(ctx, raw)
		if err != nil {
			zap.L().Debug("probe cache lookup failed", zap.String("url", raw), zap.Error(err))
		} else if cached != nil {
			return *cached
		}
	}

	target := ident.EnsureScheme(raw)
	final, reason, fallback := p.head(ctx, target)
	if fallback && strings.HasPrefix(strings.ToLower(target), "https://") {
		httpURL := "http://" + target[len("https://"):]
		f2, r2, _ := p.head(ctx, httpURL)
		if r2 == "" {
			final, reason = f2, ""
		} else if strings.HasPrefix(reason, "HTTP ") {
			reason = r2
		}
	}

	if reason == "" {
		res.Reachable = true
		res.FinalURL = final
	} else {
		res.Reason = reason
	}

	if p.cache != nil && ctx.Err() == nil {
		if err := p.cache.SetCachedProbe(ctx, res, p.ttl); err != nil {
			zap.L().Debug("probe cache store failed", zap.String("url", raw), zap.Error(err))
		}
	}
	return res
}

// head issues one HEAD request. It returns the final URL on success, or a
// failure reason and whether an http:// retry is worthwhile.
func (p *Prober) head(ctx context.Context, target string) (string, string, bool) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", classify(err), false
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return "", truncate(err), false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		reason := classify(err)
		return "", reason, reason == ReasonSSL || reason == ReasonConnection
	}
	_ = resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Sprintf("HTTP %d", resp.StatusCode), true
	}
	return resp.Request.URL.String(), "", false
}

func classify(err error) string {
	if errors.Is(err, errTooManyRedirects) {
		return ReasonTooManyRedirects
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	if isTLSError(err) {
		return ReasonSSL
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return ReasonConnection
	}
	return truncate(err)
}

func isTLSError(err error) bool {
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var invalid x509.CertificateInvalidError
	var header tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) || errors.As(err, &hostErr) ||
		errors.As(err, &invalid) || errors.As(err, &header) {
		return true
	}
	// net/http reports a plain-HTTP reply to a TLS handshake as a bare error.
	msg := err.Error()
	return strings.Contains(msg, "tls: ") || strings.Contains(msg, "x509: ") ||
		strings.Contains(msg, "server gave HTTP response to HTTPS client")
}

func truncate(err error) string {
	msg := err.Error()
	if r := []rune(msg); len(r) > 50 {
		msg = string(r[:50])
	}
	return "Error: " + msg
}

// CheckAll probes urls concurrently and returns results in input order.
func (p *Prober) CheckAll(ctx context.Context, urls []string) []model.ProbeResult {
	out := make([]model.ProbeResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			out[i] = p.Check(gctx, u)
			return nil
		})
	}
	_ = g.Wait()

	var reachable int
	for _, r := range out {
		if r.Reachable {
			reachable++
		}
	}
	zap.L().Info("probed websites",
		zap.Int("total", len(urls)),
		zap.Int("reachable", reachable),
		zap.Int("unreachable", len(urls)-reachable),
	)
	return out
}
