package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/phone-enrich/internal/browser"
	"github.com/sells-group/phone-enrich/internal/jobs"
	"github.com/sells-group/phone-enrich/internal/model"
	"github.com/sells-group/phone-enrich/internal/probe"
)

func testWebsiteConfig() WebsiteConfig {
	cfg := DefaultWebsiteConfig()
	cfg.BatchDelay = 0
	return cfg
}

func TestWebsitePipeline_Run(t *testing.T) {
	checker := &fakeChecker{results: map[string]model.ProbeResult{
		"acme.sg": {URL: "acme.sg", Reachable: true, FinalURL: "https://acme.sg/"},
	}}
	r := &fakeRunner{runFn: func(int, jobs.Spec) ([]jobs.Item, error) {
		return []jobs.Item{
			{"website": "acme.sg", "contactUrl": nil, "phones": nil, "pageType": "homepage", "status": "success"},
			{
				"website":    "acme.sg",
				"contactUrl": "https://acme.sg/contact",
				"phones":     []any{"+65 6123 4567"},
				"pageType":   "contact page",
				"status":     "success",
			},
		}, nil
	}}
	p := NewWebsitePipeline(r, checker, nil, testWebsiteConfig())

	in := leadsOf(nil, []string{
		"https://www.recordowl.com/acme",
		"down.sg",
		"acme.sg",
		"",
		"acme.sg",
	})

	out, stats, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 5)

	blocked := out[0].WebsiteResult
	assert.Equal(t, model.StatusSkipped, blocked.Status)
	assert.Equal(t, "Skipped - keyword blocked: recordowl", blocked.Error)

	down := out[1].WebsiteResult
	assert.Equal(t, model.StatusSkipped, down.Status)
	assert.Equal(t, "Connection Failed", down.Error)
	assert.Empty(t, down.Phones)

	for _, row := range []int{2, 4} {
		ok := out[row].WebsiteResult
		assert.Equal(t, model.StatusSuccess, ok.Status, "row %d", row)
		assert.Equal(t, []string{"+6561234567"}, ok.Phones, "row %d", row)
		assert.Equal(t, "https://acme.sg/contact", ok.ContactPageURL, "row %d", row)
		assert.Equal(t, model.PageContact, ok.PageType, "row %d", row)
	}

	blank := out[3].WebsiteResult
	assert.Equal(t, model.StatusSkipped, blank.Status)
	assert.Equal(t, MsgNoWebsite, blank.Error)

	// Only the reachable site is submitted, once, at its probed URL.
	require.Len(t, r.specs, 1)
	spec := r.specs[0]
	assert.Equal(t, jobs.KindBrowser, spec.Kind)
	assert.Equal(t, []string{"https://acme.sg/"}, spec.URLs())
	assert.Equal(t, "acme.sg", spec.Targets[0].UserData[jobs.KeyOriginalURL])
	assert.Equal(t, 2, spec.MaxRequests)
	assert.Equal(t, 3, spec.Concurrency)
	assert.Equal(t, []string{"SHADER"}, spec.Proxy.Groups)

	assert.Equal(t, []string{"down.sg", "acme.sg"}, checker.checked)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 2, stats.Matched)
}

func TestWebsitePipeline_ItemErrorAndMissing(t *testing.T) {
	checker := &fakeChecker{results: map[string]model.ProbeResult{
		"a.sg": {Reachable: true, FinalURL: "https://a.sg/"},
		"b.sg": {Reachable: true},
	}}
	r := &fakeRunner{runFn: func(int, jobs.Spec) ([]jobs.Item, error) {
		return []jobs.Item{
			{"website": "a.sg", "phones": nil, "pageType": "unknown", "status": "error", "error": "net::ERR_NAME_NOT_RESOLVED"},
		}, nil
	}}
	p := NewWebsitePipeline(r, checker, nil, testWebsiteConfig())

	out, _, err := p.Run(context.Background(), leadsOf(nil, []string{"a.sg", "b.sg"}))
	require.NoError(t, err)

	assert.Equal(t, model.StatusError, out[0].WebsiteResult.Status)
	assert.Equal(t, "net::ERR_NAME_NOT_RESOLVED", out[0].WebsiteResult.Error)
	assert.Equal(t, model.PageUnknown, out[0].WebsiteResult.PageType)

	assert.Equal(t, model.StatusMissing, out[1].WebsiteResult.Status)
	assert.Equal(t, MsgNoData, out[1].WebsiteResult.Error)

	// A probe result without a final URL falls back to the scheme-qualified value.
	assert.Equal(t, []string{"https://a.sg/", "https://b.sg"}, r.specs[0].URLs())
}

func TestWebsitePipeline_NothingToSubmit(t *testing.T) {
	r := &fakeRunner{}
	p := NewWebsitePipeline(r, &fakeChecker{}, nil, testWebsiteConfig())

	out, stats, err := p.Run(context.Background(), leadsOf(nil, []string{"None", "https://mycareersfuture.gov.sg/job/1"}))
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, out[0].WebsiteResult.Status)
	assert.Equal(t, "Skipped - keyword blocked: mycareersfuture", out[1].WebsiteResult.Error)
	assert.Empty(t, r.submitted())
	assert.Zero(t, stats.Batches)
}

func TestWebsitePipeline_LocalBrowser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body><p>Welcome</p><a href="/contact">Contact</a></body></html>`)
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="tel:+6562223333">Call us</a></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	engine := browser.NewEngine(browser.NewHTTPLoader(), browser.WithRetryBackoff(time.Millisecond))
	prober := probe.New(probe.WithTimeout(2 * time.Second))
	p := NewWebsitePipeline(engine, prober, nil, testWebsiteConfig())

	out, _, err := p.Run(context.Background(), leadsOf(nil, []string{srv.URL}))
	require.NoError(t, err)

	got := out[0].WebsiteResult
	assert.Equal(t, model.StatusSuccess, got.Status)
	assert.Equal(t, []string{"+6562223333"}, got.Phones)
	assert.Equal(t, srv.URL+"/contact", got.ContactPageURL)
	assert.Equal(t, model.PageContact, got.PageType)
}

func TestWebsitePipeline_VerifyFailureAborts(t *testing.T) {
	r := &fakeRunner{verifyErr: fmt.Errorf("boom")}
	checker := &fakeChecker{}
	p := NewWebsitePipeline(r, checker, nil, testWebsiteConfig())

	_, _, err := p.Run(context.Background(), leadsOf(nil, []string{"acme.sg"}))
	require.Error(t, err)
	assert.Empty(t, checker.checked)
}
