package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/phone-enrich/internal/model"
)

func okServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheck_Reachable(t *testing.T) {
	srv := okServer(t)

	res := New().Check(context.Background(), srv.URL)
	assert.True(t, res.Reachable)
	assert.Empty(t, res.Reason)
	assert.Equal(t, srv.URL, res.FinalURL)
}

func TestCheck_FollowsRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/home", http.StatusMovedPermanently)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := New().Check(context.Background(), srv.URL+"/")
	assert.True(t, res.Reachable)
	assert.Equal(t, srv.URL+"/home", res.FinalURL)
}

func TestCheck_Failures(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer notFound.Close()

	loop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer loop.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer slow.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"empty", "   ", ReasonEmptyURL},
		{"not found", notFound.URL, "HTTP 404"},
		{"redirect loop", loop.URL + "/a", ReasonTooManyRedirects},
		{"timeout", slow.URL, ReasonTimeout},
		{"refused", closedURL, ReasonConnection},
	}

	p := New(WithTimeout(100 * time.Millisecond))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Check(context.Background(), tt.url)
			assert.False(t, res.Reachable)
			assert.Equal(t, tt.want, res.Reason)
		})
	}
}

func TestCheck_SchemeLessFallsBackToHTTP(t *testing.T) {
	srv := okServer(t)
	host := strings.TrimPrefix(srv.URL, "http://")

	res := New().Check(context.Background(), host)
	require.True(t, res.Reachable, res.Reason)
	assert.Equal(t, host, res.URL)
	assert.True(t, strings.HasPrefix(res.FinalURL, "http://"))
}

func TestClassify_PlainHTTPOnTLSPort(t *testing.T) {
	srv := okServer(t)
	httpsURL := "https://" + strings.TrimPrefix(srv.URL, "http://")

	_, reason, retry := New().head(context.Background(), httpsURL)
	assert.Equal(t, ReasonSSL, reason)
	assert.True(t, retry)
}

func TestCheck_UntrustedCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := New().Check(context.Background(), srv.URL)
	assert.False(t, res.Reachable)
	assert.Equal(t, ReasonSSL, res.Reason)
}

func TestCheck_TrustedCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := New(WithHTTPClient(srv.Client())).Check(context.Background(), srv.URL)
	assert.True(t, res.Reachable)
}

type memCache struct {
	mu   sync.Mutex
	data map[string]model.ProbeResult
	sets int
}

func (m *memCache) GetCachedProbe(_ context.Context, url string) (*model.ProbeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.data[url]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *memCache) SetCachedProbe(_ context.Context, r model.ProbeResult, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[r.URL] = r
	m.sets++
	return nil
}

func TestCheck_UsesCache(t *testing.T) {
	cache := &memCache{data: map[string]model.ProbeResult{
		"cached.sg": {URL: "cached.sg", Reason: ReasonTimeout},
	}}
	p := New(WithCache(cache, time.Hour))

	res := p.Check(context.Background(), "cached.sg")
	assert.Equal(t, ReasonTimeout, res.Reason)
	assert.Zero(t, cache.sets)

	srv := okServer(t)
	res = p.Check(context.Background(), srv.URL)
	assert.True(t, res.Reachable)
	assert.Equal(t, 1, cache.sets)
	assert.True(t, cache.data[srv.URL].Reachable)
}

func TestCheckAll_PreservesOrder(t *testing.T) {
	srv := okServer(t)
	urls := []string{srv.URL, "", srv.URL + "/b", ""}

	res := New(WithConcurrency(2), WithRate(100)).CheckAll(context.Background(), urls)
	require.Len(t, res, 4)
	assert.True(t, res[0].Reachable)
	assert.Equal(t, ReasonEmptyURL, res[1].Reason)
	assert.True(t, res[2].Reachable)
	assert.Equal(t, srv.URL+"/b", res[2].FinalURL)
	assert.Equal(t, ReasonEmptyURL, res[3].Reason)
}
