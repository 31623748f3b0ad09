package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Default base URL for the Apify v2 API.
const defaultBaseURL = "https://api.apify.com/v2"

// datasetPageSize is the page size used when listing dataset items.
const datasetPageSize = 1000

// ErrUnauthorized is returned when the API token is missing, invalid or lacks
// permission.
var ErrUnauthorized = eris.New("apify: unauthorized")

// Client defines the Apify API operations used for actor runs.
type Client interface {
	GetUser(ctx context.Context) (*User, error)
	StartActor(ctx context.Context, actorID string, input any) (*Run, error)
	GetRun(ctx context.Context, runID string, waitSecs int) (*Run, error)
	AbortRun(ctx context.Context, runID string) (*Run, error)
	ListDatasetItems(ctx context.Context, datasetID string) ([]map[string]any, error)
}

// User is the response data of GET /users/me.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Plan     struct {
		ID string `json:"id"`
	} `json:"plan"`
}

// Run is an actor run as returned by the runs endpoints.
type Run struct {
	ID               string     `json:"id"`
	ActID            string     `json:"actId"`
	Status           string     `json:"status"`
	StatusMessage    string     `json:"statusMessage"`
	DefaultDatasetID string     `json:"defaultDatasetId"`
	StartedAt        *time.Time `json:"startedAt"`
	FinishedAt       *time.Time `json:"finishedAt"`
}

// envelope wraps single-object responses.
type envelope[T any] struct {
	Data T `json:"data"`
}

// APIError is returned when Apify responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apify: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsUnauthorized reports whether err is a credential failure: a 401/403
// response or a missing token.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

// IsRetryable reports whether err is an APIError with a status worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Apify client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 90 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ActorPath converts "user/actor" to the "user~actor" form used in URLs.
func ActorPath(actorID string) string {
	return strings.ReplaceAll(actorID, "/", "~")
}

func (c *httpClient) GetUser(ctx context.Context) (*User, error) {
	if c.token == "" {
		return nil, eris.Wrap(ErrUnauthorized, "apify: get user: token not set")
	}
	var resp envelope[User]
	if err := c.get(ctx, "/users/me", nil, &resp); err != nil {
		return nil, eris.Wrap(err, "apify: get user")
	}
	return &resp.Data, nil
}

func (c *httpClient) StartActor(ctx context.Context, actorID string, input any) (*Run, error) {
	var resp envelope[Run]
	path := "/acts/" + url.PathEscape(ActorPath(actorID)) + "/runs"
	if err := c.post(ctx, path, input, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("apify: start actor %s", actorID))
	}
	if resp.Data.ID == "" {
		return nil, eris.Errorf("apify: start actor %s: response has no run id", actorID)
	}
	return &resp.Data, nil
}

func (c *httpClient) GetRun(ctx context.Context, runID string, waitSecs int) (*Run, error) {
	q := url.Values{}
	if waitSecs > 0 {
		q.Set("waitForFinish", strconv.Itoa(waitSecs))
	}
	var resp envelope[Run]
	if err := c.get(ctx, "/actor-runs/"+url.PathEscape(runID), q, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("apify: get run %s", runID))
	}
	return &resp.Data, nil
}

func (c *httpClient) AbortRun(ctx context.Context, runID string) (*Run, error) {
	var resp envelope[Run]
	if err := c.post(ctx, "/actor-runs/"+url.PathEscape(runID)+"/abort", nil, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("apify: abort run %s", runID))
	}
	return &resp.Data, nil
}

func (c *httpClient) ListDatasetItems(ctx context.Context, datasetID string) ([]map[string]any, error) {
	var items []map[string]any
	for offset := 0; ; offset += datasetPageSize {
		q := url.Values{}
		q.Set("format", "json")
		q.Set("clean", "true")
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(datasetPageSize))

		var page []map[string]any
		if err := c.get(ctx, "/datasets/"+url.PathEscape(datasetID)+"/items", q, &page); err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("apify: list dataset %s", datasetID))
		}
		items = append(items, page...)
		if len(page) < datasetPageSize {
			return items, nil
		}
	}
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}

	return nil
}
