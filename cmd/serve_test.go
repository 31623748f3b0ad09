package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/phone-enrich/internal/model"
	"github.com/sells-group/phone-enrich/internal/phone"
)

type stubChecker struct {
	reachable map[string]bool
}

func (s stubChecker) Check(_ context.Context, raw string) model.ProbeResult {
	if s.reachable[raw] {
		return model.ProbeResult{URL: raw, Reachable: true, FinalURL: "https://" + raw + "/"}
	}
	return model.ProbeResult{URL: raw, Reason: "Connection Failed"}
}

func (s stubChecker) CheckAll(ctx context.Context, urls []string) []model.ProbeResult {
	out := make([]model.ProbeResult, len(urls))
	for i, u := range urls {
		out[i] = s.Check(ctx, u)
	}
	return out
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServe_Health(t *testing.T) {
	h := newRouter(&api{})

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServe_ValidatePhones(t *testing.T) {
	h := newRouter(&api{validator: phone.NewValidator()})

	rec := doRequest(t, h, http.MethodPost, "/v1/phones/validate", `{"phones":["9123 4567","+852 9123 4567"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []phoneValidation `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []phoneValidation{
		{Input: "9123 4567", Phone: "+6591234567", Valid: true},
		{Input: "+852 9123 4567", Valid: false},
	}, resp.Results)
}

func TestServe_BadRequests(t *testing.T) {
	h := newRouter(&api{validator: phone.NewValidator(), checker: stubChecker{}})
	many := `{"urls":["a.sg"` + strings.Repeat(`,"a.sg"`, maxBatchInput) + `]}`

	tests := []struct {
		name string
		path string
		body string
		want string
	}{
		{"invalid json", "/v1/phones/validate", `{`, "invalid request body"},
		{"no phones", "/v1/phones/validate", `{"phones":[]}`, "phones is required"},
		{"no urls", "/v1/websites/probe", `{}`, "urls is required"},
		{"too many urls", "/v1/websites/probe", many, "at most 1000 urls per request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestServe_ProbeWebsites(t *testing.T) {
	h := newRouter(&api{checker: stubChecker{reachable: map[string]bool{"acme.sg": true}}})

	rec := doRequest(t, h, http.MethodPost, "/v1/websites/probe", `{"urls":["acme.sg","down.sg"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []model.ProbeResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Reachable)
	assert.Equal(t, "https://acme.sg/", resp.Results[0].FinalURL)
	assert.False(t, resp.Results[1].Reachable)
	assert.Equal(t, "Connection Failed", resp.Results[1].Reason)
}

func TestServe_Runs(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	h := newRouter(&api{store: st})

	run, err := st.CreateRun(ctx, "website", "leads.csv")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusComplete, &model.RunResult{Rows: 3, Resolved: 2, FollowUp: 1}))
	_, err = st.CreateRun(ctx, "facebook", "leads.csv")
	require.NoError(t, err)

	rec := doRequest(t, h, http.MethodGet, "/v1/runs?pipeline=website", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Runs []model.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, run.ID, list.Runs[0].ID)

	rec = doRequest(t, h, http.MethodGet, "/v1/runs/"+run.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 2, got.Result.Resolved)

	rec = doRequest(t, h, http.MethodGet, "/v1/runs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/v1/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/v1/runs?status=failed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}

func TestServe_RunsDisabledWithoutStore(t *testing.T) {
	h := newRouter(&api{})

	for _, path := range []string{"/v1/runs", "/v1/runs/abc"} {
		rec := doRequest(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestServe_CORSPreflight(t *testing.T) {
	h := newRouter(&api{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/phones/validate", nil)
	req.Header.Set("Origin", "https://leads.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestIntParam(t *testing.T) {
	n, err := intParam("")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = intParam("25")
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	_, err = intParam("-1")
	assert.Error(t, err)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
