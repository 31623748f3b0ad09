package apify

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient implements Client for testing WaitForRun.
type mockClient struct {
	getRunFunc func(ctx context.Context, runID string, waitSecs int) (*Run, error)
}

func (m *mockClient) GetUser(context.Context) (*User, error) { return &User{}, nil }

func (m *mockClient) StartActor(context.Context, string, any) (*Run, error) { return nil, nil }

func (m *mockClient) GetRun(ctx context.Context, runID string, waitSecs int) (*Run, error) {
	return m.getRunFunc(ctx, runID, waitSecs)
}

func (m *mockClient) AbortRun(context.Context, string) (*Run, error) { return nil, nil }

func (m *mockClient) ListDatasetItems(context.Context, string) ([]map[string]any, error) {
	return nil, nil
}

func TestWaitForRun_CompletesAfterPolling(t *testing.T) {
	var calls atomic.Int32
	mock := &mockClient{
		getRunFunc: func(ctx context.Context, runID string, waitSecs int) (*Run, error) {
			assert.Equal(t, 0, waitSecs)
			if calls.Add(1) < 3 {
				return &Run{ID: runID, Status: "RUNNING"}, nil
			}
			return &Run{ID: runID, Status: StatusSucceeded, DefaultDatasetID: "ds"}, nil
		},
	}

	run, err := WaitForRun(context.Background(), mock, "run-1",
		WithPollInterval(5*time.Millisecond),
		WithWaitForFinish(0),
	)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitForRun_ReturnsFailedRun(t *testing.T) {
	mock := &mockClient{
		getRunFunc: func(ctx context.Context, runID string, waitSecs int) (*Run, error) {
			return &Run{ID: runID, Status: StatusTimedOut, StatusMessage: "limit reached"}, nil
		},
	}

	run, err := WaitForRun(context.Background(), mock, "run-2", WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, run.Status)
	assert.Equal(t, "limit reached", run.StatusMessage)
}

func TestWaitForRun_ContextTimeout(t *testing.T) {
	mock := &mockClient{
		getRunFunc: func(ctx context.Context, runID string, waitSecs int) (*Run, error) {
			return &Run{ID: runID, Status: "RUNNING"}, nil
		},
	}

	_, err := WaitForRun(context.Background(), mock, "run-3",
		WithPollInterval(5*time.Millisecond),
		WithPollTimeout(30*time.Millisecond),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForRun_PropagatesAPIError(t *testing.T) {
	mock := &mockClient{
		getRunFunc: func(ctx context.Context, runID string, waitSecs int) (*Run, error) {
			return nil, &APIError{StatusCode: 404, Body: "not found"}
		},
	}

	_, err := WaitForRun(context.Background(), mock, "run-4")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{StatusSucceeded, StatusFailed, StatusTimedOut, StatusAborted} {
		assert.True(t, IsTerminal(s), s)
	}
	for _, s := range []string{"READY", "RUNNING", "TIMING-OUT", "ABORTING", ""} {
		assert.False(t, IsTerminal(s), s)
	}
}
