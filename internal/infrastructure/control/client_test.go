package control

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"whipcast/internal/core/domain"
	"whipcast/pkg/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := NewClient(serverURL, "api-token", 2*time.Second, zap.NewNop().Sugar())
	require.NoError(t, err)
	c := client.(*Client)
	c.retryCfg.InitialDelay = time.Millisecond
	return c
}

func TestRegisterInput_Success(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"input_id":"input-42","bearer_token":"ingest-secret"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	grant, err := client.RegisterInput(context.Background(), "room-1")

	require.NoError(t, err)
	assert.Equal(t, domain.InputID("input-42"), grant.InputID)
	assert.Equal(t, "ingest-secret", grant.BearerToken)
	assert.Equal(t, "/api/v1/rooms/room-1/inputs", gotPath)
	assert.Equal(t, "Bearer api-token", gotAuth)
	assert.JSONEq(t, `{"type":"whip"}`, gotBody)
}

func TestRegisterInput_RetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"input_id":"input-2","bearer_token":"tok"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	grant, err := client.RegisterInput(context.Background(), "room-1")

	require.NoError(t, err)
	assert.Equal(t, domain.InputID("input-2"), grant.InputID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRegisterInput_EmptyInputIDRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"input_id":"","bearer_token":"tok"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.RegisterInput(context.Background(), "room-1")
	require.Error(t, err)
}

func TestRegisterInput_BreakerOpensWhileBackendDown(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx := context.Background()

	// Five consecutive failed registrations trip the breaker.
	for i := 0; i < 5; i++ {
		_, err := client.RegisterInput(ctx, "room-1")
		require.Error(t, err)
	}
	seen := atomic.LoadInt32(&calls)

	_, err := client.RegisterInput(ctx, "room-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, seen, atomic.LoadInt32(&calls), "open breaker must not hit the backend")
}

func TestRemoveInput(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.RemoveInput(context.Background(), "room-1", "input-42")

	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/api/v1/rooms/room-1/inputs/input-42", gotPath)
}

func TestAckInput_SingleAttempt(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/api/v1/rooms/room-1/inputs/input-42/ack", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.AckInput(context.Background(), "room-1", "input-42")

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "ack must not be retried")
}
