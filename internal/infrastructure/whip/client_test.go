package whip

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const offerSDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := NewClient(serverURL, 2*time.Second, zap.NewNop().Sugar())
	require.NoError(t, err)
	return client.(*Client)
}

func TestSendOffer_Success(t *testing.T) {
	var gotPath, gotAuth, gotContentType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.Header().Set("Location", "/resource/abc")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, "answer-sdp")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	answer, location, err := client.SendOffer(context.Background(), "input-1", "secret-token", offerSDP)

	require.NoError(t, err)
	assert.Equal(t, "answer-sdp", answer)
	assert.Equal(t, "/resource/abc", location)
	assert.Equal(t, "/whip/input-1", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "application/sdp", gotContentType)
	assert.Equal(t, offerSDP, gotBody)
}

func TestSendOffer_MissingLocationHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "answer-sdp")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	answer, location, err := client.SendOffer(context.Background(), "input-1", "t", offerSDP)

	require.NoError(t, err)
	assert.Equal(t, "answer-sdp", answer)
	assert.Empty(t, location)
}

func TestSendOffer_Non2xxCarriesStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "ingest exploded")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, _, err := client.SendOffer(context.Background(), "input-1", "t", offerSDP)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusInternalServerError, transportErr.Status)
	assert.Equal(t, "ingest exploded", transportErr.Body)
}

func TestDeleteResource_ResolvesRelativeLocation(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.DeleteResource(context.Background(), "/resource/abc", "secret-token")

	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/resource/abc", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestDeleteResource_AbsoluteLocationWins(t *testing.T) {
	var hit bool
	resourceServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer resourceServer.Close()

	// Base points somewhere else entirely; the absolute location must win.
	client := newTestClient(t, "http://localhost:1")
	err := client.DeleteResource(context.Background(), resourceServer.URL+"/resource/abc", "t")

	require.NoError(t, err)
	assert.True(t, hit)
}

func TestDeleteResource_IdempotentOnDeadResource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	// Both calls return promptly with a reportable error, never panic or hang.
	for i := 0; i < 2; i++ {
		done := make(chan error, 1)
		go func() {
			done <- client.DeleteResource(context.Background(), "/resource/gone", "t")
		}()
		select {
		case err := <-done:
			var transportErr *TransportError
			require.ErrorAs(t, err, &transportErr)
			assert.Equal(t, http.StatusNotFound, transportErr.Status)
		case <-time.After(2 * time.Second):
			t.Fatal("DeleteResource blocked on dead resource")
		}
	}
}

func TestDeleteResource_UnreachableServerReturnsError(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")
	err := client.DeleteResource(context.Background(), "/resource/abc", "t")
	require.Error(t, err)

	var transportErr *TransportError
	assert.False(t, errors.As(err, &transportErr), "network failures are not transport status errors")
}
