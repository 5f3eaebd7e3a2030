package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"whipcast/internal/core/domain"
	"whipcast/internal/core/ports"
	"whipcast/internal/core/services"
	"whipcast/internal/infrastructure/events"
	"whipcast/internal/infrastructure/middleware"
	"whipcast/internal/infrastructure/monitoring"
	"whipcast/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPublisher struct {
	startErr    error
	stopErr     error
	session     *domain.PublishSession
	startedRoom domain.RoomID
	active      bool
}

func (p *stubPublisher) Start(ctx context.Context, roomID domain.RoomID) (*domain.PublishSession, error) {
	p.startedRoom = roomID
	if p.startErr != nil {
		return nil, p.startErr
	}
	p.active = true
	return p.session, nil
}

func (p *stubPublisher) Stop(ctx context.Context) error {
	if p.stopErr != nil {
		return p.stopErr
	}
	p.active = false
	return nil
}

func (p *stubPublisher) Status() ports.PublisherStatus {
	return ports.PublisherStatus{Active: p.active, Session: p.session}
}

type handlerFixture struct {
	router    *gin.Engine
	publisher *stubPublisher
	auth      services.AuthService
	health    *monitoring.HealthChecker
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop().Sugar()
	publisher := &stubPublisher{
		session: &domain.PublishSession{
			RoomID:      "room-1",
			InputID:     "input-1",
			BearerToken: "token-1",
			CreatedAt:   time.Now(),
		},
	}

	repo := memory.NewMemorySessionRepository(time.Minute)
	bus := events.NewBus(logger)
	resume := services.NewResumeService(repo, nil, nil, publisher, false, time.Hour, nil, bus, logger)

	health := monitoring.NewHealthChecker()
	health.Register("store", func(ctx context.Context) error { return nil })

	auth := services.NewAuthService("test-secret", time.Hour)

	handler := NewPublisherHandler(publisher, resume, health, "room-1")
	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(logger))
	handler.SetupRoutes(router, middleware.AuthMiddleware(auth))

	return &handlerFixture{router: router, publisher: publisher, auth: auth, health: health}
}

func (f *handlerFixture) request(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if authed {
		token, err := f.auth.GenerateToken("operator")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestPublisherHandler_RequiresAuth(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.request(t, http.MethodGet, "/api/v1/status", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPublisherHandler_StartPublish(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.request(t, http.MethodPost, "/api/v1/publish/start", gin.H{"room_id": "room-2"}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, domain.RoomID("room-2"), f.publisher.startedRoom)

	var resp struct {
		Session domain.PublishSession `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.InputID("input-1"), resp.Session.InputID)
}

func TestPublisherHandler_StartDefaultsToConfiguredRoom(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.request(t, http.MethodPost, "/api/v1/publish/start", nil, true)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, domain.RoomID("room-1"), f.publisher.startedRoom)
}

func TestPublisherHandler_StartRejectsMalformedRoomID(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.request(t, http.MethodPost, "/api/v1/publish/start", gin.H{"room_id": "bad room!"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.publisher.startedRoom)
}

func TestPublisherHandler_StartConflictsWhenActive(t *testing.T) {
	f := newHandlerFixture(t)
	f.publisher.startErr = domain.ErrAlreadyPublishing

	w := f.request(t, http.MethodPost, "/api/v1/publish/start", nil, true)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPublisherHandler_StartCaptureUnavailable(t *testing.T) {
	f := newHandlerFixture(t)
	f.publisher.startErr = fmt.Errorf("%w: no media", domain.ErrCaptureUnavailable)

	w := f.request(t, http.MethodPost, "/api/v1/publish/start", nil, true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPublisherHandler_StopPublish(t *testing.T) {
	f := newHandlerFixture(t)
	f.publisher.active = true

	w := f.request(t, http.MethodPost, "/api/v1/publish/stop", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.publisher.active)
}

func TestPublisherHandler_StopWithoutPublish(t *testing.T) {
	f := newHandlerFixture(t)
	f.publisher.stopErr = domain.ErrNotPublishing

	w := f.request(t, http.MethodPost, "/api/v1/publish/stop", nil, true)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPublisherHandler_Status(t *testing.T) {
	f := newHandlerFixture(t)
	f.publisher.active = true

	w := f.request(t, http.MethodGet, "/api/v1/status", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Publisher   ports.PublisherStatus `json:"publisher"`
		ResumeState string                `json:"resume_state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Publisher.Active)
	assert.Equal(t, "idle", resp.ResumeState)
}

func TestPublisherHandler_Healthz(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.request(t, http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)

	f.health.Register("store", func(ctx context.Context) error { return errors.New("down") })
	w = f.request(t, http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
