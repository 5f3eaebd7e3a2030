package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"whipcast/internal/core/domain"
	"whipcast/internal/core/ports"
	"whipcast/pkg/circuitbreaker"
	"whipcast/pkg/retry"
	"whipcast/pkg/utils"

	"go.uber.org/zap"
)

// Client talks to the room/compositing backend that owns input registration
// and liveness tracking.
type Client struct {
	baseURL    *url.URL
	apiToken   string
	httpClient *http.Client
	retryCfg   retry.Config
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.SugaredLogger
}

func NewClient(baseURL, apiToken string, timeout time.Duration, logger *zap.SugaredLogger) (ports.ControlClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid control base url %q: %w", baseURL, err)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = 2

	return &Client{
		baseURL:    parsed,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: timeout},
		retryCfg:   retryCfg,
		breaker:    circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:     logger,
	}, nil
}

type registerInputRequest struct {
	Type string `json:"type"`
}

// RegisterInput registers a new input of type "whip" for the room and
// returns the backend-minted identifier plus the bearer token for the ingest
// resource. Registration is retried with backoff behind a circuit breaker;
// while the backend stays down, callers fail fast instead of piling up
// registration attempts. The backend tolerates duplicate registrations by
// minting independent inputs.
func (c *Client) RegisterInput(ctx context.Context, roomID domain.RoomID) (*domain.InputGrant, error) {
	endpoint := c.baseURL.JoinPath("api", "v1", "rooms", string(roomID), "inputs")

	var grant *domain.InputGrant
	err := c.breaker.Execute(func() error {
		var err error
		grant, err = c.registerInput(ctx, endpoint)
		return err
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (c *Client) registerInput(ctx context.Context, endpoint *url.URL) (*domain.InputGrant, error) {
	return retry.DoWithResult(ctx, c.retryCfg, func() (*domain.InputGrant, error) {
		payload, err := json.Marshal(registerInputRequest{Type: "whip"})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal register request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to build register request: %w", err)
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("register request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("register input returned %d: %s", resp.StatusCode, string(body))
		}

		var grant domain.InputGrant
		if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
			return nil, fmt.Errorf("failed to decode input grant: %w", err)
		}
		if grant.InputID == "" {
			return nil, fmt.Errorf("backend returned empty input id")
		}
		return &grant, nil
	})
}

// RemoveInput removes the input registration backend-side. Not retried: the
// callers that use it treat it as best-effort cleanup.
func (c *Client) RemoveInput(ctx context.Context, roomID domain.RoomID, inputID domain.InputID) error {
	endpoint := c.baseURL.JoinPath("api", "v1", "rooms", string(roomID), "inputs", string(inputID))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build remove request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remove request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("remove input returned %d", resp.StatusCode)
	}
	return nil
}

// AckInput signals input liveness. Never retried; the next heartbeat tick
// covers a missed one.
func (c *Client) AckInput(ctx context.Context, roomID domain.RoomID, inputID domain.InputID) error {
	endpoint := c.baseURL.JoinPath("api", "v1", "rooms", string(roomID), "inputs", string(inputID), "ack")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build ack request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ack request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ack input returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	req.Header.Set("X-Request-ID", utils.GenerateRequestID())
}
