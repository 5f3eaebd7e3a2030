package whip

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"whipcast/internal/core/domain"
	"whipcast/internal/core/ports"
	"whipcast/pkg/tracing"

	"go.uber.org/zap"
)

// TransportError reports a non-2xx response from the WHIP endpoint.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("whip endpoint returned %d: %s", e.Status, e.Body)
}

// Client implements the two HTTP operations of the WHIP protocol surface
// this agent uses: posting an SDP offer and releasing the created resource.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.SugaredLogger) (ports.IngestClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid whip base url %q: %w", baseURL, err)
	}
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// SendOffer posts the offer SDP to {base}/whip/{inputID} and returns the
// answer SDP plus the Location header (empty when the server omits it).
func (c *Client) SendOffer(ctx context.Context, inputID domain.InputID, bearerToken, sdp string) (string, string, error) {
	ctx, span := tracing.TraceWHIPRequest(ctx, "offer", string(inputID))
	defer span.End()

	endpoint := c.baseURL.JoinPath("whip", string(inputID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(sdp))
	if err != nil {
		return "", "", fmt.Errorf("failed to build offer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(ctx, err)
		return "", "", fmt.Errorf("offer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read answer body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		transportErr := &TransportError{Status: resp.StatusCode, Body: string(body)}
		tracing.RecordError(ctx, transportErr)
		return "", "", transportErr
	}

	location := resp.Header.Get("Location")
	tracing.AddSpanAttributes(ctx, tracing.LocationKey.String(location))
	c.logger.Debugw("whip offer accepted",
		"input_id", inputID,
		"location", location,
		"answer_bytes", len(body),
	)
	return string(body), location, nil
}

// DeleteResource releases a previously created ingest resource. A relative
// location is resolved against the endpoint base. The caller treats any
// failure as best-effort cleanup.
func (c *Client) DeleteResource(ctx context.Context, location, bearerToken string) error {
	ctx, span := tracing.TraceWHIPRequest(ctx, "delete", "")
	defer span.End()

	ref, err := url.Parse(location)
	if err != nil {
		return fmt.Errorf("invalid resource location %q: %w", location, err)
	}
	target := c.baseURL.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Status: resp.StatusCode, Body: ""}
	}
	return nil
}
