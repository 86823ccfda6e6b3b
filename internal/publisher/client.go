package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"crosspost/internal/domain"
)

// Client makes the publish call against one platform's configured
// endpoint. All variants share these mechanics; they differ only in how
// they shape the request body.
type Client struct {
	platform domain.Platform
	endpoint string
	httpc    *http.Client
	limiter  *rate.Limiter
}

func NewClient(platform domain.Platform, endpoint string, rps float64, burst int, timeout time.Duration) *Client {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		platform: platform,
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

type publishResponse struct {
	ID string `json:"id"`
}

// Deliver posts the platform-shaped body and returns the external id the
// platform assigned. Any upstream failure comes back as a
// *domain.PlatformAPIError.
func (c *Client) Deliver(ctx context.Context, accessToken string, body any) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", apiErr(c.platform, err.Error())
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode %s request: %w", c.platform, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("build %s request: %w", c.platform, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", apiErr(c.platform, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", apiErr(c.platform, "read response: "+err.Error())
	}
	if resp.StatusCode >= 400 {
		return "", apiErr(c.platform, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(respBody)))
	}

	var pr publishResponse
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return "", apiErr(c.platform, "unparseable response: "+err.Error())
	}
	if pr.ID == "" {
		return "", apiErr(c.platform, "response missing post id")
	}
	return pr.ID, nil
}

func apiErr(platform domain.Platform, msg string) error {
	return &domain.PlatformAPIError{Platform: platform, Message: msg}
}
