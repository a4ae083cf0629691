package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Veraticus/digital-asset-harvester/internal/common"
)

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// postJSON sends payload and decodes a 200 response into out. Failures are
// returned as *Error with TIMEOUT, CONNECTIVITY or MALFORMED_RESPONSE kinds.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &Error{
			Kind:       KindConnectivity,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %s", common.ErrRateLimit, truncate(string(respBody), 200)),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return &Error{
			Kind:       KindConnectivity,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 200)),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Kind: KindMalformedResponse, Err: fmt.Errorf("failed to parse response envelope: %w", err)}
	}
	return nil
}

func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindConnectivity, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
