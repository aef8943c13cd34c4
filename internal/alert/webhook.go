package alert

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 3
)

var httpClient = &http.Client{Timeout: requestTimeout}

// newBackOff builds the retry schedule for one delivery. Replaced in tests.
var newBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	return backoff.WithMaxRetries(b, maxRetries-1)
}

// Send posts an alert event to a webhook endpoint with retry on 5xx
// and transport errors. 4xx responses are not retried.
func Send(cfg AlertConfig, event AlertEvent) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	attempts := 0
	op := func() error {
		attempts++
		req, err := http.NewRequest(http.MethodPost, cfg.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode))
		}
		return fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}

	if err := backoff.Retry(op, newBackOff()); err != nil {
		return fmt.Errorf("webhook failed after %d attempts: %w", attempts, err)
	}
	return nil
}
