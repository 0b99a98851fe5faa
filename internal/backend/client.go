// Package backend is the REST client for the platform API. The backend is the
// authoritative store for messages, profiles, and session credentials; this
// client only consumes its contract.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	apperrors "heartlink-client/pkg/errors"
	"heartlink-client/pkg/logger"
)

// Config holds client configuration
type Config struct {
	BaseURL         string
	AuthToken       string
	Timeout         time.Duration
	RetryMaxElapsed time.Duration
}

// Client is an HTTP client for the platform backend with bounded retry on
// transport errors and 5xx responses. 4xx responses are never retried.
type Client struct {
	baseURL         string
	authToken       string
	http            *http.Client
	retryMaxElapsed time.Duration
	log             *zap.Logger
}

// NewClient creates a new backend client
func NewClient(cfg Config) *Client {
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	return &Client{
		baseURL:         cfg.BaseURL,
		authToken:       cfg.AuthToken,
		http:            &http.Client{Transport: tr, Timeout: cfg.Timeout},
		retryMaxElapsed: cfg.RetryMaxElapsed,
		log:             logger.Named("backend"),
	}
}

// apiError is the backend error envelope
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// statusError marks a non-2xx response so retry policy can distinguish client
// errors from server errors
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.status, e.body)
}

// doJSON performs one request with retry and decodes the JSON response into out
// when out is non-nil
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	operation := func() error {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.authToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.authToken)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err // transport errors are retryable
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &statusError{status: resp.StatusCode, body: string(b)}
		}
		if resp.StatusCode >= 400 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			var envelope apiError
			msg := string(b)
			if json.Unmarshal(b, &envelope) == nil && envelope.Error != "" {
				msg = envelope.Error
			}
			return backoff.Permanent(&statusError{status: resp.StatusCode, body: msg})
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
		} else {
			io.Copy(io.Discard, resp.Body)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.retryMaxElapsed

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		c.log.Warn("backend request retry",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("next_attempt_in", next),
			zap.Error(err))
	}); err != nil {
		return apperrors.BackendError(err)
	}
	return nil
}

func jsonDecode(r io.Reader, out any) error {
	return json.NewDecoder(r).Decode(out)
}
