package smartapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// envelope is the wrapper SmartAPI puts around every response.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// post sends body to path and decodes the envelope's data into out. When
// secure is set the request carries the session JWT.
func (c *Client) post(ctx context.Context, path string, secure bool, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("X-PrivateKey", c.apiKey)
	if secure {
		jwt := c.Tokens().JWT
		if jwt == "" {
			return fmt.Errorf("no session token: %w", ErrSessionExpired)
		}
		req.Header.Set("Authorization", "Bearer "+jwt)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		// without a session token the upstream rejected the caller's own keys
		if !secure {
			return &APIError{Message: fmt.Sprintf("login rejected with status %d", res.StatusCode)}
		}
		return fmt.Errorf("status %d: %w", res.StatusCode, ErrSessionExpired)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited")
	default:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return fmt.Errorf("unexpected status code: %d: %s", res.StatusCode, string(b))
	}

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w: %w", ErrMalformedResponse, err)
	}
	if !env.Status {
		return &APIError{Code: env.ErrorCode, Message: env.Message}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("missing data: %w", ErrMalformedResponse)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding data: %w: %w", ErrMalformedResponse, err)
	}
	return nil
}
