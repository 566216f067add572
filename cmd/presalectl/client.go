package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"solana-presale/internal/api"
	"solana-presale/internal/solana"
)

// apiError is a failed API call.
type apiError struct {
	Status    int
	Kind      string
	Message   string
	Retryable bool
}

func (e *apiError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("%s (HTTP %d, retryable): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.Status, e.Message)
}

// client calls the presale HTTP API.
type client struct {
	baseURL string
	caller  solana.PublicKey
	token   string // bearer token, sent instead of the caller header when set
	http    *http.Client
}

func newClient(baseURL string, caller solana.PublicKey) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		caller:  caller,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// salePath returns the API path of saleID, mapping the singleton sale.
func salePath(saleID string, suffix string) string {
	if saleID == "" {
		saleID = api.SingletonSaleID
	}
	return "/v1/sales/" + url.PathEscape(saleID) + suffix
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// text GETs path and returns the raw response body.
func (c *client) text(ctx context.Context, path string) (string, error) {
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(b), nil
}

// send performs one request. Responses with status >= 400 are closed and
// returned as *apiError.
func (c *client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case !c.caller.IsZero():
		req.Header.Set(api.CallerHeader, c.caller.String())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 400 {
		return resp, nil
	}
	defer resp.Body.Close()

	var errBody api.ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		return nil, &apiError{Status: resp.StatusCode, Kind: "HTTP", Message: resp.Status}
	}
	return nil, &apiError{
		Status:    resp.StatusCode,
		Kind:      errBody.Error.Kind,
		Message:   errBody.Error.Message,
		Retryable: errBody.Error.Retryable,
	}
}

// watch streams events until ctx is cancelled, calling fn for each one.
func (c *client) watch(ctx context.Context, saleID string, all bool, fn func(api.EventResponse)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/v1/events/ws"
	if !all {
		if saleID == "" {
			saleID = api.SingletonSaleID
		}
		wsURL += "?sale=" + url.QueryEscape(saleID)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		var e api.EventResponse
		if err := conn.ReadJSON(&e); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		fn(e)
	}
}
