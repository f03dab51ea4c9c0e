// Package broker implements the live execution venue adapter: a REST client
// with HMAC request signing. Every call is bounded by its context; a deadline
// expiry surfaces as ErrVenueTimeout so the engine treats it like a rejection
// and retries on the next tick.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/quantfold/trident/internal/config"
	"github.com/quantfold/trident/internal/domain"
)

// Client is the REST client for the broker API.
type Client struct {
	baseURL    string
	auth       HMACAuth
	httpClient *http.Client
}

var _ domain.Venue = (*Client)(nil)

// NewClient creates a broker client from venue configuration.
func NewClient(cfg config.VenueConfig) *Client {
	timeout := cfg.CallTimeout.Duration
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		auth: HMACAuth{
			Key:     cfg.ApiKey,
			Secret:  cfg.ApiSecret,
			Account: cfg.Account,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PlaceOrder opens a position and returns the broker's position reference
// plus the authoritative entry fill.
func (c *Client) PlaceOrder(ctx context.Context, sig domain.EntrySignal) (domain.VenueAck, error) {
	req := orderRequest{
		ClientID:   sig.ID,
		Instrument: sig.Instrument,
		Side:       string(sig.Direction),
		Size:       sig.Size,
		Price:      sig.EntryPrice,
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/positions", req)
	if err != nil {
		return domain.VenueAck{}, fmt.Errorf("broker: place order: %w", err)
	}
	return domain.VenueAck{Ref: resp.PositionID, Price: resp.Price}, nil
}

// ModifyStop moves the protective stop for the referenced position. The
// broker treats a re-send of the stop already in force as a no-op success.
func (c *Client) ModifyStop(ctx context.Context, ref string, stop float64) (domain.VenueAck, error) {
	path := fmt.Sprintf("/positions/%s/stop", url.PathEscape(ref))
	resp, err := c.doRequest(ctx, http.MethodPut, path, stopRequest{Stop: stop})
	if err != nil {
		return domain.VenueAck{}, fmt.Errorf("broker: modify stop %s: %w", ref, err)
	}
	return domain.VenueAck{Ref: resp.PositionID, Price: resp.Price}, nil
}

// ClosePosition closes the given fraction of the referenced position at
// market.
func (c *Client) ClosePosition(ctx context.Context, ref string, fraction float64) (domain.VenueAck, error) {
	path := fmt.Sprintf("/positions/%s/close", url.PathEscape(ref))
	resp, err := c.doRequest(ctx, http.MethodPost, path, closeRequest{Fraction: fraction})
	if err != nil {
		return domain.VenueAck{}, fmt.Errorf("broker: close position %s: %w", ref, err)
	}
	return domain.VenueAck{Ref: resp.PositionID, Price: resp.Price}, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) (positionResponse, error) {
	var out positionResponse

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return out, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return out, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.auth.Headers(method, path, string(jsonBody)) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return out, domain.ErrVenueTimeout
		}
		return out, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return out, err
	}

	if err := json.Unmarshal(respBody, &out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// checkStatus maps HTTP status codes onto the domain's venue errors so the
// orchestrator can treat rejection and timeout uniformly.
func checkStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var apiErr apiError
	detail := string(body)
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		detail = fmt.Sprintf("%s: %s", apiErr.Code, apiErr.Message)
	}

	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, detail)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", domain.ErrVenueTimeout, detail)
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: status %d: %s", domain.ErrVenueRejected, status, detail)
	default:
		return fmt.Errorf("broker: status %d: %s", status, detail)
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
