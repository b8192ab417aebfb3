package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ev-marketplace/config"
	"ev-marketplace/internal/core/domain"
	"ev-marketplace/internal/core/ports"
	"ev-marketplace/pkg/apperror"
	"ev-marketplace/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.CarrierClient against the carrier's REST API.
// Transient failures (timeouts, 5xx) retry with exponential backoff;
// auth failures and unknown tracking numbers do not.
type Client struct {
	baseURL    string
	token      string
	httpClient HTTPClient
	log        zerolog.Logger

	maxRetries      uint64
	initialInterval time.Duration
}

// NewClient creates a carrier API client.
func NewClient(cfg config.CarrierConfig, log zerolog.Logger) *Client {
	return &Client{
		baseURL:         cfg.BaseURL,
		token:           cfg.Token,
		httpClient:      &http.Client{Timeout: cfg.Timeout},
		log:             log,
		maxRetries:      3,
		initialInterval: 200 * time.Millisecond,
	}
}

// NewClientWithHTTP creates a client with a custom HTTP transport.
func NewClientWithHTTP(cfg config.CarrierConfig, httpClient HTTPClient, log zerolog.Logger) *Client {
	c := NewClient(cfg, log)
	c.httpClient = httpClient
	return c
}

type shipmentStatusResponse struct {
	TrackingNumber string `json:"tracking_number"`
	Status         string `json:"status"`
}

type createShipmentRequest struct {
	OrderNumber string `json:"order_number"`
	Carrier     string `json:"carrier,omitempty"`
}

type createShipmentResponse struct {
	TrackingNumber string `json:"tracking_number"`
}

// GetShipmentStatus fetches the carrier's current view of one shipment.
// The carrier's status vocabulary is passed through untranslated.
func (c *Client) GetShipmentStatus(ctx context.Context, trackingNumber string) (*ports.ShipmentStatus, error) {
	var status *ports.ShipmentStatus
	err := c.do(ctx, "shipment_status", func() error {
		body, err := c.request(ctx, http.MethodGet, "/v2/shipments/"+trackingNumber, nil, trackingNumber)
		if err != nil {
			return err
		}
		var resp shipmentStatusResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return backoff.Permanent(apperror.InternalError(fmt.Errorf("decode carrier response: %w", err)))
		}
		status = &ports.ShipmentStatus{
			TrackingNumber: resp.TrackingNumber,
			Status:         resp.Status,
			RawPayload:     body,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// CreateShipment registers an order with the carrier and returns the
// assigned tracking number.
func (c *Client) CreateShipment(ctx context.Context, order *domain.Order) (string, error) {
	payload, err := json.Marshal(createShipmentRequest{
		OrderNumber: order.OrderNumber,
		Carrier:     order.Shipping.Carrier,
	})
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("encode shipment request: %w", err))
	}

	var trackingNumber string
	err = c.do(ctx, "create_shipment", func() error {
		body, err := c.request(ctx, http.MethodPost, "/v2/shipments", payload, order.OrderNumber)
		if err != nil {
			return err
		}
		var resp createShipmentResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return backoff.Permanent(apperror.InternalError(fmt.Errorf("decode carrier response: %w", err)))
		}
		trackingNumber = resp.TrackingNumber
		return nil
	})
	return trackingNumber, err
}

// CancelShipment asks the carrier to stop a shipment.
func (c *Client) CancelShipment(ctx context.Context, trackingNumber string) error {
	return c.do(ctx, "cancel_shipment", func() error {
		_, err := c.request(ctx, http.MethodPost, "/v2/shipments/"+trackingNumber+"/cancel", nil, trackingNumber)
		return err
	})
}

// RequestReturn asks the carrier to route a shipment back to the seller.
func (c *Client) RequestReturn(ctx context.Context, trackingNumber string) error {
	return c.do(ctx, "request_return", func() error {
		_, err := c.request(ctx, http.MethodPost, "/v2/shipments/"+trackingNumber+"/return", nil, trackingNumber)
		return err
	})
}

// do wraps an operation with exponential backoff and latency metrics.
func (c *Client) do(ctx context.Context, op string, operation func() error) error {
	start := time.Now()
	defer func() {
		metrics.CarrierRequestLatency.Observe(time.Since(start).Seconds())
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx))
	if err != nil {
		c.log.Warn().Err(err).Str("operation", op).Msg("carrier request failed")
	}
	return err
}

// request performs one HTTP exchange and classifies the outcome. Transient
// errors return as-is so backoff retries them; everything else is wrapped
// in backoff.Permanent.
func (c *Client) request(ctx context.Context, method, path string, payload []byte, trackingNumber string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, backoff.Permanent(apperror.InternalError(fmt.Errorf("build carrier request: %w", err)))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures are worth retrying.
		return nil, apperror.ErrCarrierUnavailable(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.ErrCarrierUnavailable(err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(apperror.ErrCarrierAuthFailure())
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(apperror.ErrCarrierNotFound(trackingNumber))
	case resp.StatusCode >= 500:
		return nil, apperror.ErrCarrierUnavailable(fmt.Errorf("carrier returned %d", resp.StatusCode))
	default:
		return nil, backoff.Permanent(apperror.InternalError(fmt.Errorf("carrier returned %d: %s", resp.StatusCode, body)))
	}
}
