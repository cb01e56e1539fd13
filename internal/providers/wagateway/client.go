// Package wagateway implements the adapter contract against a WhatsApp
// gateway bridge: a sidecar service that owns the actual headless WhatsApp
// clients and exposes them over HTTP, one per tenant.
package wagateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"wablast/internal/adapter"
)

type Config struct {
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration

	// SendRPS/SendBurst cap outbound message calls across all tenants on
	// this pod; the bridge rejects hot senders otherwise.
	SendRPS   float64
	SendBurst int
}

// NewFactory returns an adapter.Factory producing one bridge-backed client
// per tenant. All clients share the HTTP transport and the pod-wide send
// limiter; each gets its own circuit breaker so one tenant's flapping
// connection cannot trip another's.
func NewFactory(cfg Config, log *slog.Logger) adapter.Factory {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	base := strings.TrimRight(cfg.BaseURL, "/")
	var limiter *rate.Limiter
	if cfg.SendRPS > 0 {
		burst := cfg.SendBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.SendRPS), burst)
	}
	return func(tenantID string, h adapter.Handlers) (adapter.Client, error) {
		if base == "" {
			return nil, errors.New("wagateway: base url required")
		}
		ctx, cancel := context.WithCancel(context.Background())
		return &Client{
			tenantID:     tenantID,
			baseURL:      base,
			http:         httpClient,
			handlers:     h,
			limiter:      limiter,
			pollInterval: cfg.PollInterval,
			log:          log.With("tenant_id", tenantID),
			lifecycle:    ctx,
			cancel:       cancel,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        "wagateway:" + tenantID,
				MaxRequests: 1,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
			}),
		}, nil
	}
}

type Client struct {
	tenantID     string
	baseURL      string
	http         *http.Client
	handlers     adapter.Handlers
	breaker      *gobreaker.CircuitBreaker
	limiter      *rate.Limiter
	pollInterval time.Duration
	log          *slog.Logger

	lifecycle context.Context
	cancel    context.CancelFunc
}

// Bridge states, mapped onto handler callbacks by the poll loop.
const (
	bridgeStateInitializing = "initializing"
	bridgeStateQR           = "qr"
	bridgeStateReady        = "ready"
	bridgeStateDisconnected = "disconnected"
	bridgeStateAuthFailure  = "auth_failure"
)

type statusResponse struct {
	State  string `json:"state"`
	QR     string `json:"qr,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Initialize asks the bridge to start (or restore) the tenant's client, then
// begins polling its status to surface lifecycle events.
func (c *Client) Initialize(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, c.clientURL(), nil, nil); err != nil {
		return err
	}
	go c.poll()
	return nil
}

// Send delivers one message through the bridge. Calls pass the pod-wide rate
// limiter, then the circuit breaker so a dead bridge fails fast instead of
// eating the campaign timeout per recipient.
func (c *Client) Send(ctx context.Context, to, body string) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.do(ctx, http.MethodPost, c.clientURL()+"/messages", sendRequest{To: to, Body: body}, nil)
	})
	return err
}

// Destroy stops the poll loop and asks the bridge to tear the client down.
func (c *Client) Destroy(ctx context.Context) error {
	c.cancel()
	return c.do(ctx, http.MethodDelete, c.clientURL(), nil, nil)
}

// poll watches the bridge status until the client is destroyed or reaches a
// terminal state, translating transitions into handler callbacks.
func (c *Client) poll() {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var lastState, lastQR string
	for {
		select {
		case <-c.lifecycle.Done():
			return
		case <-ticker.C:
		}

		// The shared http.Client timeout bounds each status request.
		var st statusResponse
		if err := c.do(c.lifecycle, http.MethodGet, c.clientURL(), nil, &st); err != nil {
			if c.lifecycle.Err() != nil {
				return
			}
			c.log.Warn("gateway status poll failed", "err", err)
			continue
		}
		if st.State == lastState && st.QR == lastQR {
			continue
		}
		lastState, lastQR = st.State, st.QR

		switch st.State {
		case bridgeStateQR:
			if c.handlers.PairingCode != nil && st.QR != "" {
				c.handlers.PairingCode(st.QR)
			}
		case bridgeStateReady:
			if c.handlers.Ready != nil {
				c.handlers.Ready()
			}
		case bridgeStateAuthFailure:
			if c.handlers.AuthFailure != nil {
				c.handlers.AuthFailure(st.Reason)
			}
			return
		case bridgeStateDisconnected:
			if c.handlers.Disconnected != nil {
				c.handlers.Disconnected(st.Reason)
			}
			return
		}
	}
}

func (c *Client) clientURL() string {
	return c.baseURL + "/v1/clients/" + c.tenantID
}

func (c *Client) do(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		var er errorResponse
		_ = json.Unmarshal(b, &er)
		if er.Error != "" {
			return errors.New(er.Error)
		}
		return errors.New("gateway request failed: " + resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
