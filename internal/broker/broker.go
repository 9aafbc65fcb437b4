// Package broker is the HTTP client for the external order-execution
// service. Login is two-factor: account password plus a TOTP code
// derived from the shared secret. The engine only submits intents;
// settlement comes back through the trade event channel.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chartengine/internal/model"

	"github.com/pquerna/otp/totp"
)

// Config holds broker credentials and endpoint.
type Config struct {
	BaseURL    string
	ClientCode string
	Password   string
	TOTPSecret string

	// Timeout for each HTTP call. Defaults to 10s.
	Timeout time.Duration
}

// Client places trade intents against the execution service.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger

	mu        sync.Mutex
	authToken string
}

// New creates a Client.
func New(cfg Config, log *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

type loginRequest struct {
	ClientCode string `json:"client_code"`
	Password   string `json:"password"`
	TOTP       string `json:"totp"`
}

type loginResponse struct {
	Status bool   `json:"status"`
	Token  string `json:"token"`
	Error  string `json:"error,omitempty"`
}

// Login generates a fresh TOTP code and exchanges credentials for a
// session token. Called automatically on the first order and again when
// the service reports an expired session.
func (c *Client) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("broker: totp generation: %w", err)
	}

	body, _ := json.Marshal(loginRequest{
		ClientCode: c.cfg.ClientCode,
		Password:   c.cfg.Password,
		TOTP:       code,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("broker: login: %w", err)
	}
	defer resp.Body.Close()

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("broker: login decode: %w", err)
	}
	if !lr.Status || lr.Token == "" {
		return fmt.Errorf("broker: login rejected: %s", lr.Error)
	}

	c.mu.Lock()
	c.authToken = lr.Token
	c.mu.Unlock()
	c.log.Info("broker session established", "client", c.cfg.ClientCode)
	return nil
}

type orderResponse struct {
	Status  bool   `json:"status"`
	OrderID string `json:"order_id"`
	Error   string `json:"error,omitempty"`
}

// PlaceOrder submits a trade intent. On a 401/403 it refreshes the
// session once and retries.
func (c *Client) PlaceOrder(ctx context.Context, intent model.TradeIntent) (string, error) {
	id, retry, err := c.placeOnce(ctx, intent)
	if err != nil && retry {
		c.log.Warn("broker session expired, re-authenticating")
		if err := c.Login(ctx); err != nil {
			return "", err
		}
		id, _, err = c.placeOnce(ctx, intent)
	}
	return id, err
}

func (c *Client) placeOnce(ctx context.Context, intent model.TradeIntent) (string, bool, error) {
	c.mu.Lock()
	token := c.authToken
	c.mu.Unlock()
	if token == "" {
		return "", true, fmt.Errorf("broker: no session")
	}

	body, _ := json.Marshal(intent)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("broker: place order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", true, fmt.Errorf("broker: session expired (%d)", resp.StatusCode)
	}

	var or orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return "", false, fmt.Errorf("broker: order decode: %w", err)
	}
	if !or.Status {
		return "", false, fmt.Errorf("broker: order rejected: %s", or.Error)
	}
	return or.OrderID, false, nil
}
