// Package gateway talks to the external payment provider.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"trust-service/internal/config"
)

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Session is an initiated checkout at the provider.
type Session struct {
	Authority   string
	RedirectURL string
}

// Confirmation is the provider's answer to a server-side verify call.
type Confirmation struct {
	Status string
	RefID  string
}

const (
	ConfirmOK     = "OK"
	ConfirmFailed = "FAILED"
)

// Gateway creates checkout sessions and confirms callbacks server-side.
type Gateway interface {
	CreateSession(ctx context.Context, amount int64, description, callbackURL string) (*Session, error)
	Confirm(ctx context.Context, authority string, amount int64) (*Confirmation, error)
}

// HTTPGateway is the JSON-over-HTTP provider client.
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPGateway(cfg *config.Config) *HTTPGateway {
	return &HTTPGateway{
		baseURL: cfg.Payment.GatewayURL,
		token:   cfg.Payment.GatewayToken,
		client:  &http.Client{Timeout: cfg.Payment.GatewayTimeout},
	}
}

type createRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	CallbackURL string `json:"callback_url"`
}

type createResponse struct {
	Authority   string `json:"authority"`
	RedirectURL string `json:"redirect_url"`
}

type confirmRequest struct {
	Authority string `json:"authority"`
	Amount    int64  `json:"amount"`
}

type confirmResponse struct {
	Status string `json:"status"`
	RefID  string `json:"ref_id"`
}

func (g *HTTPGateway) CreateSession(ctx context.Context, amount int64, description, callbackURL string) (*Session, error) {
	var resp createResponse
	err := g.post(ctx, "/v1/payment/create", createRequest{
		Amount:      amount,
		Description: description,
		CallbackURL: callbackURL,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Authority == "" {
		return nil, fmt.Errorf("%w: empty authority in create response", ErrGatewayUnavailable)
	}
	return &Session{Authority: resp.Authority, RedirectURL: resp.RedirectURL}, nil
}

func (g *HTTPGateway) Confirm(ctx context.Context, authority string, amount int64) (*Confirmation, error) {
	var resp confirmResponse
	err := g.post(ctx, "/v1/payment/verify", confirmRequest{
		Authority: authority,
		Amount:    amount,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &Confirmation{Status: resp.Status, RefID: resp.RefID}, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway rejected request: status %d body %s", resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
