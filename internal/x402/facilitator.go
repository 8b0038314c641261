package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultFacilitatorURL = "https://x402.org/facilitator"

	headerContentType   = "Content-Type"
	mimeApplicationJSON = "application/json"
)

// FacilitatorConfig configures a FacilitatorClient.
type FacilitatorConfig struct {
	URL string
	// Timeout caps each call; the requirement's maxTimeoutSeconds applies when zero.
	Timeout time.Duration
	// CreateAuthHeaders returns extra headers for the "verify" or "settle" call.
	CreateAuthHeaders func(endpoint string) (map[string]string, error)
}

// FacilitatorClient calls a remote x402 facilitator over HTTP.
type FacilitatorClient struct {
	url         string
	timeout     time.Duration
	httpClient  *http.Client
	authHeaders func(endpoint string) (map[string]string, error)
}

func NewFacilitatorClient(cfg FacilitatorConfig, httpClient *http.Client) *FacilitatorClient {
	if cfg.URL == "" {
		cfg.URL = DefaultFacilitatorURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &FacilitatorClient{
		url:         strings.TrimRight(cfg.URL, "/"),
		timeout:     cfg.Timeout,
		httpClient:  httpClient,
		authHeaders: cfg.CreateAuthHeaders,
	}
}

// BearerAuth returns a CreateAuthHeaders func that sends a static bearer token.
func BearerAuth(token string) func(string) (map[string]string, error) {
	if token == "" {
		return nil
	}
	return func(string) (map[string]string, error) {
		return map[string]string{"Authorization": "Bearer " + token}, nil
	}
}

type facilitatorRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// Verify asks the facilitator whether payload satisfies req.
func (c *FacilitatorClient) Verify(ctx context.Context, payload PaymentPayload, req PaymentRequirements) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := c.post(ctx, "verify", payload, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle asks the facilitator to execute the transfer described by payload.
func (c *FacilitatorClient) Settle(ctx context.Context, payload PaymentPayload, req PaymentRequirements) (*SettleResponse, error) {
	var out SettleResponse
	if err := c.post(ctx, "settle", payload, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *FacilitatorClient) post(ctx context.Context, endpoint string, payload PaymentPayload, req PaymentRequirements, out any) error {
	timeout := c.timeout
	if timeout <= 0 {
		secs := req.MaxTimeoutSeconds
		if secs <= 0 {
			secs = DefaultMaxTimeoutSeconds
		}
		timeout = time.Duration(secs) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(facilitatorRequest{
		X402Version:         Version,
		PaymentPayload:      payload,
		PaymentRequirements: req,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/%s", c.url, endpoint), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", endpoint, err)
	}
	httpReq.Header.Set(headerContentType, mimeApplicationJSON)
	if c.authHeaders != nil {
		hdrs, err := c.authHeaders(endpoint)
		if err != nil {
			return fmt.Errorf("apply %s auth headers: %w", endpoint, err)
		}
		for k, v := range hdrs {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("facilitator %s failed: %s %s", endpoint, resp.Status, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
