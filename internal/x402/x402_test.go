//go:build !integration

package x402_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/x402"
)

const payTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

func samplePayload() x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "base-sepolia",
		Payload: map[string]any{
			"signature": "0xsig",
			"authorization": map[string]any{
				"from":  "0xfrom",
				"to":    payTo,
				"value": "9990000",
			},
		},
	}
}

func TestRequirementBuilder_Build(t *testing.T) {
	b := x402.NewRequirementBuilder(nil, payTo)

	t.Run("converts price to atomic USDC units", func(t *testing.T) {
		req, err := b.Build(decimal.RequireFromString("9.99"), "base-sepolia", "https://api.example.com/subscriptions-k/pay/sub-1", "Pro plan")
		require.NoError(t, err)

		assert.Equal(t, "exact", req.Scheme)
		assert.Equal(t, "base-sepolia", req.Network)
		assert.Equal(t, "9990000", req.MaxAmountRequired)
		assert.Equal(t, "https://api.example.com/subscriptions-k/pay/sub-1", req.Resource)
		assert.Equal(t, payTo, req.PayTo)
		assert.Equal(t, 60, req.MaxTimeoutSeconds)
		assert.Equal(t, "0x036CbD53842c5426634e7929541eC2318f3dCF7e", req.Asset)
		require.NotNil(t, req.Extra)
		assert.Equal(t, "USDC", req.Extra.Name)
		assert.Equal(t, "2", req.Extra.Version)
	})

	t.Run("mainnet uses the USD Coin domain name", func(t *testing.T) {
		req, err := b.Build(decimal.NewFromInt(1), "base", "https://x", "")
		require.NoError(t, err)
		assert.Equal(t, "1000000", req.MaxAmountRequired)
		assert.Equal(t, "USD Coin", req.Extra.Name)
	})

	t.Run("truncates sub-atomic fractions", func(t *testing.T) {
		req, err := b.Build(decimal.RequireFromString("0.0000019"), "base", "https://x", "")
		require.NoError(t, err)
		assert.Equal(t, "1", req.MaxAmountRequired)
	})

	t.Run("unknown network is an invalid price", func(t *testing.T) {
		_, err := b.Build(decimal.NewFromInt(1), "solana", "https://x", "")
		assert.True(t, errors.Is(err, domain.ErrInvalidPrice))
	})

	t.Run("negative price is rejected", func(t *testing.T) {
		_, err := b.Build(decimal.NewFromInt(-1), "base", "https://x", "")
		assert.True(t, errors.Is(err, domain.ErrInvalidPrice))
	})
}

func TestParsePrice(t *testing.T) {
	cases := map[string]string{
		"$9.99":     "9.99",
		"9.99":      "9.99",
		" $1,000 ": "1000",
		"0.001":     "0.001",
	}
	for in, want := range cases {
		got, err := x402.ParsePrice(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "%s -> %s", in, got)
	}

	for _, bad := range []string{"", "$", "abc", "-1"} {
		_, err := x402.ParsePrice(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidPrice, bad)
	}
}

func TestAtomicRoundTrip(t *testing.T) {
	d, err := x402.FromAtomic("9990000", 6)
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("9.99")))
}

func TestPaymentHeaderCodec(t *testing.T) {
	t.Run("decodes a valid header", func(t *testing.T) {
		enc, err := x402.EncodePaymentHeader(samplePayload())
		require.NoError(t, err)

		p, err := x402.DecodePaymentHeader(enc)
		require.NoError(t, err)
		assert.Equal(t, 1, p.X402Version)
		assert.Equal(t, "exact", p.Scheme)
		assert.Equal(t, "0xsig", p.Payload["signature"])
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := x402.DecodePaymentHeader("not-base64!!")
		assert.Error(t, err)

		_, err = x402.DecodePaymentHeader(base64.StdEncoding.EncodeToString([]byte("{not json")))
		assert.Error(t, err)
	})

	t.Run("rejects an empty payload", func(t *testing.T) {
		enc := base64.StdEncoding.EncodeToString([]byte(`{"x402Version":1,"scheme":"exact","network":"base"}`))
		_, err := x402.DecodePaymentHeader(enc)
		assert.Error(t, err)
	})
}

func TestSettleResponseCodec(t *testing.T) {
	payer := "0xpayer"
	in := &x402.SettleResponse{Success: true, Transaction: "0xabc", Network: "base", Payer: &payer}
	enc, err := in.EncodeToBase64String()
	require.NoError(t, err)

	out, err := x402.DecodeSettleResponse(enc)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFacilitatorClient(t *testing.T) {
	req := x402.PaymentRequirements{
		Scheme:            "exact",
		Network:           "base-sepolia",
		MaxAmountRequired: "9990000",
		Resource:          "https://example.com/resource",
		PayTo:             payTo,
		MaxTimeoutSeconds: 60,
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	}

	t.Run("verify posts the v1 envelope with auth headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/verify", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

			var body map[string]json.RawMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.JSONEq(t, `1`, string(body["x402Version"]))
			assert.Contains(t, body, "paymentPayload")
			assert.Contains(t, body, "paymentRequirements")

			payer := "0xpayer"
			_ = json.NewEncoder(w).Encode(x402.VerifyResponse{IsValid: true, Payer: &payer})
		}))
		defer server.Close()

		c := x402.NewFacilitatorClient(x402.FacilitatorConfig{URL: server.URL + "/", CreateAuthHeaders: x402.BearerAuth("secret")}, server.Client())
		resp, err := c.Verify(context.Background(), samplePayload(), req)
		require.NoError(t, err)
		assert.True(t, resp.IsValid)
		require.NotNil(t, resp.Payer)
		assert.Equal(t, "0xpayer", *resp.Payer)
	})

	t.Run("settle decodes the receipt", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/settle", r.URL.Path)
			_ = json.NewEncoder(w).Encode(x402.SettleResponse{Success: true, Transaction: "0xhash", Network: "base-sepolia"})
		}))
		defer server.Close()

		c := x402.NewFacilitatorClient(x402.FacilitatorConfig{URL: server.URL}, server.Client())
		resp, err := c.Settle(context.Background(), samplePayload(), req)
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, "0xhash", resp.Transaction)
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer server.Close()

		c := x402.NewFacilitatorClient(x402.FacilitatorConfig{URL: server.URL}, server.Client())
		_, err := c.Settle(context.Background(), samplePayload(), req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("slow facilitator times out", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		c := x402.NewFacilitatorClient(x402.FacilitatorConfig{URL: server.URL, Timeout: 50 * time.Millisecond}, server.Client())
		_, err := c.Verify(context.Background(), samplePayload(), req)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
