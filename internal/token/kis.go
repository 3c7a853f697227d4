package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// rateLimitCode is the provider's error code for "one token per minute".
const rateLimitCode = "EGW00133"

// KISIssuer issues access tokens and streaming approval keys from the
// brokerage OpenAPI.
type KISIssuer struct {
	BaseURL   string
	AppKey    string
	AppSecret string
	Client    *http.Client
}

// NewKISIssuer creates an issuer; a nil client gets a 30s timeout.
func NewKISIssuer(baseURL, appKey, appSecret string, client *http.Client) *KISIssuer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &KISIssuer{BaseURL: baseURL, AppKey: appKey, AppSecret: appSecret, Client: client}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	ApprovalKey string `json:"approval_key"`
	ErrorCode   string `json:"error_code"`
	ErrorDesc   string `json:"error_description"`
}

// AccessToken returns an Issuer for the price-read bearer token.
func (k *KISIssuer) AccessToken() Issuer {
	return IssuerFunc(func(ctx context.Context) (Token, error) {
		resp, err := k.post(ctx, "/oauth2/tokenP", map[string]string{
			"grant_type": "client_credentials",
			"appkey":     k.AppKey,
			"appsecret":  k.AppSecret,
		})
		if err != nil {
			return Token{}, err
		}
		return Token{Value: resp.AccessToken, TTL: time.Duration(resp.ExpiresIn) * time.Second}, nil
	})
}

// ApprovalKey returns an Issuer for the streaming approval key. The provider
// does not report a lifetime for it, so the Broker's default TTL applies.
func (k *KISIssuer) ApprovalKey() Issuer {
	return IssuerFunc(func(ctx context.Context) (Token, error) {
		resp, err := k.post(ctx, "/oauth2/Approval", map[string]string{
			"grant_type": "client_credentials",
			"appkey":     k.AppKey,
			"secretkey":  k.AppSecret,
		})
		if err != nil {
			return Token{}, err
		}
		return Token{Value: resp.ApprovalKey}, nil
	})
}

func (k *KISIssuer) post(ctx context.Context, path string, payload map[string]string) (*tokenResponse, error) {
	if k.AppKey == "" || k.AppSecret == "" {
		return nil, fmt.Errorf("app key and secret are required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := k.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	var out tokenResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode token response: status %d, body: %s", resp.StatusCode, string(raw))
	}
	if out.ErrorCode == rateLimitCode {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, out.ErrorDesc)
	}
	if resp.StatusCode != http.StatusOK || out.ErrorCode != "" {
		return nil, fmt.Errorf("token endpoint: status %d, code %s: %s", resp.StatusCode, out.ErrorCode, out.ErrorDesc)
	}
	return &out, nil
}
