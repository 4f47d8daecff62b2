// Package apiclient is the HTTP client of the auth API. It also adapts the API's SMS code
// delivery to provider.IdentityProvider so it can serve as the verification fallback.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
)

// User is the account summary returned by the API.
type User struct {
	ID        string     `json:"id"`
	Phone     string     `json:"phone"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// Session is a successful authentication response.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// Proof carries the phone ownership proof for register and reset.
type Proof struct {
	Code    string
	IDToken string
}

// Client calls the auth API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for baseURL. httpClient may be nil.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// SendCode asks the API to deliver a verification code by SMS.
func (c *Client) SendCode(ctx context.Context, phone string) (time.Time, error) {
	var out struct {
		ExpiresAt time.Time `json:"expires_at"`
	}
	err := c.do(ctx, "/auth/send-code", "", map[string]string{"phone": phone}, &out)
	return out.ExpiresAt, err
}

// VerifyCode checks a code without consuming it.
func (c *Client) VerifyCode(ctx context.Context, phone, code string) error {
	return c.do(ctx, "/auth/verify-code", "", map[string]string{"phone": phone, "code": code}, nil)
}

// Register creates the account. The request carries idemKey as its Idempotency-Key, so
// repeating the call with the same key after a lost response replays the first result. An
// empty idemKey gets a fresh key.
func (c *Client) Register(ctx context.Context, phone, pin string, proof Proof, idemKey string) (Session, error) {
	var out Session
	err := c.do(ctx, "/auth/register", keyOrNew(idemKey), map[string]string{
		"phone": phone, "pin": pin, "code": proof.Code, "id_token": proof.IDToken,
	}, &out)
	return out, err
}

// Login authenticates with a PIN.
func (c *Client) Login(ctx context.Context, phone, pin string) (Session, error) {
	var out Session
	err := c.do(ctx, "/auth/login", "", map[string]string{"phone": phone, "pin": pin}, &out)
	return out, err
}

// ResetPIN replaces the PIN after a fresh verification. idemKey works as in Register.
func (c *Client) ResetPIN(ctx context.Context, phone, newPIN string, proof Proof, idemKey string) (Session, error) {
	var out Session
	err := c.do(ctx, "/auth/reset-pin", keyOrNew(idemKey), map[string]string{
		"phone": phone, "new_pin": newPIN, "code": proof.Code, "id_token": proof.IDToken,
	}, &out)
	return out, err
}

// Logout revokes every session of the token's owner.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := c.request(ctx, http.MethodPost, "/auth/logout", "", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.send(ctx, req, nil)
}

// Me returns the account owning token.
func (c *Client) Me(ctx context.Context, token string) (User, error) {
	var out User
	req, err := c.request(ctx, http.MethodGet, "/auth/me", "", nil)
	if err != nil {
		return out, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	err = c.send(ctx, req, &out)
	return out, err
}

func keyOrNew(key string) string {
	if key == "" {
		return uuid.NewString()
	}
	return key
}

func (c *Client) do(ctx context.Context, path, idemKey string, in, out any) error {
	req, err := c.request(ctx, http.MethodPost, path, idemKey, in)
	if err != nil {
		return err
	}
	return c.send(ctx, req, out)
}

func (c *Client) request(ctx context.Context, method, path, idemKey string, in any) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, autherr.Unavailable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	return req, nil
}

func (c *Client) send(ctx context.Context, req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return autherr.Wrap(autherr.KindCanceled, "request canceled", ctxErr)
		}
		return autherr.Unavailable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return autherr.Unavailable(err)
	}
	if resp.StatusCode >= 300 {
		var body autherr.Body
		if jsonErr := json.Unmarshal(raw, &body); jsonErr != nil || body.Message == "" {
			body.Message = fmt.Sprintf("auth api: %s", resp.Status)
		}
		return body.Err(resp.StatusCode)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return autherr.Unavailable(fmt.Errorf("decode %s response: %w", req.URL.Path, err))
	}
	return nil
}
