package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
)

// IdentityToolkit talks to the Identity Toolkit REST API
// (accounts:sendVerificationCode and accounts:signInWithPhoneNumber).
type IdentityToolkit struct {
	baseURL        string
	apiKey         string
	recaptchaToken string
	client         *http.Client
	now            func() time.Time
}

// NewIdentityToolkit builds the adapter. baseURL is usually
// https://identitytoolkit.googleapis.com/v1. client may be nil.
func NewIdentityToolkit(baseURL, apiKey, recaptchaToken string, client *http.Client) *IdentityToolkit {
	if client == nil {
		client = &http.Client{}
	}
	return &IdentityToolkit{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		recaptchaToken: recaptchaToken,
		client:         client,
		now:            time.Now,
	}
}

type sendCodeRequest struct {
	PhoneNumber    string `json:"phoneNumber"`
	RecaptchaToken string `json:"recaptchaToken,omitempty"`
}

type sendCodeResponse struct {
	SessionInfo string `json:"sessionInfo"`
}

type signInRequest struct {
	SessionInfo string `json:"sessionInfo"`
	Code        string `json:"code"`
}

type signInResponse struct {
	IDToken     string `json:"idToken"`
	LocalID     string `json:"localId"`
	PhoneNumber string `json:"phoneNumber"`
}

type toolkitError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (t *IdentityToolkit) StartVerification(ctx context.Context, phone string) (Handle, error) {
	var out sendCodeResponse
	if err := t.post(ctx, "accounts:sendVerificationCode", sendCodeRequest{PhoneNumber: phone, RecaptchaToken: t.recaptchaToken}, &out); err != nil {
		return Handle{}, err
	}
	if out.SessionInfo == "" {
		return Handle{}, autherr.Unavailable(errors.New("identity toolkit returned no sessionInfo"))
	}
	return Handle{ID: out.SessionInfo, Phone: phone, Source: SourcePrimary, IssuedAt: t.now()}, nil
}

func (t *IdentityToolkit) ConfirmCode(ctx context.Context, h Handle, code string) (Confirmation, error) {
	var out signInResponse
	if err := t.post(ctx, "accounts:signInWithPhoneNumber", signInRequest{SessionInfo: h.ID, Code: code}, &out); err != nil {
		return Confirmation{}, err
	}
	phone := out.PhoneNumber
	if phone == "" {
		phone = h.Phone
	}
	return Confirmation{UID: out.LocalID, Phone: phone, IDToken: out.IDToken, Source: SourcePrimary}, nil
}

func (t *IdentityToolkit) post(ctx context.Context, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/%s?key=%s", t.baseURL, method, url.QueryEscape(t.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return autherr.Unavailable(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return classifyContext(ctxErr)
		}
		return autherr.Unavailable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return autherr.Unavailable(err)
	}
	if resp.StatusCode >= 300 {
		var te toolkitError
		_ = json.Unmarshal(raw, &te)
		return mapToolkitError(resp.StatusCode, te.Error.Message)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return autherr.Unavailable(fmt.Errorf("decode %s response: %w", method, err))
	}
	return nil
}

// mapToolkitError maps the provider's error strings ("INVALID_CODE", "QUOTA_EXCEEDED : ...")
// onto the shared taxonomy.
func mapToolkitError(status int, message string) error {
	code := message
	if i := strings.IndexAny(code, " :"); i > 0 {
		code = code[:i]
	}
	switch code {
	case "INVALID_PHONE_NUMBER", "MISSING_PHONE_NUMBER":
		return autherr.Invalid("the phone number was rejected by the verification provider")
	case "INVALID_CODE", "MISSING_CODE":
		return autherr.ErrInvalidCode
	case "SESSION_EXPIRED", "CODE_EXPIRED", "INVALID_SESSION_INFO", "MISSING_SESSION_INFO":
		return autherr.ErrExpiredCode
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return autherr.New(autherr.KindRateLimited, "too many verification attempts, try again later")
	}
	if status >= 500 || code != "" {
		// Quota, captcha and project configuration failures land here.
		return autherr.Unavailable(fmt.Errorf("identity toolkit: %d %s", status, message))
	}
	return autherr.Unavailable(fmt.Errorf("identity toolkit: status %d", status))
}

func classifyContext(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return autherr.Unavailable(err)
	}
	return autherr.Wrap(autherr.KindCanceled, "request canceled", err)
}
