package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
)

func toolkitServer(t *testing.T, handler http.HandlerFunc) *IdentityToolkit {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewIdentityToolkit(srv.URL+"/v1", "test-key", "", srv.Client())
}

func writeToolkitError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": message}})
}

func TestToolkitSendAndConfirm(t *testing.T) {
	tk := toolkitServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.URL.Path {
		case "/v1/accounts:sendVerificationCode":
			require.Equal(t, "+911234567890", body["phoneNumber"])
			_ = json.NewEncoder(w).Encode(map[string]string{"sessionInfo": "H1"})
		case "/v1/accounts:signInWithPhoneNumber":
			require.Equal(t, "H1", body["sessionInfo"])
			if body["code"] != "000000" {
				writeToolkitError(w, http.StatusBadRequest, "INVALID_CODE")
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"idToken": "id-token", "localId": "uid-1", "phoneNumber": "+911234567890"})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	h, err := tk.StartVerification(ctx, "+911234567890")
	require.NoError(t, err)
	require.Equal(t, "H1", h.ID)
	require.Equal(t, SourcePrimary, h.Source)

	_, err = tk.ConfirmCode(ctx, h, "111111")
	require.ErrorIs(t, err, autherr.ErrInvalidCode)

	conf, err := tk.ConfirmCode(ctx, h, "000000")
	require.NoError(t, err)
	require.Equal(t, "uid-1", conf.UID)
	require.Equal(t, "id-token", conf.IDToken)
}

func TestToolkitErrorMapping(t *testing.T) {
	cases := []struct {
		status  int
		message string
		want    autherr.Kind
	}{
		{http.StatusBadRequest, "INVALID_PHONE_NUMBER : Invalid format.", autherr.KindInvalidInput},
		{http.StatusBadRequest, "SESSION_EXPIRED", autherr.KindExpiredCode},
		{http.StatusBadRequest, "TOO_MANY_ATTEMPTS_TRY_LATER", autherr.KindRateLimited},
		{http.StatusBadRequest, "QUOTA_EXCEEDED", autherr.KindProviderUnavailable},
		{http.StatusBadRequest, "CAPTCHA_CHECK_FAILED : Recaptcha verification failed", autherr.KindProviderUnavailable},
		{http.StatusBadRequest, "OPERATION_NOT_ALLOWED", autherr.KindProviderUnavailable},
		{http.StatusServiceUnavailable, "", autherr.KindProviderUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			tk := toolkitServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeToolkitError(w, tc.status, tc.message)
			})
			_, err := tk.StartVerification(context.Background(), "+911234567890")
			require.Equal(t, tc.want, autherr.KindOf(err))
		})
	}
}

func TestToolkitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	tk := toolkitServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tk.StartVerification(ctx, "+911234567890")
	require.ErrorIs(t, err, autherr.ErrProviderUnavailable)

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	_, err = tk.StartVerification(ctx, "+911234567890")
	require.ErrorIs(t, err, autherr.ErrCanceled)
}
