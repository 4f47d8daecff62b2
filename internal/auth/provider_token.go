package auth

import (
	"context"
	"crypto"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// PhoneTokenVerifier checks an ID token minted by the primary identity provider after it
// confirmed a phone number, and returns that number.
type PhoneTokenVerifier interface {
	VerifyPhone(ctx context.Context, rawIDToken string) (string, error)
}

// OIDCVerifier verifies provider ID tokens against the issuer's published keys.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers issuer (for example https://securetoken.google.com/<project>)
// and accepts tokens whose audience is audience.
func NewOIDCVerifier(ctx context.Context, issuer, audience string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover identity provider: %w", err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: audience})}, nil
}

// NewStaticOIDCVerifier verifies against fixed public keys instead of discovery.
func NewStaticOIDCVerifier(issuer, audience string, keys ...crypto.PublicKey) *OIDCVerifier {
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: audience})}
}

func (v *OIDCVerifier) VerifyPhone(ctx context.Context, rawIDToken string) (string, error) {
	token, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", err
	}
	var claims struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := token.Claims(&claims); err != nil {
		return "", fmt.Errorf("decode id token claims: %w", err)
	}
	if claims.PhoneNumber == "" {
		return "", errors.New("id token carries no phone_number")
	}
	return claims.PhoneNumber, nil
}
