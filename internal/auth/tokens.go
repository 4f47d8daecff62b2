package auth

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/raga-mitra/raga_mitra/internal/identity"
)

// Claims is the verified content of a session token.
type Claims struct {
	UserID  string
	Phone   string
	Version int
	Expires time.Time
}

// Tokens signs and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token bound to the user's current token version.
func (t *Tokens) Issue(user identity.User) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := jwtlib.MapClaims{
		"sub":   user.ID,
		"phone": user.Phone,
		"ver":   user.TokenVersion,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
		"jti":   uuid.New().String(),
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, time.Unix(exp.Unix(), 0).UTC(), nil
}

// Parse verifies signature and expiry.
func (t *Tokens) Parse(raw string) (Claims, error) {
	token, err := jwtlib.Parse(raw, func(*jwtlib.Token) (any, error) { return t.secret, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(t.now),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, err
	}
	mc, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return Claims{}, errors.New("unexpected claims type")
	}
	sub, _ := mc["sub"].(string)
	phone, _ := mc["phone"].(string)
	ver, _ := mc["ver"].(float64)
	if sub == "" {
		return Claims{}, errors.New("token has no subject")
	}
	exp, _ := mc.GetExpirationTime()
	c := Claims{UserID: sub, Phone: phone, Version: int(ver)}
	if exp != nil {
		c.Expires = exp.Time
	}
	return c, nil
}
