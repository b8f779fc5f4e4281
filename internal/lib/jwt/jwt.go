package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrSigning      = errors.New("failed to sign token")
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is implemented by *AccessClaims and *RefreshClaims.
type Claims interface {
	jwt.Claims
	tokenType() string
}

// AccessClaims is the payload of a short-lived, self-verifying access token.
type AccessClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

func (c AccessClaims) tokenType() string { return TypeAccess }

// Validate is called by the parser after the registered claims were checked.
func (c AccessClaims) Validate() error {
	if c.Type != TypeAccess {
		return fmt.Errorf("unexpected token type %q", c.Type)
	}
	if _, err := uuid.Parse(c.Subject); err != nil {
		return fmt.Errorf("bad subject: %w", err)
	}

	return nil
}

// UserID returns the subject. Decoded claims always carry a valid one.
func (c AccessClaims) UserID() uuid.UUID {
	id, _ := uuid.Parse(c.Subject)
	return id
}

// RefreshClaims is the payload of a refresh token. ID (jti) is the revocation handle.
type RefreshClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

func (c RefreshClaims) tokenType() string { return TypeRefresh }

func (c RefreshClaims) Validate() error {
	if c.Type != TypeRefresh {
		return fmt.Errorf("unexpected token type %q", c.Type)
	}
	if _, err := uuid.Parse(c.Subject); err != nil {
		return fmt.Errorf("bad subject: %w", err)
	}
	if _, err := uuid.Parse(c.ID); err != nil {
		return fmt.Errorf("bad token id: %w", err)
	}

	return nil
}

func (c RefreshClaims) UserID() uuid.UUID {
	id, _ := uuid.Parse(c.Subject)
	return id
}

func (c RefreshClaims) TokenID() uuid.UUID {
	id, _ := uuid.Parse(c.ID)
	return id
}

// Codec signs and verifies tokens with a single HS256 secret.
type Codec struct {
	secret []byte
	issuer string
}

func NewCodec(secret, issuer string) *Codec {
	return &Codec{
		secret: []byte(secret),
		issuer: issuer,
	}
}

func (c *Codec) NewAccessClaims(userID uuid.UUID, issuedAt, expiresAt time.Time) *AccessClaims {
	return &AccessClaims{
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
}

func (c *Codec) NewRefreshClaims(tokenID, userID uuid.UUID, issuedAt, expiresAt time.Time) *RefreshClaims {
	return &RefreshClaims{
		Type: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID.String(),
			Subject:   userID.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
}

func (c *Codec) Encode(claims Claims) (string, error) {
	const op = "jwt.Encode"

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, ErrSigning, err)
	}

	return signed, nil
}

func (c *Codec) DecodeAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.decode(tokenString, claims); err != nil {
		return nil, err
	}

	return claims, nil
}

func (c *Codec) DecodeRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.decode(tokenString, claims); err != nil {
		return nil, err
	}

	return claims, nil
}

// decode rejects bad signatures, malformed tokens, a foreign issuer, a
// missing exp and any token with exp <= now.
func (c *Codec) decode(tokenString string, claims Claims) error {
	const op = "jwt.decode"

	token, err := jwt.ParseWithClaims(tokenString, claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidToken, err)
	}

	if !token.Valid {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return nil
}

func (c *Codec) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}

	return c.secret, nil
}
