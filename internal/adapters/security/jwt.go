package security

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier validates RS256 access tokens minted by the identity service
// and maps them to a subject/role pair. The engine never signs tokens; it
// only needs the public key.
type JWTVerifier struct {
	publicKey *rsa.PublicKey
}

func NewJWTVerifier(publicKeyPEM string) (*JWTVerifier, error) {
	if strings.TrimSpace(publicKeyPEM) == "" {
		return nil, errors.New("jwt public key is required")
	}
	pub, err := parseRSAPublic(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &JWTVerifier{publicKey: pub}, nil
}

type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (v *JWTVerifier) Verify(raw string) (string, string, error) {
	parsed, err := jwt.ParseWithClaims(raw, &accessClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return v.publicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return "", "", err
	}
	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid {
		return "", "", errors.New("invalid token claims")
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", "", errors.New("token missing subject")
	}
	role := strings.ToLower(strings.TrimSpace(claims.Role))
	if role == "" {
		role = "player"
	}
	return sub, role, nil
}

// StaticVerifier trusts the bearer token as the subject id directly. It
// exists for local development when the identity service is not running; the
// role comes from an optional "<subject>:<role>" suffix.
type StaticVerifier struct{}

func (StaticVerifier) Verify(raw string) (string, string, error) {
	sub := strings.TrimSpace(raw)
	if sub == "" {
		return "", "", errors.New("empty token")
	}
	role := "player"
	if idx := strings.LastIndex(sub, ":"); idx > 0 {
		role = strings.ToLower(strings.TrimSpace(sub[idx+1:]))
		sub = sub[:idx]
	}
	return sub, role, nil
}

func parseRSAPublic(raw string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid public PEM")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return key, nil
}
