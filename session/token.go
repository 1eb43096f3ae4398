package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType is the typ claim every session token must carry
const TokenType = "session_token"

// Token is a long-lived session token issued by the account authority.
// It bootstraps short-lived service credentials and rarely expires.
type Token struct {
	Raw      string
	Issuer   string
	Type     string
	Audience string
	Subject  string
	ExpiresAt time.Time
}

type sessionClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Parse decodes the token's claims without verifying the signature.
// Signature verification is the authority's concern; the local checks
// only have to reject tokens that cannot possibly work before any
// storage or network access happens.
func Parse(raw string) (*Token, error) {
	if raw == "" {
		return nil, &InvalidTokenError{Reason: "token is empty"}
	}

	var claims sessionClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return nil, &InvalidTokenError{Reason: fmt.Sprintf("malformed token: %v", err)}
	}

	token := &Token{
		Raw:     raw,
		Issuer:  claims.Issuer,
		Type:    claims.Type,
		Subject: claims.Subject,
	}
	if len(claims.Audience) > 0 {
		token.Audience = claims.Audience[0]
	}
	if claims.ExpiresAt != nil {
		token.ExpiresAt = claims.ExpiresAt.Time
	}
	return token, nil
}

// Expectation describes what a service requires of a session token
type Expectation struct {
	Issuer   string
	ClientID string
}

// Validate checks issuer, type, audience and expiry against the
// expectation. Any failure means the token can never authenticate and
// is rejected without touching the cache or the network.
func (t *Token) Validate(expect Expectation, now time.Time) error {
	if t.Issuer != expect.Issuer {
		return &InvalidTokenError{Reason: fmt.Sprintf("unexpected issuer %q", t.Issuer)}
	}
	if t.Type != TokenType {
		return &InvalidTokenError{Reason: fmt.Sprintf("unexpected token type %q", t.Type)}
	}
	if t.Audience != expect.ClientID {
		return &InvalidTokenError{Reason: fmt.Sprintf("token was issued for client %q, expected %q", t.Audience, expect.ClientID)}
	}
	if !t.ExpiresAt.After(now) {
		return &InvalidTokenError{Reason: "token has expired, reauthenticate to obtain a new one"}
	}
	return nil
}
