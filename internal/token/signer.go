// Package token converts authentication tickets into signed bearer tokens.
//
// Two downstream identity representations are built from the same ticket
// claim set: the OAuth bearer access token and the session cookie token. Each
// is constructed independently from the claims so neither depends on the
// other's internal shape.
package token

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"oauth-provider/internal/provider"
)

// Audience values distinguishing the two identity representations.
const (
	AudienceBearer  = "oauth"
	AudienceSession = "session"
)

// Signer signs and parses HS256 tokens derived from tickets.
// It is immutable and safe for concurrent use.
type Signer struct {
	secret []byte
	issuer string
}

// NewSigner creates a Signer. The secret must already be validated for length
// by configuration.
func NewSigner(secret, issuer string) *Signer {
	return &Signer{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// claimsFor maps a ticket's claim set and validity window onto JWT claims.
func (s *Signer) claimsFor(ticket *provider.Ticket, audience string) (jwt.MapClaims, error) {
	username := ticket.Username()
	if username == "" {
		return nil, fmt.Errorf("ticket has no name claim")
	}

	claims := jwt.MapClaims{
		"sub": username,
		"iss": s.issuer,
		"aud": audience,
		"iat": jwt.NewNumericDate(ticket.IssuedAt),
		"exp": jwt.NewNumericDate(ticket.ExpiresAt),
	}

	for _, claim := range ticket.Claims {
		claims[claim.Type] = claim.Value
	}

	return claims, nil
}

// SignAccessToken produces the OAuth bearer access token for a ticket.
func (s *Signer) SignAccessToken(ticket *provider.Ticket) (string, error) {
	claims, err := s.claimsFor(ticket, AudienceBearer)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return signed, nil
}

// SignSessionToken produces the session cookie token for a ticket.
func (s *Signer) SignSessionToken(ticket *provider.Ticket) (string, error) {
	claims, err := s.claimsFor(ticket, AudienceSession)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

// Parse verifies a token's signature, expiry, issuer, and audience, returning
// its claims.
func (s *Signer) Parse(tokenString, audience string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
