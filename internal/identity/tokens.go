// Package identity resolves the authenticated principal from the portal
// access token and talks to the hosted authentication service. The agent
// never issues tokens; it only verifies what the auth provider minted.
package identity

import (
	"crypto"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"rights-console-portal/agent/internal/scope"
)

// ErrInvalidToken is returned when a token is malformed or invalid.
var ErrInvalidToken = errors.New("invalid token")

// Principal is the authenticated identity the session policy is resolved
// for.
type Principal struct {
	UserID    string
	OrgID     string
	Role      string
	Scope     scope.Scope
	SessionID string
}

// AccessClaims holds the JWT claims of the portal access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	OrgID     string `json:"org_id"`
	Role      string `json:"role"`
	Scope     string `json:"scope"`
	SessionID string `json:"session_id"`
}

// Verifier validates access tokens signed with RS256 or ES256.
type Verifier struct {
	publicKey crypto.PublicKey
	issuer    string
	audience  string
}

// NewVerifier parses the PEM public key and returns a Verifier. issuer and
// audience are required and validated on every token.
func NewVerifier(publicKeyPEM []byte, issuer, audience string) (*Verifier, error) {
	if issuer == "" || audience == "" {
		return nil, errors.New("identity: issuer and audience must be set")
	}
	if key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM); err == nil {
		return &Verifier{publicKey: key, issuer: issuer, audience: audience}, nil
	}
	key, err := jwt.ParseECPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, errors.New("identity: public key is neither RSA nor ECDSA PEM")
	}
	return &Verifier{publicKey: key, issuer: issuer, audience: audience}, nil
}

// VerifyAccess parses and validates the access token (signature, exp, iss,
// aud) and returns the principal it carries. An unknown scope claim falls
// back to the user scope so policy resolution stays total.
func (v *Verifier) VerifyAccess(tokenString string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return v.publicKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return v.publicKey, nil
		}
		return nil, ErrInvalidToken
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != v.issuer {
		return nil, ErrInvalidToken
	}
	audOK := false
	for _, a := range claims.Audience {
		if a == v.audience {
			audOK = true
			break
		}
	}
	if !audOK {
		return nil, ErrInvalidToken
	}
	sc, ok := scope.Parse(claims.Scope)
	if !ok {
		sc = scope.User
	}
	return &Principal{
		UserID:    claims.Subject,
		OrgID:     claims.OrgID,
		Role:      claims.Role,
		Scope:     sc,
		SessionID: claims.SessionID,
	}, nil
}
