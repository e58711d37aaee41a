// Package clearance mints and validates the short-lived signed tokens handed
// out after a solved challenge. A valid clearance sets trusted=true on the
// admission request, bypassing the thresholds.
package clearance

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrClearanceInvalid = errors.New("clearance token invalid")
)

// Issuer signs and validates clearance tokens bound to an ip/asn pair.
type Issuer struct {
	secret []byte
	ttl    time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewIssuer builds an Issuer. An empty secret disables clearance entirely:
// Issue fails and Validate rejects every token.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Enabled reports whether a signing secret is configured.
func (i *Issuer) Enabled() bool {
	return len(i.secret) > 0
}

type clearanceClaims struct {
	IP  string `json:"ip"`
	ASN uint   `json:"asn"`
	jwt.RegisteredClaims
}

// Issue mints a clearance token for the given identity key.
func (i *Issuer) Issue(ip string, asn uint) (string, error) {
	if !i.Enabled() {
		return "", errors.New("clearance issuing disabled: no secret configured")
	}

	now := i.now()
	claims := clearanceClaims{
		IP:  ip,
		ASN: asn,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "clearance",
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign clearance: %w", err)
	}
	return signed, nil
}

// Validate checks a token's signature, expiry, and identity binding.
func (i *Issuer) Validate(tokenString, ip string, asn uint) error {
	if !i.Enabled() || tokenString == "" {
		return ErrClearanceInvalid
	}

	var claims clearanceClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return ErrClearanceInvalid
	}

	// A clearance is only good for the key it was minted for.
	if claims.IP != ip || claims.ASN != asn {
		return ErrClearanceInvalid
	}
	return nil
}
