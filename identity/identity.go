/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package identity is the boundary to the external identity provider:
// it mints and verifies the signed tokens that tie ephemeral session
// players back to a durable user id. The protocol core trusts a
// verified token's user id as the actor for every store write.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/google/uuid"
)

var (
	ErrRequired = errors.New("identity: authenticated identity required")
	ErrInvalid  = errors.New("identity: token is invalid")
)

// Identity is a verified actor.
type Identity struct {
	UserID string
	Name   string
}

// Valid reports whether the identity carries a user id. Operations
// must reject absent identities before touching the store.
func (id Identity) Valid() bool {
	return id.UserID != ""
}

// NewUserID allocates a durable user id.
func NewUserID() string {
	return uuid.NewString()
}

// Issuer signs and verifies identity tokens with an HMAC secret shared
// by every gateway instance in front of the same store.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer builds an issuer. An empty secret gets a random one, which
// is fine for a single instance but will not survive restarts.
func NewIssuer(secret, issuer string, ttl time.Duration) *Issuer {
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		secret = hex.EncodeToString(buf)
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Issuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Mint signs a token for the given identity.
func (is *Issuer) Mint(id Identity) (string, error) {
	if !id.Valid() {
		return "", ErrRequired
	}

	now := is.now()
	claims := jwt.MapClaims{
		"iss":  is.issuer,
		"sub":  id.UserID,
		"name": id.Name,
		"iat":  now.Unix(),
		"exp":  now.Add(is.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(is.secret)
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry and returns the identity the
// token carries.
func (is *Issuer) Verify(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return is.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalid
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, ErrInvalid
	}
	name, _ := claims["name"].(string)

	return Identity{UserID: sub, Name: name}, nil
}

// Profile is the users/{userId} record. It is owned by the identity
// subsystem; the game core only ever reads it.
type Profile struct {
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name"`
	PhotoURL  string    `json:"photoURL,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProfilePath returns the store path of a user's profile record.
func ProfilePath(userID string) string {
	return "users/" + userID
}
