// Package auth decides whether a connection attempt is authenticated.
//
// It does not own policy or storage; the gateway only needs an Identity or an error.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
)

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrMissingToken = errors.New("auth: missing bearer token")
)

// Credentials are the header-equivalent values presented during the handshake.
// Absent values are empty strings.
type Credentials struct {
	AuthHeader     string
	ChannelID      string
	ChannelService string
}

// Identity is the authenticated peer.
type Identity struct {
	Subject   string
	ChannelID string
}

// Authenticator validates handshake credentials. Any error is a rejection.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (Identity, error)
}

// AuthenticatorFunc adapts a function into an Authenticator.
type AuthenticatorFunc func(ctx context.Context, creds Credentials) (Identity, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, creds Credentials) (Identity, error) {
	return f(ctx, creds)
}

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// StaticToken is a simple validator for a single shared token.
// It is intended only for development and proofs of concept.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Authenticate checks the bearer token in creds.AuthHeader.
func (s StaticToken) Authenticate(ctx context.Context, creds Credentials) (Identity, error) {
	return FromValidator(s).Authenticate(ctx, creds)
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// FromValidator lifts a token Validator into an Authenticator over bearer headers.
func FromValidator(v Validator) Authenticator {
	return AuthenticatorFunc(func(_ context.Context, creds Credentials) (Identity, error) {
		token, err := BearerToken(creds.AuthHeader)
		if err != nil {
			return Identity{}, err
		}
		if err := v.Validate(token); err != nil {
			return Identity{}, err
		}
		return Identity{ChannelID: creds.ChannelID}, nil
	})
}

// Disabled accepts every attempt. Local development only.
type Disabled struct{}

func (Disabled) Authenticate(_ context.Context, creds Credentials) (Identity, error) {
	return Identity{Subject: "anonymous", ChannelID: creds.ChannelID}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
