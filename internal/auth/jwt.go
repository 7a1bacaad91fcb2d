package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by gateway tokens. ChannelID binds a token to one channel when set.
type Claims struct {
	ChannelID string `json:"channelId,omitempty"`
	jwt.RegisteredClaims
}

// KeySource yields the current HMAC key. SecretFile implements it.
type KeySource interface {
	Key() []byte
}

// StaticKey is a fixed HMAC key.
type StaticKey []byte

func (k StaticKey) Key() []byte {
	return k
}

// JWTAuthenticator validates HS256 bearer tokens.
type JWTAuthenticator struct {
	Keys     KeySource
	Issuer   string
	Audience string
	// BindChannel rejects tokens whose channelId claim differs from the
	// presented channel identifier.
	BindChannel bool
}

func (a JWTAuthenticator) Authenticate(_ context.Context, creds Credentials) (Identity, error) {
	tokenStr, err := BearerToken(creds.AuthHeader)
	if err != nil {
		return Identity{}, err
	}
	if a.Keys == nil || len(a.Keys.Key()) == 0 {
		return Identity{}, fmt.Errorf("%w: no signing key configured", ErrUnauthorized)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}
	if a.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.Keys.Key(), nil
	}, opts...)
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if a.BindChannel && claims.ChannelID != "" && claims.ChannelID != creds.ChannelID {
		return Identity{}, fmt.Errorf("%w: token bound to channel %q", ErrUnauthorized, claims.ChannelID)
	}

	subject, _ := claims.GetSubject()
	return Identity{Subject: subject, ChannelID: creds.ChannelID}, nil
}

// IssueToken signs claims with key. Used by peers and tests.
func IssueToken(key []byte, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}
