package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/edgegate/internal/testutil/testlog"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, key string, claims Claims) string {
	t.Helper()
	tok, err := IssueToken([]byte(key), claims)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestJWTAuthenticator(t *testing.T) {
	testlog.Start(t)
	a := JWTAuthenticator{
		Keys:        StaticKey("s3cret"),
		Issuer:      "edgegate",
		Audience:    "bots",
		BindChannel: true,
	}
	valid := Claims{
		ChannelID: "slack",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "bot-1",
			Issuer:    "edgegate",
			Audience:  jwt.ClaimStrings{"bots"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	ctx := context.Background()

	id, err := a.Authenticate(ctx, Credentials{AuthHeader: signed(t, "s3cret", valid), ChannelID: "slack"})
	require.NoError(t, err)
	assert.Equal(t, "bot-1", id.Subject)
	assert.Equal(t, "slack", id.ChannelID)

	_, err = a.Authenticate(ctx, Credentials{AuthHeader: signed(t, "other", valid), ChannelID: "slack"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = a.Authenticate(ctx, Credentials{AuthHeader: signed(t, "s3cret", valid), ChannelID: "teams"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err = a.Authenticate(ctx, Credentials{AuthHeader: signed(t, "s3cret", expired), ChannelID: "slack"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	wrongIssuer := valid
	wrongIssuer.Issuer = "someone-else"
	_, err = a.Authenticate(ctx, Credentials{AuthHeader: signed(t, "s3cret", wrongIssuer), ChannelID: "slack"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = a.Authenticate(ctx, Credentials{ChannelID: "slack"})
	assert.True(t, errors.Is(err, ErrMissingToken))
}

func TestJWTAuthenticatorWithoutKeyRejects(t *testing.T) {
	testlog.Start(t)
	_, err := JWTAuthenticator{}.Authenticate(context.Background(), Credentials{AuthHeader: "Bearer x"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSecretFileReloadsOnWrite(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o600))

	sf, err := LoadSecretFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(sf.Key()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchErr := make(chan error, 1)
	go func() { watchErr <- sf.Watch(ctx) }()

	a := JWTAuthenticator{Keys: sf}
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("second"), 0o600)
		return string(sf.Key()) == "second"
	}, 3*time.Second, 50*time.Millisecond)

	_, err = a.Authenticate(context.Background(), Credentials{AuthHeader: signed(t, "second", Claims{})})
	assert.NoError(t, err)

	cancel()
	assert.NoError(t, <-watchErr)
}

func TestLoadSecretFileRejectsEmpty(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))
	_, err := LoadSecretFile(path)
	assert.Error(t, err)
}
