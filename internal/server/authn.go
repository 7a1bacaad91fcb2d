package server

import (
	"fmt"

	"github.com/danmuck/edgegate/internal/auth"
	"github.com/danmuck/edgegate/internal/config"
)

// BuildAuthenticator maps the [auth] section onto an Authenticator. The
// SecretFile is returned so the caller can watch it; it is nil outside jwt mode.
func BuildAuthenticator(cfg config.AuthConfig) (auth.Authenticator, *auth.SecretFile, error) {
	switch cfg.Mode {
	case config.AuthModeToken:
		return auth.StaticToken{Token: cfg.Token}, nil, nil
	case config.AuthModeJWT:
		secret, err := auth.LoadSecretFile(cfg.SecretFile)
		if err != nil {
			return nil, nil, err
		}
		return auth.JWTAuthenticator{
			Keys:        secret,
			Issuer:      cfg.Issuer,
			Audience:    cfg.Audience,
			BindChannel: cfg.BindChannel,
		}, secret, nil
	case config.AuthModeDisabled:
		return auth.Disabled{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("server: unsupported auth mode %q", cfg.Mode)
	}
}
