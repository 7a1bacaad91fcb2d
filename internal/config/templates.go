package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Template renders cfg as a gatewayd config.toml.
func Template(cfg GatewayConfig) (string, error) {
	out, err := toml.Marshal(toFile(cfg))
	if err != nil {
		return "", fmt.Errorf("render gateway config: %w", err)
	}
	return string(out), nil
}

// DefaultTemplate is the starter config written by configgen. It differs from
// DefaultGatewayConfig only by a placeholder token so it validates.
func DefaultTemplate() (string, error) {
	cfg := DefaultGatewayConfig()
	cfg.Auth.Token = "change-me"
	return Template(cfg)
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := DefaultTemplate()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

func toFile(cfg GatewayConfig) fileConfig {
	return fileConfig{
		Name:            cfg.Name,
		ListenAddr:      cfg.ListenAddr,
		MessagesPath:    cfg.MessagesPath,
		PipePath:        cfg.PipePath,
		ChannelService:  cfg.ChannelService,
		EmulatorChannel: cfg.EmulatorChannel,
		CorsOrigins:     cfg.CorsOrigins,
		Auth: fileAuth{
			Mode:        cfg.Auth.Mode,
			Token:       cfg.Auth.Token,
			SecretFile:  cfg.Auth.SecretFile,
			Issuer:      cfg.Auth.Issuer,
			Audience:    cfg.Auth.Audience,
			BindChannel: cfg.Auth.BindChannel,
		},
		Session: fileSession{
			ReadTimeout:     formatDuration(cfg.Session.ReadTimeout.String()),
			WriteTimeout:    formatDuration(cfg.Session.WriteTimeout.String()),
			RequestTimeout:  formatDuration(cfg.Session.RequestTimeout.String()),
			MaxPayloadBytes: cfg.Session.Limits.MaxPayloadBytes,
		},
		TLS: fileTLS{
			Enabled:  cfg.TLS.Enabled,
			CertFile: cfg.TLS.CertFile,
			KeyFile:  cfg.TLS.KeyFile,
		},
	}
}

// formatDuration drops trailing zero units, so "2m0s" is written as "2m".
func formatDuration(s string) string {
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}
