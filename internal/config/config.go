package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/edgegate/internal/protocol/frame"
	"github.com/danmuck/edgegate/internal/protocol/session"
)

const (
	AuthModeToken    = "token"
	AuthModeJWT      = "jwt"
	AuthModeDisabled = "disabled"
)

// GatewayConfig is the runtime configuration for gatewayd.
type GatewayConfig struct {
	Name            string
	ListenAddr      string
	MessagesPath    string
	PipePath        string
	ChannelService  string
	EmulatorChannel string
	CorsOrigins     []string
	Auth            AuthConfig
	Session         session.Config
	TLS             TLSConfig
}

type AuthConfig struct {
	Mode       string
	Token      string
	SecretFile string
	Issuer     string
	Audience   string
	// BindChannel requires a jwt channelId claim to match the channelid header.
	BindChannel bool
}

type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Name:            "edgegate",
		ListenAddr:      ":3978",
		MessagesPath:    "/api/messages",
		EmulatorChannel: "emulator",
		CorsOrigins:     []string{"http://localhost:3000"},
		Auth: AuthConfig{
			Mode: AuthModeToken,
		},
		Session: session.DefaultConfig(),
	}
}

// gatewayd config.toml key mapping.
type fileConfig struct {
	Name            string      `toml:"name"`
	ListenAddr      string      `toml:"listen_addr"`
	MessagesPath    string      `toml:"messages_path"`
	PipePath        string      `toml:"pipe_path"`
	ChannelService  string      `toml:"channel_service"`
	EmulatorChannel string      `toml:"emulator_channel"`
	CorsOrigins     []string    `toml:"cors_origins"`
	Auth            fileAuth    `toml:"auth"`
	Session         fileSession `toml:"session"`
	TLS             fileTLS     `toml:"tls"`
}

type fileAuth struct {
	Mode        string `toml:"mode"`
	Token       string `toml:"token"`
	SecretFile  string `toml:"secret_file"`
	Issuer      string `toml:"issuer"`
	Audience    string `toml:"audience"`
	BindChannel bool   `toml:"bind_channel"`
}

type fileSession struct {
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	RequestTimeout  string `toml:"request_timeout"`
	MaxPayloadBytes uint64 `toml:"max_payload_bytes"`
}

type fileTLS struct {
	Enabled  bool   `toml:"enabled"`
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
}

// LoadGatewayConfig decodes path and overlays the keys it defines onto
// DefaultGatewayConfig.
func LoadGatewayConfig(path string) (GatewayConfig, error) {
	cfg := DefaultGatewayConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("load gateway config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return GatewayConfig{}, fmt.Errorf("load gateway config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("messages_path") {
		cfg.MessagesPath = strings.TrimSpace(raw.MessagesPath)
	}
	if meta.IsDefined("pipe_path") {
		cfg.PipePath = strings.TrimSpace(raw.PipePath)
	}
	if meta.IsDefined("channel_service") {
		cfg.ChannelService = strings.TrimSpace(raw.ChannelService)
	}
	if meta.IsDefined("emulator_channel") {
		cfg.EmulatorChannel = strings.TrimSpace(raw.EmulatorChannel)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}

	if meta.IsDefined("auth", "mode") {
		cfg.Auth.Mode = strings.ToLower(strings.TrimSpace(raw.Auth.Mode))
	}
	if meta.IsDefined("auth", "token") {
		cfg.Auth.Token = strings.TrimSpace(raw.Auth.Token)
	}
	if meta.IsDefined("auth", "secret_file") {
		cfg.Auth.SecretFile = strings.TrimSpace(raw.Auth.SecretFile)
	}
	if meta.IsDefined("auth", "issuer") {
		cfg.Auth.Issuer = strings.TrimSpace(raw.Auth.Issuer)
	}
	if meta.IsDefined("auth", "audience") {
		cfg.Auth.Audience = strings.TrimSpace(raw.Auth.Audience)
	}
	if meta.IsDefined("auth", "bind_channel") {
		cfg.Auth.BindChannel = raw.Auth.BindChannel
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"read_timeout", raw.Session.ReadTimeout, &cfg.Session.ReadTimeout},
		{"write_timeout", raw.Session.WriteTimeout, &cfg.Session.WriteTimeout},
		{"request_timeout", raw.Session.RequestTimeout, &cfg.Session.RequestTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined("session", d.key) {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return GatewayConfig{}, fmt.Errorf("load gateway config: session.%s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	if meta.IsDefined("session", "max_payload_bytes") {
		cfg.Session.Limits = frame.Limits{MaxPayloadBytes: raw.Session.MaxPayloadBytes}
	}

	if meta.IsDefined("tls", "enabled") {
		cfg.TLS.Enabled = raw.TLS.Enabled
	}
	if meta.IsDefined("tls", "cert_file") {
		cfg.TLS.CertFile = strings.TrimSpace(raw.TLS.CertFile)
	}
	if meta.IsDefined("tls", "key_file") {
		cfg.TLS.KeyFile = strings.TrimSpace(raw.TLS.KeyFile)
	}

	if err := ValidateGatewayConfig(cfg); err != nil {
		return GatewayConfig{}, fmt.Errorf("load gateway config: %w", err)
	}
	return cfg, nil
}

func ValidateGatewayConfig(cfg GatewayConfig) error {
	if strings.TrimSpace(cfg.ListenAddr) == "" && strings.TrimSpace(cfg.PipePath) == "" {
		return fmt.Errorf("listen_addr or pipe_path is required")
	}
	if !strings.HasPrefix(cfg.MessagesPath, "/") {
		return fmt.Errorf("messages_path must start with /: %q", cfg.MessagesPath)
	}
	switch cfg.Auth.Mode {
	case AuthModeToken:
		if cfg.Auth.Token == "" {
			return fmt.Errorf("auth.token is required when auth.mode=%s", AuthModeToken)
		}
	case AuthModeJWT:
		if cfg.Auth.SecretFile == "" {
			return fmt.Errorf("auth.secret_file is required when auth.mode=%s", AuthModeJWT)
		}
	case AuthModeDisabled:
	default:
		return fmt.Errorf("unsupported auth.mode %q (expected token, jwt or disabled)", cfg.Auth.Mode)
	}
	if cfg.Session.ReadTimeout < 0 || cfg.Session.WriteTimeout < 0 || cfg.Session.RequestTimeout < 0 {
		return fmt.Errorf("session timeouts must not be negative")
	}
	if cfg.TLS.Enabled && (cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "") {
		return fmt.Errorf("tls.cert_file and tls.key_file are required when tls.enabled=true")
	}
	return nil
}
