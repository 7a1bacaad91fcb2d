// Package peer is the remote side of a gateway connection: it dials the
// gateway, opens a session, and posts activities to /api/messages.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/edgegate/internal/activity"
	"github.com/danmuck/edgegate/internal/gateway"
	"github.com/danmuck/edgegate/internal/protocol/session"
	"github.com/danmuck/edgegate/internal/transport"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrRejected means the gateway refused the handshake. It is not retried.
var ErrRejected = errors.New("peer: handshake rejected")

const defaultMaxAttempts = 5

type Dialer struct {
	// URL is the gateway messages endpoint, ws:// or wss://.
	URL       string
	Token     string
	ChannelID string
	// Handler serves requests the gateway routes to this peer (/v3/...).
	Handler     session.Handler
	Session     session.Config
	MaxAttempts int
	WebSocket   *websocket.Dialer
	Logger      *zerolog.Logger
}

func (d Dialer) logger() zerolog.Logger {
	if d.Logger != nil {
		return *d.Logger
	}
	return log.Logger
}

// Dial connects with backoff between failed attempts and returns an open session.
func (d Dialer) Dial(ctx context.Context) (*session.Session, error) {
	cfg := d.Session.WithDefaults()
	wsd := d.WebSocket
	if wsd == nil {
		wsd = websocket.DefaultDialer
	}
	maxAttempts := d.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	header := http.Header{}
	if d.Token != "" {
		header.Set(gateway.HeaderAuthorization, "Bearer "+d.Token)
	}
	if d.ChannelID != "" {
		header.Set(gateway.HeaderChannelID, d.ChannelID)
	}

	logger := d.logger()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 1; ; attempt++ {
		conn, resp, err := wsd.DialContext(ctx, d.URL, header)
		if err == nil {
			stream := transport.NewWebSocketStream(conn, transport.Options{
				ReadTimeout:  cfg.ReadTimeout,
				WriteTimeout: cfg.WriteTimeout,
				Limits:       cfg.Limits,
			})
			return session.Open(stream, d.Handler, cfg, session.WithLogger(logger))
		}
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest) {
			return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
		}
		if attempt >= maxAttempts {
			return nil, fmt.Errorf("peer: dial %s after %d attempts: %w", d.URL, attempt, err)
		}
		logger.Warn().Err(err).Int("attempt", attempt).Str("url", d.URL).Msg("peer dial failed, retrying")
		if err := session.SleepBackoff(ctx, cfg.Backoff, attempt, rng); err != nil {
			return nil, err
		}
	}
}

// DialPipe connects to a gateway's local pipe. No handshake headers are sent.
func DialPipe(ctx context.Context, path string, handler session.Handler, cfg session.Config) (*session.Session, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("peer: dial pipe %s: %w", path, err)
	}
	cfg = cfg.WithDefaults()
	stream := transport.NewConnStream(conn, transport.Options{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Limits:       cfg.Limits,
	})
	return session.Open(stream, handler, cfg)
}

// PostActivity delivers a to the gateway's pipeline and returns its response.
func PostActivity(ctx context.Context, s *session.Session, a *activity.Activity) (*session.Response, error) {
	if a == nil {
		return nil, activity.ErrNilActivity
	}
	body, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return s.Send(ctx, session.NewRequest(http.MethodPost, gateway.MessagesPath, body))
}
