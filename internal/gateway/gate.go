package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danmuck/edgegate/internal/auth"
	"github.com/danmuck/edgegate/internal/observability"
	"github.com/danmuck/edgegate/internal/protocol/session"
	"github.com/danmuck/edgegate/internal/transport"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderChannelID     = "channelid"

	reasonUnauthorized = "Unauthorized"
	reasonNoUpgrade    = "Upgrade to WebSocket is required."
)

// Acceptor turns an authenticated stream into a live session. Hub implements it.
type Acceptor interface {
	Accept(ctx context.Context, stream session.Stream, channelID string) (*Peer, error)
}

// Decision is the outcome of one handshake attempt. Status and Reason are set
// only when Accept is false.
type Decision struct {
	Accept    bool
	ChannelID string
	Identity  auth.Identity
	Status    int
	Reason    string
}

func reject(status int, reason string) Decision {
	return Decision{Status: status, Reason: reason}
}

type GateOptions struct {
	// ChannelService is passed to the authenticator as provider context.
	ChannelService string
	Transport      transport.Options
	CheckOrigin    func(r *http.Request) bool
	Logger         *zerolog.Logger
}

// Gate authenticates connection attempts and upgrades accepted ones. A
// rejected attempt never reaches the Acceptor.
type Gate struct {
	authn    auth.Authenticator
	acceptor Acceptor
	opts     GateOptions
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewGate(authn auth.Authenticator, acceptor Acceptor, opts GateOptions) *Gate {
	l := log.Logger
	if opts.Logger != nil {
		l = *opts.Logger
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Gate{
		authn:    authn,
		acceptor: acceptor,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		log: l.With().Str("component", "gate").Logger(),
	}
}

// Attempt decides a connection attempt from its headers. Authenticator errors
// and panics are both unauthorized.
func (g *Gate) Attempt(ctx context.Context, header http.Header, upgradable bool) Decision {
	creds := auth.Credentials{
		AuthHeader:     header.Get(HeaderAuthorization),
		ChannelID:      header.Get(HeaderChannelID),
		ChannelService: g.opts.ChannelService,
	}

	identity, err := g.authenticate(ctx, creds)
	if err != nil {
		observability.RecordHandshake("unauthorized")
		g.log.Warn().Err(err).Str("channel", creds.ChannelID).Msg("gate rejected unauthenticated attempt")
		return reject(http.StatusUnauthorized, reasonUnauthorized)
	}
	if !upgradable {
		observability.RecordHandshake("no_upgrade")
		g.log.Warn().Str("channel", creds.ChannelID).Msg("gate rejected non-upgradable attempt")
		return reject(http.StatusBadRequest, reasonNoUpgrade)
	}
	observability.RecordHandshake("accepted")
	return Decision{Accept: true, ChannelID: creds.ChannelID, Identity: identity}
}

func (g *Gate) authenticate(ctx context.Context, creds auth.Credentials) (id auth.Identity, err error) {
	if g.authn == nil {
		return auth.Identity{}, fmt.Errorf("%w: no authenticator", auth.ErrUnauthorized)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: authenticator panic: %v", auth.ErrUnauthorized, r)
		}
	}()
	return g.authn.Authenticate(ctx, creds)
}

// ServeHTTP runs the handshake for one HTTP request and, on success, hands
// the upgraded socket to the Acceptor.
func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d := g.Attempt(r.Context(), r.Header, websocket.IsWebSocketUpgrade(r))
	if !d.Accept {
		http.Error(w, d.Reason, d.Status)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		g.log.Warn().Err(err).Msg("gate upgrade failed")
		return
	}
	stream := transport.NewWebSocketStream(conn, g.opts.Transport)
	peer, err := g.acceptor.Accept(context.WithoutCancel(r.Context()), stream, d.ChannelID)
	if err != nil {
		g.log.Error().Err(err).Msg("gate accept failed")
		_ = stream.Close()
		return
	}
	g.log.Info().Str("session", peer.Session.ID()).Str("channel", d.ChannelID).
		Str("subject", d.Identity.Subject).Str("remote", stream.RemoteAddr()).Msg("gate accepted connection")
}
