package gateway

import (
	"context"
	"sync"

	"github.com/danmuck/edgegate/internal/protocol/session"
	"github.com/danmuck/edgegate/internal/turn"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Peer is one accepted connection: its session and the adapter serving it.
type Peer struct {
	ChannelID string
	Session   *session.Session
	Adapter   *Adapter
}

type HubOptions struct {
	Session         session.Config
	EmulatorChannel string
	Logger          *zerolog.Logger
}

// Hub owns every live session. Exactly one session exists per accepted stream.
type Hub struct {
	handler turn.Handler
	opts    HubOptions
	log     zerolog.Logger

	mu     sync.Mutex
	peers  map[string]*Peer
	closed bool
}

func NewHub(handler turn.Handler, opts HubOptions) *Hub {
	l := log.Logger
	if opts.Logger != nil {
		l = *opts.Logger
	}
	return &Hub{
		handler: handler,
		opts:    opts,
		log:     l.With().Str("component", "hub").Logger(),
		peers:   make(map[string]*Peer),
	}
}

// Accept opens a session over stream with a fresh Adapter as its inbound
// handler, and tracks it until the session terminates.
func (h *Hub) Accept(_ context.Context, stream session.Stream, channelID string) (*Peer, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, session.ErrSessionClosed
	}

	peer := &Peer{ChannelID: channelID}
	logger := h.log.With().Str("channel", channelID).Logger()
	s, err := session.Open(stream, nil, h.opts.Session,
		session.WithLogger(logger),
		session.WithBoundHandler(func(s *session.Session) session.Handler {
			peer.Adapter = NewAdapter(s, h.handler, AdapterOptions{
				ChannelID:       channelID,
				EmulatorChannel: h.opts.EmulatorChannel,
				Logger:          &logger,
			})
			return peer.Adapter
		}),
	)
	if err != nil {
		return nil, err
	}
	peer.Session = s

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = s.Close()
		return nil, session.ErrSessionClosed
	}
	h.peers[s.ID()] = peer
	h.mu.Unlock()

	go func() {
		<-s.Done()
		h.mu.Lock()
		delete(h.peers, s.ID())
		h.mu.Unlock()
	}()
	return peer, nil
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Peers returns a snapshot of live peers.
func (h *Hub) Peers() []*Peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p)
	}
	return out
}

// CloseAll terminates every session, waits for them, and rejects later Accepts.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closed = true
	peers := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		_ = p.Session.Close()
	}
	for _, p := range peers {
		p.Session.Wait()
	}
	h.log.Info().Int("sessions", len(peers)).Msg("hub closed")
}
