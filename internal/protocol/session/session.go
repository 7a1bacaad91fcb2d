package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/danmuck/edgegate/internal/observability"
	"github.com/danmuck/edgegate/internal/protocol/frame"
	"github.com/danmuck/edgegate/internal/protocol/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNilStream      = errors.New("session: nil stream")
	ErrNilRequest     = errors.New("session: nil request")
	ErrSessionClosed  = errors.New("session: closed")
	ErrConnectionLost = errors.New("session: connection lost")
	ErrDuplicateID    = errors.New("session: duplicate correlation id")
)

// Stream is a duplex frame stream. ReadFrame is only called from the
// session read loop; WriteFrame calls are serialized by the session.
type Stream interface {
	ReadFrame() (frame.Frame, error)
	WriteFrame(frame.Frame) error
	Close() error
}

// Handler serves requests initiated by the peer.
type Handler interface {
	ServeRequest(ctx context.Context, req *Request) *Response
}

type HandlerFunc func(ctx context.Context, req *Request) *Response

func (f HandlerFunc) ServeRequest(ctx context.Context, req *Request) *Response {
	return f(ctx, req)
}

type Option func(*Session)

// WithBoundHandler builds the inbound handler from the session before the
// read loop starts, for handlers that send on the same session.
func WithBoundHandler(build func(*Session) Handler) Option {
	return func(s *Session) {
		s.handler = build(s)
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.log = logger
	}
}

func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// Session multiplexes concurrent logical requests in both directions over
// one Stream it owns exclusively.
type Session struct {
	id     string
	stream Stream
	cfg    Config
	log    zerolog.Logger

	nextID  atomic.Uint64
	pending *PendingTable

	handlerMu sync.RWMutex
	handler   Handler

	// one-slot write lock; acquisition honors the caller's ctx
	writeSem chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
	inbound   sync.WaitGroup
}

// Open takes ownership of stream and starts the read loop. handler may be
// nil and set later with SetHandler.
func Open(stream Stream, handler Handler, cfg Config, opts ...Option) (*Session, error) {
	if stream == nil {
		return nil, ErrNilStream
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       uuid.NewString(),
		stream:   stream,
		cfg:      cfg.WithDefaults(),
		log:      log.Logger,
		pending:  NewPendingTable(),
		handler:  handler,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		writeSem: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("session", s.id).Logger()
	observability.SessionOpened()
	go s.readLoop()
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

// SetHandler replaces the inbound handler for subsequent peer requests.
func (s *Session) SetHandler(h Handler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handler = h
}

// Done is closed once the session has terminated.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the termination cause, or nil while the session is live.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Pending reports outstanding outbound requests.
func (s *Session) Pending() int {
	return s.pending.Len()
}

// Send writes req and blocks until the correlated response arrives, ctx ends,
// or the session terminates. A closed or nil session fails immediately, and
// so does a ctx that has already ended, without writing anything.
//
// Waiting for the write lock honors ctx. A frame already being written is
// not abandoned part way; that write is bounded by the stream's write timeout.
func (s *Session) Send(ctx context.Context, req *Request) (*Response, error) {
	if s == nil {
		return nil, ErrSessionClosed
	}
	if req == nil {
		return nil, ErrNilRequest
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := s.nextID.Add(1)
	fr, err := EncodeRequestFrame(id, req)
	if err != nil {
		return nil, err
	}
	call, err := s.pending.Register(id)
	if err != nil {
		return nil, err
	}
	observability.AddPendingSlots(1)
	defer observability.AddPendingSlots(-1)

	if err := s.write(ctx, fr); err != nil {
		s.pending.Remove(id)
		return nil, err
	}
	observability.RecordFrame("out", "request")

	select {
	case <-call.Done():
		return call.Result()
	case <-ctx.Done():
		if s.pending.Remove(id) {
			s.log.Debug().Uint64("correlation_id", id).Err(ctx.Err()).Msg("session.Send abandoned")
			return nil, ctx.Err()
		}
		// resolved concurrently with cancellation
		return call.Result()
	}
}

// Close terminates the session; outstanding sends fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.terminate(ErrSessionClosed)
	return nil
}

// Wait blocks until the session has terminated and inbound handlers returned.
func (s *Session) Wait() {
	<-s.done
	s.inbound.Wait()
}

func (s *Session) write(ctx context.Context, fr frame.Frame) error {
	select {
	case s.writeSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return s.Err()
	}
	defer func() { <-s.writeSem }()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Err(); err != nil {
		return err
	}
	if err := s.stream.WriteFrame(fr); err != nil {
		lost := fmt.Errorf("%w: write: %v", ErrConnectionLost, err)
		s.terminate(lost)
		return lost
	}
	return nil
}

func (s *Session) readLoop() {
	for {
		fr, err := s.stream.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.terminate(fmt.Errorf("%w: peer closed stream", ErrConnectionLost))
			} else {
				s.terminate(fmt.Errorf("%w: read: %v", ErrConnectionLost, err))
			}
			return
		}

		if fr.IsResponse() {
			observability.RecordFrame("in", "response")
			s.handleResponse(fr)
			continue
		}
		observability.RecordFrame("in", "request")
		id := fr.Header.MessageID
		if fr.Header.MessageType != schema.MsgRequest {
			s.log.Warn().Uint32("message_type", fr.Header.MessageType).Uint64("correlation_id", id).
				Msg("session.readLoop unexpected message type")
			s.respondAsync(id, NewResponse(http.StatusBadRequest, nil))
			continue
		}
		req, err := DecodeRequestFrame(fr)
		if err != nil {
			s.log.Warn().Err(err).Uint64("correlation_id", id).Msg("session.readLoop decode request")
			s.respondAsync(id, NewResponse(http.StatusBadRequest, nil))
			continue
		}
		s.inbound.Add(1)
		go s.serveInbound(id, req)
	}
}

func (s *Session) handleResponse(fr frame.Frame) {
	id := fr.Header.MessageID
	resp, err := DecodeResponseFrame(fr)
	if err != nil {
		if !s.pending.Fail(id, err) {
			s.log.Debug().Uint64("correlation_id", id).Err(err).Msg("session discard undecodable response")
		}
		return
	}
	if !s.pending.Resolve(id, resp) {
		s.log.Debug().Uint64("correlation_id", id).Int("status", resp.Status).Msg("session discard unmatched response")
	}
}

func (s *Session) serveInbound(id uint64, req *Request) {
	defer s.inbound.Done()
	resp := s.dispatch(req)
	s.respond(id, resp)
}

func (s *Session) dispatch(req *Request) (resp *Response) {
	s.handlerMu.RLock()
	h := s.handler
	s.handlerMu.RUnlock()
	if h == nil {
		return NewResponse(http.StatusServiceUnavailable, nil)
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("verb", req.Verb).Str("path", req.Path).
				Msg("session inbound handler panic")
			resp = NewResponse(http.StatusInternalServerError, nil)
		}
	}()
	resp = h.ServeRequest(s.ctx, req)
	if resp == nil {
		resp = NewResponse(http.StatusOK, nil)
	}
	return resp
}

func (s *Session) respondAsync(id uint64, resp *Response) {
	s.inbound.Add(1)
	go func() {
		defer s.inbound.Done()
		s.respond(id, resp)
	}()
}

func (s *Session) respond(id uint64, resp *Response) {
	fr, err := EncodeResponseFrame(id, resp)
	if err != nil {
		s.log.Error().Err(err).Uint64("correlation_id", id).Msg("session encode response")
		fr, _ = EncodeResponseFrame(id, NewResponse(http.StatusInternalServerError, nil))
	}
	if err := s.write(s.ctx, fr); err != nil {
		s.log.Debug().Err(err).Uint64("correlation_id", id).Msg("session write response")
		return
	}
	observability.RecordFrame("out", "response")
}

func (s *Session) terminate(cause error) {
	s.closeOnce.Do(func() {
		s.errMu.Lock()
		s.err = cause
		s.errMu.Unlock()

		s.cancel()
		_ = s.stream.Close()
		failed := s.pending.FailAll(cause)
		close(s.done)
		observability.SessionClosed()

		ev := s.log.Info()
		if !errors.Is(cause, ErrSessionClosed) {
			ev = s.log.Warn()
		}
		ev.Err(cause).Int("failed_pending", failed).Msg("session terminated")
	})
}
