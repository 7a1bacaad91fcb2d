package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/edgegate/internal/protocol/frame"
	"github.com/gorilla/websocket"
)

var ErrUnexpectedMessage = errors.New("transport: unexpected websocket message type")

const closeGrace = time.Second

// WebSocketStream carries one frame per binary websocket message.
type WebSocketStream struct {
	conn      *websocket.Conn
	opts      Options
	closeOnce sync.Once
	closeErr  error
}

func NewWebSocketStream(conn *websocket.Conn, opts Options) *WebSocketStream {
	limits := opts.Limits
	if limits.MaxPayloadBytes == 0 {
		limits = frame.DefaultLimits()
	}
	conn.SetReadLimit(int64(limits.MaxPayloadBytes) + int64(frame.FixedHeaderLen))
	return &WebSocketStream{conn: conn, opts: opts}
}

func (s *WebSocketStream) ReadFrame() (frame.Frame, error) {
	if s.opts.ReadTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
			return frame.Frame{}, err
		}
	}
	mt, data, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return frame.Frame{}, fmt.Errorf("transport: peer closed: %w", err)
		}
		return frame.Frame{}, err
	}
	if mt != websocket.BinaryMessage {
		return frame.Frame{}, fmt.Errorf("%w: %d", ErrUnexpectedMessage, mt)
	}
	return frame.Unmarshal(data, s.opts.Limits)
}

func (s *WebSocketStream) WriteFrame(f frame.Frame) error {
	data, err := frame.Marshal(f, s.opts.Limits)
	if err != nil {
		return err
	}
	if s.opts.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Close sends a best-effort close frame before dropping the connection.
func (s *WebSocketStream) Close() error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *WebSocketStream) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
