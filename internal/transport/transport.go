// Package transport adapts byte-stream connections to the frame stream a
// session reads and writes.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/edgegate/internal/protocol/frame"
)

// Options configures deadlines and limits for one stream.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Limits       frame.Limits
}

// ConnStream frames a net.Conn: unix socket pipes, tcp, or net.Pipe in tests.
type ConnStream struct {
	conn      net.Conn
	reader    *bufio.Reader
	opts      Options
	closeOnce sync.Once
	closeErr  error
}

func NewConnStream(conn net.Conn, opts Options) *ConnStream {
	return &ConnStream{
		conn:   conn,
		reader: bufio.NewReader(conn),
		opts:   opts,
	}
}

func (s *ConnStream) ReadFrame() (frame.Frame, error) {
	if s.opts.ReadTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
			return frame.Frame{}, err
		}
	}
	return frame.ReadFrame(s.reader, s.opts.Limits)
}

func (s *ConnStream) WriteFrame(f frame.Frame) error {
	if s.opts.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	return frame.WriteFrame(s.conn, f, s.opts.Limits)
}

func (s *ConnStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *ConnStream) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// ListenPipe opens a local unix-domain socket at path, replacing a stale
// socket file left by a previous process.
func ListenPipe(path string) (net.Listener, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("transport: pipe path required")
	}
	if fi, err := os.Stat(path); err == nil {
		if fi.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("transport: %s exists and is not a socket", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, err
		}
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, err
	}
	return ln, nil
}
