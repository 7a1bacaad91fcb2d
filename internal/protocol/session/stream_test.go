package session

import (
	"errors"
	"io"
	"sync"

	"github.com/danmuck/edgegate/internal/protocol/frame"
)

var errPipeClosed = errors.New("pipe closed")

// memStream is one end of an in-memory frame pipe. Closing either end closes both.
type memStream struct {
	in     <-chan frame.Frame
	out    chan<- frame.Frame
	closed chan struct{}
	once   *sync.Once
}

func newMemPipe() (*memStream, *memStream) {
	ab := make(chan frame.Frame, 16)
	ba := make(chan frame.Frame, 16)
	closed := make(chan struct{})
	once := &sync.Once{}
	a := &memStream{in: ba, out: ab, closed: closed, once: once}
	b := &memStream{in: ab, out: ba, closed: closed, once: once}
	return a, b
}

func (m *memStream) ReadFrame() (frame.Frame, error) {
	select {
	case f := <-m.in:
		return f, nil
	case <-m.closed:
		return frame.Frame{}, io.EOF
	}
}

func (m *memStream) WriteFrame(f frame.Frame) error {
	select {
	case <-m.closed:
		return errPipeClosed
	default:
	}
	select {
	case m.out <- f:
		return nil
	case <-m.closed:
		return errPipeClosed
	}
}

func (m *memStream) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

// stallStream accepts no frames: every write blocks until Close.
type stallStream struct {
	entered chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func newStallStream() *stallStream {
	return &stallStream{entered: make(chan struct{}, 1), closed: make(chan struct{})}
}

func (s *stallStream) ReadFrame() (frame.Frame, error) {
	<-s.closed
	return frame.Frame{}, io.EOF
}

func (s *stallStream) WriteFrame(frame.Frame) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.closed
	return errPipeClosed
}

func (s *stallStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
