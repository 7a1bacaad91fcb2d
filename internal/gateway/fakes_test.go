package gateway

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/danmuck/edgegate/internal/protocol/session"
	"github.com/danmuck/edgegate/internal/transport"
)

type fakeSender struct {
	mu      sync.Mutex
	reqs    []*session.Request
	respond func(req *session.Request) (*session.Response, error)
}

func okSender(body string) *fakeSender {
	return &fakeSender{respond: func(*session.Request) (*session.Response, error) {
		return session.NewResponse(http.StatusOK, []byte(body)), nil
	}}
}

func (f *fakeSender) Send(ctx context.Context, req *session.Request) (*session.Response, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	respond := f.respond
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return respond(req)
}

func (f *fakeSender) requests() []*session.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*session.Request(nil), f.reqs...)
}

func (f *fakeSender) paths() []string {
	var out []string
	for _, r := range f.requests() {
		out = append(out, r.Verb+" "+r.Path)
	}
	return out
}

func netPipeStream() (*transport.ConnStream, *transport.ConnStream) {
	a, b := net.Pipe()
	return transport.NewConnStream(a, transport.Options{}), transport.NewConnStream(b, transport.Options{})
}
