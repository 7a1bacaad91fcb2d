package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/edgegate/internal/activity"
	"github.com/danmuck/edgegate/internal/config"
	"github.com/danmuck/edgegate/internal/peer"
	"github.com/danmuck/edgegate/internal/protocol/session"
	"github.com/danmuck/edgegate/internal/testutil/testlog"
	"github.com/danmuck/edgegate/internal/testutil/tlstest"
	"github.com/danmuck/edgegate/internal/transport"
	"github.com/danmuck/edgegate/internal/turn"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.GatewayConfig {
	cfg := config.DefaultGatewayConfig()
	cfg.Name = "edgegate-test"
	cfg.Auth.Token = "secret"
	return cfg
}

func echoBot() turn.Handler {
	return turn.HandlerFunc(func(ctx context.Context, tc *turn.Context) error {
		if tc.Activity.IsType(activity.TypeMessage) {
			_, err := tc.SendActivity(ctx, tc.Reply("echo: "+tc.Activity.Text))
			return err
		}
		return nil
	})
}

func TestHealthMetricsAndHandshakeRoutes(t *testing.T) {
	testlog.Start(t)
	s, err := New(testConfig(), echoBot())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "edgegate-test", health["service"])
	assert.EqualValues(t, 0, health["sessions"])

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/messages", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, s.Hub().Count())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.Auth.Mode = "oauth"
	_, err := New(cfg, nil)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Auth = config.AuthConfig{Mode: config.AuthModeJWT, SecretFile: filepath.Join(t.TempDir(), "missing")}
	_, err = New(cfg, nil)
	assert.Error(t, err)
}

func TestServeAcceptsWebSocketAndPipePeers(t *testing.T) {
	testlog.Start(t)
	dir, err := os.MkdirTemp("", "egw")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	cfg := testConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.PipePath = filepath.Join(dir, "gw.sock")
	s, err := New(cfg, echoBot())
	require.NoError(t, err)

	httpLn, err := net.Listen("tcp", cfg.ListenAddr)
	require.NoError(t, err)
	pipeLn, err := transport.ListenPipe(cfg.PipePath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, httpLn, pipeLn) }()

	wsRec := peer.NewRecorder(nil)
	wsPeer, err := peer.Dialer{
		URL:       "ws://" + httpLn.Addr().String() + "/api/messages",
		Token:     "secret",
		ChannelID: "test",
		Handler:   wsRec,
	}.Dial(ctx)
	require.NoError(t, err)

	pipeRec := peer.NewRecorder(nil)
	pipePeer, err := peer.DialPipe(ctx, cfg.PipePath, pipeRec, session.DefaultConfig())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.Hub().Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	for _, p := range []*session.Session{wsPeer, pipePeer} {
		resp, err := peer.PostActivity(ctx, p, &activity.Activity{
			Type:         activity.TypeMessage,
			ID:           "m1",
			Text:         "hi",
			Conversation: &activity.ConversationAccount{ID: "c1"},
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.Status)
	}

	require.Len(t, wsRec.Deliveries(), 1)
	assert.Equal(t, "test", wsRec.Deliveries()[0].Activity.ChannelID)
	require.Len(t, pipeRec.Deliveries(), 1)
	assert.Equal(t, PipeChannelID, pipeRec.Deliveries()[0].Activity.ChannelID)
	assert.Equal(t, "echo: hi", pipeRec.Deliveries()[0].Activity.Text)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
	<-wsPeer.Done()
	<-pipePeer.Done()
	assert.Equal(t, 0, s.Hub().Count())
}

func TestServeOverTLS(t *testing.T) {
	testlog.Start(t)
	bundle := tlstest.SelfSigned(t, t.TempDir())

	cfg := testConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.TLS = config.TLSConfig{Enabled: true, CertFile: bundle.CertFile, KeyFile: bundle.KeyFile}
	s, err := New(cfg, echoBot())
	require.NoError(t, err)

	httpLn, err := net.Listen("tcp", cfg.ListenAddr)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, httpLn, nil) }()

	rec := peer.NewRecorder(nil)
	p, err := peer.Dialer{
		URL:       "wss://" + httpLn.Addr().String() + "/api/messages",
		Token:     "secret",
		ChannelID: "tls",
		Handler:   rec,
		WebSocket: &websocket.Dialer{TLSClientConfig: bundle.Client, HandshakeTimeout: 5 * time.Second},
	}.Dial(ctx)
	require.NoError(t, err)

	resp, err := peer.PostActivity(ctx, p, &activity.Activity{
		Type:         activity.TypeMessage,
		Text:         "secure",
		Conversation: &activity.ConversationAccount{ID: "c1"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, rec.Deliveries(), 1)
	assert.Equal(t, "/v3/conversations/c1/activities", rec.Deliveries()[0].Path)

	cancel()
	assert.NoError(t, <-served)
}
