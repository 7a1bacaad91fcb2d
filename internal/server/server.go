// Package server hosts the gateway: the HTTP handshake endpoint, health and
// metrics routes, and the optional local pipe listener.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/edgegate/internal/auth"
	"github.com/danmuck/edgegate/internal/config"
	"github.com/danmuck/edgegate/internal/gateway"
	"github.com/danmuck/edgegate/internal/logging"
	"github.com/danmuck/edgegate/internal/observability"
	"github.com/danmuck/edgegate/internal/transport"
	"github.com/danmuck/edgegate/internal/turn"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PipeChannelID tags sessions accepted on the local pipe.
const PipeChannelID = "pipe"

const shutdownGrace = 5 * time.Second

type Server struct {
	cfg      config.GatewayConfig
	hub      *gateway.Hub
	gate     *gateway.Gate
	secret   *auth.SecretFile
	router   *gin.Engine
	appeared time.Time
	log      zerolog.Logger
}

// New wires the hub, gate and router for cfg. bot is the turn pipeline run
// for every inbound activity.
func New(cfg config.GatewayConfig, bot turn.Handler) (*Server, error) {
	if err := config.ValidateGatewayConfig(cfg); err != nil {
		return nil, err
	}
	authn, secret, err := BuildAuthenticator(cfg.Auth)
	if err != nil {
		return nil, err
	}

	logger := logging.Component("server").With().Str("node", cfg.Name).Logger()
	hub := gateway.NewHub(bot, gateway.HubOptions{
		Session:         cfg.Session,
		EmulatorChannel: cfg.EmulatorChannel,
		Logger:          &logger,
	})
	gate := gateway.NewGate(authn, hub, gateway.GateOptions{
		ChannelService: cfg.ChannelService,
		Transport: transport.Options{
			ReadTimeout:  cfg.Session.ReadTimeout,
			WriteTimeout: cfg.Session.WriteTimeout,
			Limits:       cfg.Session.Limits,
		},
		Logger: &logger,
	})

	s := &Server{
		cfg:      cfg,
		hub:      hub,
		gate:     gate,
		secret:   secret,
		appeared: time.Now(),
		log:      logger,
	}
	s.router = s.newRouter()
	return s, nil
}

func (s *Server) newRouter() *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(s.log, "/health", "/metrics"))
	r.Use(observability.RequestMetricsMiddleware(s.cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(s.cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Authorization", gateway.HeaderChannelID},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(s.appeared).String(),
			"service":  s.cfg.Name,
			"sessions": s.hub.Count(),
			"version":  "0.0.1",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET(s.cfg.MessagesPath, gin.WrapH(s.gate))
	return r
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Hub() *gateway.Hub {
	return s.hub
}

// Run listens on the configured address and pipe and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	var httpLn, pipeLn net.Listener
	var err error
	if s.cfg.ListenAddr != "" {
		if httpLn, err = net.Listen("tcp", s.cfg.ListenAddr); err != nil {
			return err
		}
	}
	if s.cfg.PipePath != "" {
		if pipeLn, err = transport.ListenPipe(s.cfg.PipePath); err != nil {
			if httpLn != nil {
				_ = httpLn.Close()
			}
			return err
		}
	}
	return s.Serve(ctx, httpLn, pipeLn)
}

// Serve runs on the given listeners; either may be nil. On return every
// session has been closed.
func (s *Server) Serve(ctx context.Context, httpLn, pipeLn net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	if httpLn != nil {
		srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			s.log.Info().Str("addr", httpLn.Addr().String()).Bool("tls", s.cfg.TLS.Enabled).Msg("gateway listening")
			var err error
			if s.cfg.TLS.Enabled {
				err = srv.ServeTLS(httpLn, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
			} else {
				err = srv.Serve(httpLn)
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if pipeLn != nil {
		g.Go(func() error {
			return s.servePipe(ctx, pipeLn)
		})
		g.Go(func() error {
			<-ctx.Done()
			return pipeLn.Close()
		})
	}

	if s.secret != nil {
		g.Go(func() error {
			return s.secret.Watch(ctx)
		})
	}

	err := g.Wait()
	s.hub.CloseAll()
	return err
}

// servePipe accepts local connections. Pipe peers skip the header handshake;
// access is controlled by the socket file permissions.
func (s *Server) servePipe(ctx context.Context, ln net.Listener) error {
	s.log.Info().Str("pipe", ln.Addr().String()).Msg("gateway pipe listening")
	opts := transport.Options{
		ReadTimeout:  s.cfg.Session.ReadTimeout,
		WriteTimeout: s.cfg.Session.WriteTimeout,
		Limits:       s.cfg.Session.Limits,
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		observability.RecordHandshake("pipe")
		stream := transport.NewConnStream(conn, opts)
		peer, err := s.hub.Accept(ctx, stream, PipeChannelID)
		if err != nil {
			s.log.Warn().Err(err).Msg("gateway pipe accept failed")
			_ = stream.Close()
			continue
		}
		s.log.Info().Str("session", peer.Session.ID()).Msg("gateway pipe accepted connection")
	}
}
