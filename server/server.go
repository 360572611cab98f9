package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacentio/arbor/auth"
	"github.com/jacentio/arbor/engine"
	"github.com/jacentio/arbor/packet"
)

// Config holds configuration for the Server.
type Config struct {
	// Limits bounds the size of incoming packets.
	Limits packet.Limits

	// PipelineDepth is how many framed requests of one connection may
	// wait while an earlier one is processed.
	// Default: 16
	PipelineDepth int

	// ReadTimeout closes a connection that sends nothing for this long.
	// Zero disables the timeout.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing one response. Zero disables the timeout.
	WriteTimeout time.Duration

	// ResponseEncoding compresses responses to requests that carry no
	// Encoding field.
	ResponseEncoding string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the configuration used for zero values.
func DefaultConfig() Config {
	return Config{
		Limits:        packet.DefaultLimits(),
		PipelineDepth: 16,
		ReadTimeout:   5 * time.Minute,
		WriteTimeout:  30 * time.Second,
	}
}

func (c *Config) validate() {
	if c.PipelineDepth < 1 {
		c.PipelineDepth = 16
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
	if !packet.ValidEncoding(c.ResponseEncoding) {
		c.ResponseEncoding = packet.EncodingIdentity
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server accepts sync connections and answers their requests.
type Server struct {
	config  Config
	locator auth.Locator
	engine  *engine.Engine
	logger  *slog.Logger

	serving atomic.Bool
	active  atomic.Int64

	// activeConnections tracks connection handlers for graceful
	// shutdown. Serve waits for all of them before returning.
	activeConnections sync.WaitGroup
}

// New creates a server that resolves stores through locator.
func New(locator auth.Locator, config Config) *Server {
	config.validate()
	return &Server{
		config:  config,
		locator: locator,
		engine:  engine.New(config.Logger),
		logger:  config.Logger,
	}
}

// Serve accepts connections on ln until ctx is cancelled, then closes
// ln and every open connection and waits for their handlers to return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.serving.Store(true)
	defer s.serving.Store(false)

	// Unblock Accept when the context is cancelled.
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.logger.Info("sync server listening", "addr", ln.Addr().String())

	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.logger.Warn("accept failed", "error", err)
				continue
			}
			acceptErr = fmt.Errorf("accept: %w", err)
			break
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	s.logger.Info("sync server stopped", "addr", ln.Addr().String())
	return acceptErr
}

// Serving reports whether Serve is accepting connections.
func (s *Server) Serving() bool {
	return s.serving.Load()
}

// ActiveConnections returns the number of open connections.
func (s *Server) ActiveConnections() int64 {
	return s.active.Load()
}
