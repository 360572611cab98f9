package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/arbor/auth"
	"github.com/jacentio/arbor/engine"
	"github.com/jacentio/arbor/packet"
)

// Reasons sent for failures that happen before the engine runs.
const (
	reasonInvalidPacket = "invalid packet format"
	reasonNoDatabase    = "unable to get database: "
)

// handleConnection runs one client connection. A reader goroutine frames
// packets into a bounded queue while this goroutine answers them one at
// a time, so responses leave in request order.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	s.active.Add(1)
	defer s.active.Add(-1)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Closing the connection unblocks both the reader and any write.
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	logger := s.logger.With(
		"conn", uuid.NewString(),
		"remote", conn.RemoteAddr().String(),
	)
	logger.Debug("connection opened")

	queue := make(chan []byte, s.config.PipelineDepth)
	go s.readPackets(connCtx, cancel, conn, queue, logger)

	handled := 0
	for raw := range queue {
		if connCtx.Err() != nil {
			break
		}
		response := s.handle(connCtx, raw, logger)
		if s.config.WriteTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		}
		if _, err := conn.Write(response); err != nil {
			logger.Debug("failed to write response", "error", err)
			cancel()
			break
		}
		handled++
	}

	logger.Debug("connection closed", "requests", handled)
}

// readPackets frames requests from conn into queue until the stream ends.
// A clean end of stream or a framing error closes the queue so requests
// already framed are still answered. Any other failure cancels the
// connection.
func (s *Server) readPackets(ctx context.Context, cancel context.CancelFunc, conn net.Conn, queue chan<- []byte, logger *slog.Logger) {
	defer close(queue)

	reader := packet.NewReader(conn, s.config.Limits)
	for {
		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		raw, err := reader.Next()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
			case errors.Is(err, packet.ErrFraming):
				logger.Warn("closing connection after framing error", "error", err)
			default:
				if ctx.Err() == nil {
					logger.Debug("read failed", "error", err)
				}
				cancel()
			}
			return
		}

		select {
		case queue <- raw:
		case <-ctx.Done():
			return
		}
	}
}

// handle answers one framed request. Every failure becomes an error
// response; handle never fails the connection itself.
func (s *Server) handle(ctx context.Context, raw []byte, logger *slog.Logger) []byte {
	req, err := packet.Decode(raw)
	if err != nil {
		logger.Debug("rejecting request", "error", err)
		return s.errorResponse(reasonInvalidPacket, engine.CodeInvalidPacket, logger)
	}

	creds := auth.Credentials{
		Login:    req.Fields.Get(packet.FieldLogin),
		Password: req.Fields.Get(packet.FieldPassword),
	}
	st, err := s.locator.Locate(ctx, creds)
	if err != nil {
		code := engine.CodeUnknown
		if errors.Is(err, auth.ErrAuthFailed) {
			code = engine.CodeAuthFailed
		}
		logger.Info("unable to locate store", "login", creds.Login, "error", err)
		return s.errorResponse(reasonNoDatabase+err.Error(), code, logger)
	}

	ops, err := s.engine.Apply(ctx, st, req.Operations)
	if err != nil {
		reason := err.Error()
		var opErr *engine.OpError
		if errors.As(err, &opErr) && opErr.Reason != "" {
			reason = opErr.Reason
		}
		return s.errorResponse(reason, engine.CodeOf(err), logger)
	}

	fields := packet.NewFields(packet.FieldStatus, packet.StatusSuccess)
	if enc := s.responseEncoding(req.Fields.Get(packet.FieldEncoding)); enc != packet.EncodingIdentity {
		fields.Set(packet.FieldEncoding, enc)
	}
	out, err := packet.Encode(fields, ops)
	if err != nil {
		logger.Error("failed to encode response", "error", err)
		return s.errorResponse(err.Error(), engine.CodeUnknown, logger)
	}
	return out
}

// responseEncoding echoes a usable request encoding and falls back to
// the configured one.
func (s *Server) responseEncoding(requested string) string {
	if requested != "" && packet.ValidEncoding(requested) {
		return requested
	}
	return s.config.ResponseEncoding
}

func (s *Server) errorResponse(reason string, code engine.Code, logger *slog.Logger) []byte {
	out, err := packet.Encode(packet.ErrorFields(reason, int(code)), nil)
	if err != nil {
		// Only an invalid field name fails, and ErrorFields uses fixed names.
		logger.Error("failed to encode error response", "error", err)
	}
	return out
}
