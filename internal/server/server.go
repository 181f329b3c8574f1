// Package server is kvd's request-dispatch front end: a TCP listener that
// hands each accepted connection to a thread pool as an independent unit of
// work, decodes one wire request, invokes the shared engine handle, and
// writes back one wire response before closing the connection (§4.7).
package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"

	"kvd/internal/engine"
	"kvd/internal/kverrors"
	"kvd/internal/pool"
	"kvd/internal/wire"
)

// Server owns the process-lifetime resources named in §4.7: the engine
// handle, the listen address, and a structured logger.
type Server struct {
	addr   string
	engine engine.Engine
	pool   pool.Pool
	logger *log.Logger

	listener net.Listener
}

// New constructs a Server. The engine and pool are assumed already
// constructed from the CLI's --engine/--pool flags (§9, "select the
// concrete implementation once at process start").
func New(addr string, eng engine.Engine, p pool.Pool, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{addr: addr, engine: eng, pool: p, logger: logger}
}

// ListenAndServe binds addr and serves connections until the listener is
// closed or a fatal accept error occurs, per §4.7/§7 ("the listener tears
// down only on fatal accept errors").
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.logger.Printf("listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.pool.Spawn(func() { s.handle(conn) })
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// handle processes exactly one request on conn, matching §4.7: decode,
// dispatch to the engine, serialise the response, close.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	req, err := wire.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		if err == io.EOF {
			return
		}
		s.logger.Printf("malformed request from %s: %v", conn.RemoteAddr(), err)
		_ = wire.WriteResponse(conn, wire.ErrorResponse(err.Error()))
		return
	}

	resp := s.dispatch(req)
	if err := wire.WriteResponse(conn, resp); err != nil {
		s.logger.Printf("write response to %s: %v", conn.RemoteAddr(), err)
	}
}

// dispatch invokes the engine method named by req.Op and translates any
// failure into an Error response without tearing down the listener (§7).
func (s *Server) dispatch(req wire.Request) wire.Response {
	switch req.Op {
	case wire.OpGet:
		value, ok, err := s.engine.Get(string(req.Key))
		if err != nil {
			return wire.ErrorResponse(err.Error())
		}
		if !ok {
			return wire.Success(wire.KeyNotFoundBytes)
		}
		return wire.Success([]byte(value))

	case wire.OpSet:
		if err := s.engine.Set(string(req.Key), string(req.Value)); err != nil {
			return wire.ErrorResponse(err.Error())
		}
		return wire.Success([]byte("Set OK"))

	case wire.OpRemove:
		if err := s.engine.Remove(string(req.Key)); err != nil {
			if errors.Is(err, engine.ErrKeyNotFound) || kverrors.ClassifyOf(err) == kverrors.CodeKeyNotFound {
				return wire.ErrorResponse("Key not found")
			}
			return wire.ErrorResponse(err.Error())
		}
		return wire.Success([]byte("Remove OK"))

	default:
		return wire.ErrorResponse(fmt.Sprintf("unknown op %v", req.Op))
	}
}
