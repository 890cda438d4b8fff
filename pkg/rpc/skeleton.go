package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/marmos91/treedfs/internal/logger"
	"github.com/marmos91/treedfs/internal/ratelimiter"
)

// ErrStarted is returned by Start when the skeleton already listens.
var ErrStarted = errors.New("skeleton already started")

// Handler services one decoded call. It reads its arguments from r in the
// order announced by the dispatch key and returns the reply value to be
// marshalled back, or an error to travel as the error envelope.
type Handler func(ctx context.Context, r io.Reader) (any, error)

// Metrics receives one observation per served call. A nil Metrics is a
// no-op.
type Metrics interface {
	RecordCall(method string, d time.Duration, err error)
}

// Skeleton listens on a TCP address and dispatches one call per accepted
// connection through a static handler table.
type Skeleton struct {
	addr    string
	metrics Metrics
	limiter *ratelimiter.RateLimiter

	mu       sync.Mutex
	ln       net.Listener
	started  bool
	handlers map[string]Handler

	wg sync.WaitGroup
}

// NewSkeleton builds a skeleton bound to addr once started. Use ":0" for
// an ephemeral port and read it back with Addr.
func NewSkeleton(addr string, m Metrics) *Skeleton {
	return &Skeleton{
		addr:     addr,
		metrics:  m,
		handlers: make(map[string]Handler),
	}
}

// SetLimiter installs a connection-rate limiter. Connections arriving
// above the limit are closed without being served. Must be called before
// Start.
func (s *Skeleton) SetLimiter(l *ratelimiter.RateLimiter) {
	s.limiter = l
}

func dispatchKey(method string, paramTypes []string) string {
	return method + "|" + strings.Join(paramTypes, ",")
}

// Handle installs a handler for the given method and parameter-type list.
// Installing the same signature twice is a programming error and panics.
func (s *Skeleton) Handle(method string, paramTypes []string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dispatchKey(method, paramTypes)
	if _, ok := s.handlers[key]; ok {
		panic(fmt.Sprintf("rpc: duplicate handler for %s", key))
	}
	s.handlers[key] = h
}

// Start binds the listener and begins accepting connections. It returns
// ErrStarted if the skeleton is already running. The skeleton stops when
// ctx is cancelled or Stop is called.
func (s *Skeleton) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrStarted
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("rpc: listen on %s: %w", s.addr, err)
	}
	s.ln = ln
	s.started = true
	s.mu.Unlock()

	logger.Debug("skeleton listening on %s", ln.Addr())

	s.wg.Add(1)
	go s.acceptLoop(ctx, ln)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Skeleton) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("skeleton accept: %v", err)
			continue
		}

		if s.limiter != nil && !s.limiter.Allow() {
			logger.Warn("skeleton %s: connection from %s rejected by rate limit",
				ln.Addr(), conn.RemoteAddr())
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Skeleton) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	start := time.Now()

	var method string
	if _, err := xdr.Unmarshal(conn, &method); err != nil {
		logger.Warn("skeleton %s: decode method: %v", conn.RemoteAddr(), err)
		return
	}
	var paramTypes []string
	if _, err := xdr.Unmarshal(conn, &paramTypes); err != nil {
		logger.Warn("skeleton %s: decode parameter types: %v", conn.RemoteAddr(), err)
		return
	}

	s.mu.Lock()
	h, ok := s.handlers[dispatchKey(method, paramTypes)]
	s.mu.Unlock()

	var reply any
	var callErr error
	if !ok {
		callErr = &ServerError{
			Kind:    KindInvalidArgument,
			Message: fmt.Sprintf("no method %s(%s)", method, strings.Join(paramTypes, ", ")),
		}
	} else {
		reply, callErr = h(ctx, conn)
	}

	if err := writeResponse(conn, reply, callErr); err != nil {
		logger.Warn("skeleton %s: write response for %s: %v", conn.RemoteAddr(), method, err)
	}

	if s.metrics != nil {
		s.metrics.RecordCall(method, time.Since(start), callErr)
	}
}

func writeResponse(w io.Writer, reply any, callErr error) error {
	if callErr != nil {
		if _, err := xdr.Marshal(w, uint32(1)); err != nil {
			return err
		}
		env := envelopeFor(callErr)
		_, err := xdr.Marshal(w, &env)
		return err
	}

	if _, err := xdr.Marshal(w, uint32(0)); err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	_, err := xdr.Marshal(w, reply)
	return err
}

// Addr returns the bound listener address, or "" before Start.
func (s *Skeleton) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Port returns the bound TCP port, or 0 before Start.
func (s *Skeleton) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return 0
	}
	if tcp, ok := s.ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Stop closes the listener. The accept loop exits; connections already
// being served run to completion. A stopped skeleton may be started again.
func (s *Skeleton) Stop() {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.started = false
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
}

// Shutdown stops the skeleton and waits for in-flight calls to drain or
// for ctx to expire.
func (s *Skeleton) Shutdown(ctx context.Context) error {
	s.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
