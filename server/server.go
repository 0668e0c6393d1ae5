// Package server accepts TCP connections, parses requests off them and
// dispatches each one to a handler.RequestHandler on a single event loop.
package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/shravanasati/hearth/conn"
	"github.com/shravanasati/hearth/handler"
	"github.com/shravanasati/hearth/internal/loop"
	"github.com/shravanasati/hearth/request"
	"github.com/shravanasati/hearth/response"
)

const dateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// session is the server's bookkeeping for one connection. Fields other than
// nc and br are only touched on the loop.
type session struct {
	c         *conn.Connection
	nc        net.Conn
	br        *bufio.Reader
	served    int
	keepAlive bool
}

type Server struct {
	opts     ServerOpts
	listener net.Listener
	closed   atomic.Bool
	handler  handler.RequestHandler
	loop     *loop.Loop
	group    *errgroup.Group
	cancel   context.CancelFunc

	// only touched on the loop
	sessions map[uuid.UUID]*session
}

func newServer(opts ServerOpts, h handler.RequestHandler) *Server {
	opts.setDefaults()
	return &Server{
		opts:     opts,
		handler:  h,
		loop:     loop.New(),
		sessions: make(map[uuid.UUID]*session),
	}
}

// Serve starts listening on opts.Address and returns once the listener is
// bound. The server runs until ctx is cancelled or Close is called; Wait
// reports why it stopped.
func Serve(ctx context.Context, opts ServerOpts, h handler.RequestHandler) (*Server, error) {
	s := newServer(opts, h)

	listener, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return nil, err
	}
	if s.opts.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, s.opts.MaxConnections)
	}
	s.listener = listener

	ctx, s.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	s.group = g

	g.Go(func() error {
		err := s.loop.Run(context.Background())
		if errors.Is(err, loop.ErrStopped) {
			return nil
		}
		return err
	})
	g.Go(s.acceptLoop)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			s.Close()
		case <-s.loop.Done():
		}
		return nil
	})

	s.opts.Logger.Info("listening", "address", s.Addr().String())
	return s, nil
}

// Addr is the address the server is bound to.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops accepting, destroys every open connection and stops the loop.
// In-flight file transfers are aborted.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.listener.Close()
	posted := s.loop.Post(func() {
		for _, sess := range s.sessions {
			sess.c.Destroy()
		}
		s.loop.Stop()
	})
	if !posted {
		s.loop.Stop()
	}
	s.cancel()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Wait blocks until the server has stopped and returns the first error that
// stopped it, if any.
func (s *Server) Wait() error {
	return s.group.Wait()
}

func (s *Server) acceptLoop() error {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			s.opts.Logger.Error("unable to accept connection", "error", err)
			return err
		}
		if !s.loop.Post(func() { s.open(nc) }) {
			nc.Close()
		}
	}
}

func (s *Server) open(nc net.Conn) {
	c := conn.New(s.loop, nc)
	sess := &session{c: c, nc: nc, br: bufio.NewReader(nc)}
	s.sessions[c.ID()] = sess
	s.opts.Metrics.ConnectionOpened()

	c.SetFinisher(s.finish)
	c.OnDestroyed(func(c *conn.Connection) {
		delete(s.sessions, c.ID())
		s.opts.Metrics.ConnectionClosed()
		s.opts.Logger.Debug("connection closed", "conn_id", c.ID(), "remote", c.RemoteAddr())
	})

	s.opts.Logger.Debug("connection opened", "conn_id", c.ID(), "remote", c.RemoteAddr())
	s.readNext(sess, s.opts.ReadTimeout)
}

// readNext parses the next request off the connection on a helper goroutine
// and hands it to the loop.
func (s *Server) readNext(sess *session, timeout time.Duration) {
	go func() {
		if timeout > 0 {
			sess.nc.SetReadDeadline(time.Now().Add(timeout))
		}
		req, err := request.RequestFromReader(sess.br, s.opts.MaxBodySize)
		if !s.loop.Post(func() { s.dispatch(sess, req, err) }) {
			sess.nc.Close()
		}
	}()
}

func (s *Server) dispatch(sess *session, req *request.Request, err error) {
	c := sess.c
	if c.Destroyed() {
		return
	}

	if err != nil {
		if isDisconnect(err) {
			c.Destroy()
			return
		}
		s.opts.Logger.Debug("bad request", "conn_id", c.ID(), "remote", c.RemoteAddr(), "error", err)
		c.Reset(nil)
		s.reject(sess, statusFor(err))
		return
	}

	c.Reset(req)
	sess.served++
	if err := validateHost(req); err != nil {
		s.opts.Logger.Debug("bad request", "conn_id", c.ID(), "remote", c.RemoteAddr(), "error", err)
		s.reject(sess, response.StatusBadRequest)
		return
	}

	sess.keepAlive = s.opts.KeepAliveTimeout > 0 && req.KeepAlive()
	c.SetHeader("Date", time.Now().UTC().Format(dateFormat))
	if !sess.keepAlive {
		c.SetHeader("Connection", "close")
	}

	if !s.invoke(sess) && !c.Destroyed() && !c.HeadSent() {
		c.WriteResponse(response.StatusNotFound, []byte(response.GetStatusReason(response.StatusNotFound)))
	}
}

// invoke runs the handler, turning a panic into the Recovery response.
func (s *Server) invoke(sess *session) (handled bool) {
	c := sess.c
	defer func() {
		if r := recover(); r != nil {
			handled = true
			status, body := s.opts.Recovery(r)
			if c.Destroyed() {
				return
			}
			if c.HeadSent() {
				// too late for an error response
				c.Destroy()
				return
			}
			sess.keepAlive = false
			c.SetHeader("Connection", "close")
			c.SetHeader("Content-Type", "text/plain; charset=utf-8")
			c.WriteResponse(status, []byte(body))
		}
	}()
	return s.handler.Handle(c)
}

func (s *Server) reject(sess *session, status response.StatusCode) {
	sess.keepAlive = false
	sess.c.SetHeader("Connection", "close")
	sess.c.WriteResponse(status, []byte(response.GetStatusReason(status)))
}

// finish runs once a response has been flushed and every "completed"
// subscriber has seen it.
func (s *Server) finish(c *conn.Connection) {
	sess, ok := s.sessions[c.ID()]
	if !ok {
		return
	}
	if !sess.keepAlive {
		c.Destroy()
		return
	}
	s.readNext(sess, s.opts.KeepAliveTimeout)
}

func validateHost(req *request.Request) error {
	host := req.Headers.Get("host")
	if host == "" || strings.Contains(host, ",") {
		return request.ErrMissingHost
	}
	return nil
}

// isDisconnect reports errors that mean the peer went away or idled out,
// which end the connection without a response.
func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func statusFor(err error) response.StatusCode {
	if errors.Is(err, request.ErrBodyTooLarge) {
		return response.StatusPayloadTooLarge
	}
	return response.StatusBadRequest
}
