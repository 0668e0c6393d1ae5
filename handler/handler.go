// Package handler contains the request dispatch protocol and the handlers
// built on it: fixed responses, chains, request logging, authentication,
// the metrics endpoint and the static file server with its asynchronous
// file transfer engine.
//
// Handlers run on the event loop of the connection they are given.
package handler

import "github.com/shravanasati/hearth/conn"

// RequestHandler is implemented by everything that can answer a request.
//
// Handle returns true when it has taken ownership of producing the response,
// either by writing it or by starting asynchronous work that will. It
// returns false, leaving the connection untouched, to let the next handler
// try.
type RequestHandler interface {
	Handle(c *conn.Connection) bool
}

// HandlerFunc adapts an ordinary function to RequestHandler.
type HandlerFunc func(c *conn.Connection) bool

func (f HandlerFunc) Handle(c *conn.Connection) bool {
	return f(c)
}
