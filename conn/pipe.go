package conn

import (
	"net"

	"github.com/shravanasati/hearth/internal/loop"
	"github.com/shravanasati/hearth/request"
)

// Pipe returns a connection bound to l whose peer is the returned net.Conn,
// with req as its current exchange. It is meant for tests of handlers.
func Pipe(l *loop.Loop, req *request.Request) (*Connection, net.Conn) {
	server, client := net.Pipe()
	c := New(l, server)
	c.Reset(req)
	return c, client
}
