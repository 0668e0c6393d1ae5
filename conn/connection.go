// Package conn implements the server side of a single client connection as
// seen by request handlers: the current request, the response being built,
// a serialized write queue with flush acknowledgments, and the "completed"
// and "destroyed" events handlers subscribe to.
//
// Every method must be called on the connection's event loop. Socket writes
// run on helper goroutines and report back through the loop.
package conn

import (
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/shravanasati/hearth/headers"
	"github.com/shravanasati/hearth/internal/loop"
	"github.com/shravanasati/hearth/request"
	"github.com/shravanasati/hearth/response"
)

// AckFunc is called on the loop once a submitted chunk has been fully
// written to the socket, or with the error that prevented it.
type AckFunc func(error)

type writeOp struct {
	data  []byte
	ack   AckFunc
	final bool
}

type Connection struct {
	id   uuid.UUID
	loop *loop.Loop
	nc   net.Conn

	req *request.Request

	status    response.StatusCode
	header    *headers.Headers
	headSent  bool
	ended     bool
	bodyBytes int64

	queue   []writeOp
	writing bool

	nextID    uint64
	completed listeners
	destroyed listeners
	finisher  func(*Connection)

	isDestroyed bool
}

// New wraps nc. The connection has no request until Reset is called.
func New(l *loop.Loop, nc net.Conn) *Connection {
	return &Connection{
		id:     uuid.New(),
		loop:   l,
		nc:     nc,
		status: response.StatusOK,
		header: headers.NewHeaders(),
	}
}

// ID is stable for the lifetime of the connection and usable as a map key.
func (c *Connection) ID() uuid.UUID { return c.id }

func (c *Connection) RemoteAddr() string {
	if addr := c.nc.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *Connection) Request() *request.Request { return c.req }

func (c *Connection) Method() string {
	if c.req == nil {
		return ""
	}
	return c.req.Method
}

// Path returns the decoded request path without the query string.
func (c *Connection) Path() string {
	if c.req == nil {
		return ""
	}
	return c.req.Path()
}

// Reset starts a new exchange on the connection for req. Response state from
// the previous exchange is discarded; subscriptions to "destroyed" survive.
func (c *Connection) Reset(req *request.Request) {
	c.req = req
	c.status = response.StatusOK
	c.header = headers.NewHeaders()
	c.headSent = false
	c.ended = false
	c.bodyBytes = 0
	c.completed = nil
}

// SetFinisher installs fn to run after every "completed" subscriber of an
// exchange has run. The server uses it to decide between reuse and teardown.
func (c *Connection) SetFinisher(fn func(*Connection)) { c.finisher = fn }

func (c *Connection) StatusCode() response.StatusCode { return c.status }

// SetStatusCode has no effect once the response head has been sent.
func (c *Connection) SetStatusCode(code response.StatusCode) {
	if !c.headSent {
		c.status = code
	}
}

// Header returns the response header fields that will be sent with the head.
func (c *Connection) Header() *headers.Headers { return c.header }

func (c *Connection) SetHeader(key, value string) {
	if !c.headSent {
		c.header.Set(key, value)
	}
}

// ResponseSize is the number of body bytes submitted for the current exchange.
func (c *Connection) ResponseSize() int64 { return c.bodyBytes }

func (c *Connection) HeadSent() bool { return c.headSent }

// Ended reports whether the body of the current exchange has been marked
// complete.
func (c *Connection) Ended() bool { return c.ended }

func (c *Connection) Destroyed() bool { return c.isDestroyed }

// Post schedules fn on the connection's event loop.
func (c *Connection) Post(fn func()) bool { return c.loop.Post(fn) }

// WriteResponse sends a complete response with the given status and body and
// ends the exchange. The body is omitted for HEAD requests but still framed
// by its length.
func (c *Connection) WriteResponse(status response.StatusCode, body []byte) {
	if c.isDestroyed || c.headSent {
		return
	}
	c.status = status
	c.header.Set("Content-Length", strconv.Itoa(len(body)))
	if c.Method() == string(request.HEAD) {
		body = nil
	}
	if len(body) > 0 {
		c.Write(body, nil)
	}
	c.End()
}

// Write submits chunk for writing. The response head is sent first if it has
// not been yet, and body bytes are dropped for HEAD requests. ack, if non-nil,
// is called on the loop once the chunk has been flushed. Writes on a
// destroyed or ended connection are discarded and never acknowledged.
func (c *Connection) Write(chunk []byte, ack AckFunc) {
	if c.isDestroyed || c.ended {
		return
	}
	if c.Method() == string(request.HEAD) {
		chunk = nil
	}
	data := c.takeHead()
	data = append(data, chunk...)
	c.bodyBytes += int64(len(chunk))
	c.enqueue(writeOp{data: data, ack: ack})
}

// End marks the response body complete. Once everything queued before it has
// been flushed, the "completed" event fires.
func (c *Connection) End() {
	if c.isDestroyed || c.ended {
		return
	}
	if !c.headSent && !c.header.Has("Content-Length") {
		c.header.Set("Content-Length", strconv.FormatInt(c.bodyBytes, 10))
	}
	c.ended = true
	c.enqueue(writeOp{data: c.takeHead(), final: true})
}

// OnCompleted registers fn to run once the current exchange's response has
// been fully flushed.
func (c *Connection) OnCompleted(fn func(*Connection)) *Subscription {
	c.nextID++
	c.completed = append(c.completed, listener{id: c.nextID, fn: fn})
	return &Subscription{c: c, kind: eventCompleted, id: c.nextID}
}

// OnDestroyed registers fn to run when the connection is torn down. If the
// connection is already destroyed fn is not called and the returned
// subscription is inert.
func (c *Connection) OnDestroyed(fn func(*Connection)) *Subscription {
	if c.isDestroyed {
		return &Subscription{}
	}
	c.nextID++
	c.destroyed = append(c.destroyed, listener{id: c.nextID, fn: fn})
	return &Subscription{c: c, kind: eventDestroyed, id: c.nextID}
}

// Destroy closes the socket and notifies "destroyed" subscribers before it
// returns. Pending writes are dropped without acknowledgment.
func (c *Connection) Destroy() {
	if c.isDestroyed {
		return
	}
	c.isDestroyed = true
	c.queue = nil
	c.completed = nil
	_ = c.nc.Close()

	// listeners may cancel each other while we iterate
	for len(c.destroyed) > 0 {
		l := c.destroyed[0]
		c.destroyed = c.destroyed[1:]
		l.fn(c)
	}
}

func (c *Connection) unsubscribe(kind eventKind, id uint64) {
	switch kind {
	case eventCompleted:
		c.completed = c.completed.without(id)
	case eventDestroyed:
		c.destroyed = c.destroyed.without(id)
	}
}

func (c *Connection) takeHead() []byte {
	if c.headSent {
		return nil
	}
	c.headSent = true
	return response.EncodeHead(c.status, c.header)
}

func (c *Connection) enqueue(op writeOp) {
	c.queue = append(c.queue, op)
	c.pump()
}

// pump starts the next queued write. Only one socket write is outstanding at
// a time so chunks reach the peer in submission order.
func (c *Connection) pump() {
	if c.writing || len(c.queue) == 0 || c.isDestroyed {
		return
	}
	op := c.queue[0]
	c.writing = true

	if len(op.data) == 0 {
		c.loop.Post(func() { c.writeDone(op, nil) })
		return
	}
	go func() {
		_, err := c.nc.Write(op.data)
		c.loop.Post(func() { c.writeDone(op, err) })
	}()
}

func (c *Connection) writeDone(op writeOp, err error) {
	if c.isDestroyed {
		return
	}
	c.writing = false
	c.queue = c.queue[1:]

	if op.ack != nil {
		op.ack(err)
	}
	if err != nil {
		c.Destroy()
		return
	}
	if op.final {
		c.complete()
	}
	c.pump()
}

func (c *Connection) complete() {
	for len(c.completed) > 0 && !c.isDestroyed {
		l := c.completed[0]
		c.completed = c.completed[1:]
		l.fn(c)
	}
	if c.finisher != nil && !c.isDestroyed {
		c.finisher(c)
	}
}
