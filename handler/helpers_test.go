package handler

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shravanasati/hearth/conn"
	"github.com/shravanasati/hearth/headers"
	"github.com/shravanasati/hearth/internal/loop"
	"github.com/shravanasati/hearth/request"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) *loop.Loop {
	t.Helper()
	l := loop.New()
	go l.Run(context.Background())
	t.Cleanup(l.Stop)
	return l
}

// onLoop runs fn on l and waits for it to return.
func onLoop(t *testing.T, l *loop.Loop, fn func()) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, l.Post(func() {
		defer close(done)
		fn()
	}))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop task timed out")
	}
}

func newRequest(method, target string) *request.Request {
	return &request.Request{
		RequestLine: request.RequestLine{Method: method, Target: target, HTTPVersion: "1.1"},
		Headers:     headers.NewHeaders(),
	}
}

// newConn returns a connection for method and target plus its client side,
// which is closed when the test ends.
func newConn(t *testing.T, l *loop.Loop, method, target string) (*conn.Connection, net.Conn) {
	t.Helper()
	c, client := conn.Pipe(l, newRequest(method, target))
	t.Cleanup(func() { client.Close() })
	return c, client
}

// readResponse reads one response from the client side of a connection.
func readResponse(t *testing.T, client net.Conn, method string) (*http.Response, string) {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(10*time.Second)))
	res, err := http.ReadResponse(bufio.NewReader(client), &http.Request{Method: method})
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

// syncBuffer is a bytes.Buffer safe for the loop to write while the test
// reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
