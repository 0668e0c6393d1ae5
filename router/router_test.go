package router

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/shravanasati/hearth/conn"
	"github.com/shravanasati/hearth/handler"
	"github.com/shravanasati/hearth/headers"
	"github.com/shravanasati/hearth/internal/loop"
	"github.com/shravanasati/hearth/request"
	"github.com/shravanasati/hearth/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(body string) handler.RequestHandler {
	return handler.HandlerFunc(func(c *conn.Connection) bool {
		c.WriteResponse(response.StatusOK, []byte(body))
		return true
	})
}

// dispatch runs h for one request and returns whether it was handled, plus
// the response if it was.
func dispatch(t *testing.T, h handler.RequestHandler, method, target string) (bool, *http.Response, string) {
	t.Helper()
	l := loop.New()
	go l.Run(context.Background())
	defer l.Stop()

	req := &request.Request{
		RequestLine: request.RequestLine{Method: method, Target: target, HTTPVersion: "1.1"},
		Headers:     headers.NewHeaders(),
	}
	c, client := conn.Pipe(l, req)
	defer client.Close()

	handled := make(chan bool, 1)
	require.True(t, l.Post(func() { handled <- h.Handle(c) }))
	var ok bool
	select {
	case ok = <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return")
	}
	if !ok {
		return false, nil, ""
	}
	res, body := readResponse(t, client, method)
	return true, res, body
}

func readResponse(t *testing.T, client net.Conn, method string) (*http.Response, string) {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(10*time.Second)))
	res, err := http.ReadResponse(bufio.NewReader(client), &http.Request{Method: method})
	require.NoError(t, err)
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(b)
}

func TestRouter(t *testing.T) {
	router := NewRouter()
	router.Get("/home", text("get home"))
	router.Post("/home", text("post home"))
	router.Put("/home", text("put home"))
	router.Patch("/home", text("patch home"))
	router.Delete("/home", text("delete home"))
	router.Get("/users/:id", handler.HandlerFunc(func(c *conn.Connection) bool {
		c.WriteResponse(response.StatusOK, []byte("user "+c.Request().Params["id"]))
		return true
	}))
	router.Any("/any", text("any method"))

	testCases := []struct {
		method         string
		path           string
		handled        bool
		expectedStatus int
		expectedBody   string
	}{
		{"GET", "/home", true, http.StatusOK, "get home"},
		{"POST", "/home", true, http.StatusOK, "post home"},
		{"PUT", "/home", true, http.StatusOK, "put home"},
		{"PATCH", "/home", true, http.StatusOK, "patch home"},
		{"DELETE", "/home", true, http.StatusOK, "delete home"},
		{"HEAD", "/home", true, http.StatusOK, ""},
		{"GET", "/users/123", true, http.StatusOK, "user 123"},
		{"GET", "/any", true, http.StatusOK, "any method"},
		{"POST", "/any", true, http.StatusOK, "any method"},
		{"DELETE", "/any", true, http.StatusOK, "any method"},
		{"OPTIONS", "/home", true, http.StatusMethodNotAllowed, "Method Not Allowed"},
		{"GET", "/notfound", false, 0, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			handled, res, body := dispatch(t, router, tc.method, tc.path)
			require.Equal(t, tc.handled, handled)
			if !handled {
				return
			}
			assert.Equal(t, tc.expectedStatus, res.StatusCode)
			assert.Equal(t, tc.expectedBody, body)
		})
	}
}

func TestRouterAllowHeader(t *testing.T) {
	router := NewRouter()
	router.Post("/items", text("created"))
	router.Delete("/items", text("deleted"))

	handled, res, _ := dispatch(t, router, "GET", "/items")
	require.True(t, handled)
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
	assert.Equal(t, "DELETE, POST", res.Header.Get("Allow"))
}

func TestRouterMiddleware(t *testing.T) {
	router := NewRouter()
	var order []string
	mark := func(name string) Middleware {
		return func(next handler.RequestHandler) handler.RequestHandler {
			return handler.HandlerFunc(func(c *conn.Connection) bool {
				order = append(order, name)
				return next.Handle(c)
			})
		}
	}
	router.Use(mark("outer"), mark("inner"))
	router.Get("/", text("root"))

	handled, res, body := dispatch(t, router, "GET", "/")
	require.True(t, handled)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "root", body)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRouterInChain(t *testing.T) {
	router := NewRouter()
	router.Get("/api/status", text("up"))
	chain := handler.NewChain(router, handler.NewNotFound())

	handled, res, body := dispatch(t, chain, "GET", "/api/status")
	require.True(t, handled)
	assert.Equal(t, "up", body)

	handled, res, _ = dispatch(t, chain, "GET", "/elsewhere")
	require.True(t, handled)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
