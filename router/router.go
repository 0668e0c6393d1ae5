// Package router dispatches requests to handlers by method and path. A
// Router is itself a handler.RequestHandler, so it sits in a chain next to
// static files and declines requests it has no route for.
package router

import (
	"slices"
	"strings"

	"github.com/shravanasati/hearth/conn"
	"github.com/shravanasati/hearth/handler"
	"github.com/shravanasati/hearth/request"
	"github.com/shravanasati/hearth/response"
)

const anyMethod = "ANY"

type Middleware func(handler.RequestHandler) handler.RequestHandler

type Router struct {
	trees       map[string]*TrieNode
	middlewares []Middleware
	dispatch    handler.RequestHandler
}

func NewRouter() *Router {
	methodTreeMap := map[string]*TrieNode{
		"GET":     NewTrieNode(),
		"POST":    NewTrieNode(),
		"PUT":     NewTrieNode(),
		"PATCH":   NewTrieNode(),
		"DELETE":  NewTrieNode(),
		"OPTIONS": NewTrieNode(),
		"TRACE":   NewTrieNode(),
		"HEAD":    NewTrieNode(),
		anyMethod: NewTrieNode(),
	}
	r := &Router{trees: methodTreeMap}
	r.dispatch = handler.HandlerFunc(r.route)
	return r
}

// Get registers a new GET route.
func (r *Router) Get(path string, h handler.RequestHandler) {
	r.trees["GET"].AddRoute(path, h)
}

// Post registers a new POST route.
func (r *Router) Post(path string, h handler.RequestHandler) {
	r.trees["POST"].AddRoute(path, h)
}

func (r *Router) Put(path string, h handler.RequestHandler) {
	r.trees["PUT"].AddRoute(path, h)
}

func (r *Router) Patch(path string, h handler.RequestHandler) {
	r.trees["PATCH"].AddRoute(path, h)
}

func (r *Router) Delete(path string, h handler.RequestHandler) {
	r.trees["DELETE"].AddRoute(path, h)
}

func (r *Router) Options(path string, h handler.RequestHandler) {
	r.trees["OPTIONS"].AddRoute(path, h)
}

func (r *Router) Head(path string, h handler.RequestHandler) {
	r.trees["HEAD"].AddRoute(path, h)
}

// Any registers a route matching every method without a more specific route.
func (r *Router) Any(path string, h handler.RequestHandler) {
	r.trees[anyMethod].AddRoute(path, h)
}

// Use wraps routing in middleware. The first middleware added is outermost.
func (r *Router) Use(m ...Middleware) {
	r.middlewares = append(r.middlewares, m...)
	var h handler.RequestHandler = handler.HandlerFunc(r.route)
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}
	r.dispatch = h
}

// Handle routes c. The priority order is:
//  1. exact method and path match
//  2. for HEAD requests, the GET route (the connection drops the body)
//  3. a route registered with Any
//  4. 405 Method Not Allowed if the path exists for other methods
//
// Otherwise it returns false and the request is left to the next handler.
func (r *Router) Handle(c *conn.Connection) bool {
	return r.dispatch.Handle(c)
}

func (r *Router) route(c *conn.Connection) bool {
	method, path := c.Method(), c.Path()

	if h, params := r.match(method, path); h != nil {
		return r.call(c, h, params)
	}
	if method == string(request.HEAD) {
		if h, params := r.match("GET", path); h != nil {
			return r.call(c, h, params)
		}
	}
	if h, params := r.match(anyMethod, path); h != nil {
		return r.call(c, h, params)
	}

	if allowed := r.allowed(path); len(allowed) > 0 {
		c.SetHeader("Allow", strings.Join(allowed, ", "))
		c.WriteResponse(response.StatusMethodNotAllowed, []byte(response.GetStatusReason(response.StatusMethodNotAllowed)))
		return true
	}
	return false
}

func (r *Router) match(method, path string) (handler.RequestHandler, map[string]string) {
	tree, ok := r.trees[method]
	if !ok {
		return nil, nil
	}
	return tree.Match(path)
}

func (r *Router) call(c *conn.Connection, h handler.RequestHandler, params map[string]string) bool {
	if req := c.Request(); req != nil {
		req.Params = params
	}
	return h.Handle(c)
}

// allowed lists the methods with a route for path, sorted.
func (r *Router) allowed(path string) []string {
	var methods []string
	for method, tree := range r.trees {
		if method == anyMethod {
			continue
		}
		if h, _ := tree.Match(path); h != nil {
			methods = append(methods, method)
		}
	}
	slices.Sort(methods)
	return methods
}
