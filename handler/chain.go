package handler

import (
	"reflect"

	"github.com/shravanasati/hearth/conn"
)

// Chain offers a request to its members in insertion order and stops at the
// first one that handles it. A Chain is itself a RequestHandler, so chains
// nest. Members must not be changed while requests are being dispatched.
type Chain struct {
	handlers []RequestHandler
}

func NewChain(handlers ...RequestHandler) *Chain {
	return &Chain{handlers: handlers}
}

// Add appends handlers to the end of the chain.
func (ch *Chain) Add(handlers ...RequestHandler) {
	ch.handlers = append(ch.handlers, handlers...)
}

// Remove drops the first member equal to h. Handlers of non-comparable types
// such as HandlerFunc can only be removed with RemoveAt.
func (ch *Chain) Remove(h RequestHandler) bool {
	if h == nil || !reflect.TypeOf(h).Comparable() {
		return false
	}
	for i, member := range ch.handlers {
		if reflect.TypeOf(member).Comparable() && member == h {
			return ch.RemoveAt(i)
		}
	}
	return false
}

// RemoveAt drops the member at index i.
func (ch *Chain) RemoveAt(i int) bool {
	if i < 0 || i >= len(ch.handlers) {
		return false
	}
	ch.handlers = append(ch.handlers[:i:i], ch.handlers[i+1:]...)
	return true
}

func (ch *Chain) Len() int {
	return len(ch.handlers)
}

func (ch *Chain) Handle(c *conn.Connection) bool {
	for _, h := range ch.handlers {
		if h.Handle(c) {
			return true
		}
	}
	return false
}
