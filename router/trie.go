// used by the router to match on paths

package router

import (
	"strings"

	"github.com/shravanasati/hearth/handler"
)

type TrieNode struct {
	// static children
	children map[string]*TrieNode

	// parameter segment, eg. :id
	paramChild *TrieNode
	paramName  string

	// wildcard segment, eg. *file
	wildcardChild *TrieNode
	wildcardName  string

	handler handler.RequestHandler
}

func NewTrieNode() *TrieNode {
	return &TrieNode{children: make(map[string]*TrieNode)}
}

// AddRoute registers h for path. Registering the same path twice replaces
// the earlier handler.
func (n *TrieNode) AddRoute(path string, h handler.RequestHandler) {
	currentNode := n

	for segment := range strings.SplitSeq(strings.Trim(path, "/"), "/") {
		if segment == "" {
			continue
		}

		switch {
		case strings.HasPrefix(segment, ":"):
			if currentNode.paramChild == nil {
				currentNode.paramChild = NewTrieNode()
			}
			currentNode.paramName = strings.TrimPrefix(segment, ":")
			currentNode = currentNode.paramChild

		case strings.HasPrefix(segment, "*"):
			if currentNode.wildcardChild == nil {
				currentNode.wildcardChild = NewTrieNode()
			}
			currentNode.wildcardName = strings.TrimPrefix(segment, "*")
			currentNode = currentNode.wildcardChild

		default:
			child, ok := currentNode.children[segment]
			if !ok {
				child = NewTrieNode()
				currentNode.children[segment] = child
			}
			currentNode = child
		}
	}

	currentNode.handler = h
}

// Match finds the handler for path and extracts its parameters. Static
// segments win over parameters, which win over wildcards.
func (n *TrieNode) Match(path string) (handler.RequestHandler, map[string]string) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	currentNode := n
	params := make(map[string]string)

	for i, segment := range segments {
		if segment == "" {
			continue
		}

		if child, ok := currentNode.children[segment]; ok {
			currentNode = child
			continue
		}

		if currentNode.paramChild != nil {
			params[currentNode.paramName] = segment
			currentNode = currentNode.paramChild
			continue
		}

		if currentNode.wildcardChild != nil {
			// the wildcard takes the rest of the path
			params[currentNode.wildcardName] = strings.Join(segments[i:], "/")
			return currentNode.wildcardChild.handler, params
		}

		return nil, nil
	}

	if currentNode.handler == nil {
		return nil, nil
	}
	return currentNode.handler, params
}
