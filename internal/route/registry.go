// Package route holds the navigation forest of the portal: every
// addressable path pattern, the authority scope it belongs to, and its
// parent for "back" navigation. The forest is built once and validated at
// construction, so cycles and dangling parent references fail fast instead
// of surfacing as broken navigation at runtime.
package route

import (
	"fmt"
	"strings"

	"rights-console-portal/agent/internal/scope"
)

// Node is a single registered route. Pattern segments starting with ':' are
// dynamic and match any one concrete segment.
type Node struct {
	Pattern            string
	Scope              scope.Scope
	ParentPath         string
	Label              string
	RequiredRole       string
	RequiredPermission string
}

// Dynamic reports whether the node's pattern has any dynamic segment.
func (n Node) Dynamic() bool {
	return strings.Contains(n.Pattern, "/:")
}

// Registry is an immutable forest of route nodes, matched in registration
// order.
type Registry struct {
	nodes []Node
	// byPattern indexes nodes for parent lookups.
	byPattern map[string]int
}

// New validates the given nodes and builds a Registry. It returns an error
// when a pattern is malformed, a parent reference does not resolve to a
// registered pattern, a parent chain contains a cycle, or a parent pattern
// names a dynamic segment the child pattern does not carry.
func New(nodes []Node) (*Registry, error) {
	r := &Registry{
		nodes:     make([]Node, len(nodes)),
		byPattern: make(map[string]int, len(nodes)),
	}
	copy(r.nodes, nodes)

	for i, n := range r.nodes {
		segs, err := splitPattern(n.Pattern)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", n.Pattern, err)
		}
		if !n.Scope.Valid() {
			return nil, fmt.Errorf("route %q: unknown scope %q", n.Pattern, n.Scope)
		}
		names := map[string]bool{}
		for _, s := range segs {
			if !strings.HasPrefix(s, ":") {
				continue
			}
			if len(s) == 1 {
				return nil, fmt.Errorf("route %q: dynamic segment without a name", n.Pattern)
			}
			if names[s] {
				return nil, fmt.Errorf("route %q: duplicate dynamic segment %q", n.Pattern, s)
			}
			names[s] = true
		}
		if _, dup := r.byPattern[n.Pattern]; dup {
			return nil, fmt.Errorf("route %q registered twice", n.Pattern)
		}
		r.byPattern[n.Pattern] = i
	}

	for _, n := range r.nodes {
		if n.ParentPath == "" {
			continue
		}
		pi, ok := r.byPattern[n.ParentPath]
		if !ok {
			return nil, fmt.Errorf("route %q: parent %q is not registered", n.Pattern, n.ParentPath)
		}
		childNames := dynamicNames(n.Pattern)
		for name := range dynamicNames(r.nodes[pi].Pattern) {
			if !childNames[name] {
				return nil, fmt.Errorf("route %q: parent %q needs segment %q the child does not carry", n.Pattern, n.ParentPath, name)
			}
		}
	}

	// Parent chains must terminate.
	for _, n := range r.nodes {
		seen := map[string]bool{n.Pattern: true}
		cur := n
		for cur.ParentPath != "" {
			if seen[cur.ParentPath] {
				return nil, fmt.Errorf("route %q: parent chain contains a cycle through %q", n.Pattern, cur.ParentPath)
			}
			seen[cur.ParentPath] = true
			cur = r.nodes[r.byPattern[cur.ParentPath]]
		}
	}

	return r, nil
}

// Match resolves a concrete path to its registered node. Exact matches win
// over pattern matches; within each class the first registered node wins.
func (r *Registry) Match(path string) (Node, bool) {
	segs, err := splitPattern(path)
	if err != nil {
		return Node{}, false
	}
	for _, n := range r.nodes {
		if n.Pattern == path {
			return n, true
		}
	}
	for _, n := range r.nodes {
		if matchSegments(n.Pattern, segs) {
			return n, true
		}
	}
	return Node{}, false
}

// Node returns the node registered under the exact pattern.
func (r *Registry) Node(pattern string) (Node, bool) {
	i, ok := r.byPattern[pattern]
	if !ok {
		return Node{}, false
	}
	return r.nodes[i], true
}

// Patterns returns the registered patterns in registration order.
func (r *Registry) Patterns() []string {
	out := make([]string, len(r.nodes))
	for i, n := range r.nodes {
		out[i] = n.Pattern
	}
	return out
}

// ResolveParentPath substitutes the dynamic segments of parentPattern with
// the concrete values the path binds under childPattern. Substitution is by
// segment name, so a parent pattern with fewer segments than the child still
// resolves correctly. Returns false when the path does not fit the child
// pattern or a parent segment has no binding.
func ResolveParentPath(path, childPattern, parentPattern string) (string, bool) {
	childSegs, err := splitPattern(childPattern)
	if err != nil {
		return "", false
	}
	pathSegs, err := splitPattern(path)
	if err != nil || len(pathSegs) != len(childSegs) {
		return "", false
	}
	bindings := map[string]string{}
	for i, s := range childSegs {
		if strings.HasPrefix(s, ":") {
			bindings[s] = pathSegs[i]
		} else if s != pathSegs[i] {
			return "", false
		}
	}
	parentSegs, err := splitPattern(parentPattern)
	if err != nil {
		return "", false
	}
	out := make([]string, len(parentSegs))
	for i, s := range parentSegs {
		if strings.HasPrefix(s, ":") {
			v, ok := bindings[s]
			if !ok {
				return "", false
			}
			out[i] = v
		} else {
			out[i] = s
		}
	}
	return "/" + strings.Join(out, "/"), true
}

// BackTarget computes the concrete "back" destination for a path. A matched
// node with a parent resolves through ResolveParentPath; otherwise the
// longest registered pattern matching a strict prefix of the path is used.
// In both cases the destination must be a permitted scope transition from
// the current node's scope, or there is no back target at all.
func (r *Registry) BackTarget(path string) (string, bool) {
	node, ok := r.Match(path)
	if ok && node.ParentPath != "" {
		parent, found := r.Node(node.ParentPath)
		if found {
			target, resolved := ResolveParentPath(path, node.Pattern, node.ParentPath)
			if resolved && IsValidScopeTransition(node.Scope, parent.Scope) {
				return target, true
			}
		}
		return "", false
	}

	// Unregistered path, or a root node: walk prefixes from longest to
	// shortest looking for any registered match.
	segs, err := splitPattern(path)
	if err != nil {
		return "", false
	}
	fromScope := node.Scope
	if !ok {
		fromScope = scope.Public
	}
	for n := len(segs) - 1; n > 0; n-- {
		prefix := "/" + strings.Join(segs[:n], "/")
		candidate, found := r.Match(prefix)
		if !found {
			continue
		}
		if !ok || IsValidScopeTransition(fromScope, candidate.Scope) {
			return prefix, true
		}
		return "", false
	}
	return "", false
}

func splitPattern(p string) ([]string, error) {
	if !strings.HasPrefix(p, "/") {
		return nil, fmt.Errorf("path must start with '/'")
	}
	trimmed := strings.TrimSuffix(p[1:], "/")
	if trimmed == "" {
		return []string{}, nil
	}
	segs := strings.Split(trimmed, "/")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("path contains an empty segment")
		}
	}
	return segs, nil
}

func matchSegments(pattern string, pathSegs []string) bool {
	patSegs, err := splitPattern(pattern)
	if err != nil || len(patSegs) != len(pathSegs) {
		return false
	}
	for i, s := range patSegs {
		if strings.HasPrefix(s, ":") {
			continue
		}
		if s != pathSegs[i] {
			return false
		}
	}
	return true
}

func dynamicNames(pattern string) map[string]bool {
	out := map[string]bool{}
	segs, err := splitPattern(pattern)
	if err != nil {
		return out
	}
	for _, s := range segs {
		if strings.HasPrefix(s, ":") {
			out[s] = true
		}
	}
	return out
}
