// routelint validates a navigation route file without starting the agent:
// it builds the registry (rejecting cycles, dangling parents, and malformed
// patterns) and reports any scope transition a parent link implies that the
// lattice forbids. Intended for CI and pre-deploy checks.
package main

import (
	"flag"
	"fmt"
	"os"

	"rights-console-portal/agent/internal/route"
)

func main() {
	file := flag.String("file", "routes.yaml", "Path to the route file to validate")
	flag.Parse()

	reg, err := route.Load(*file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "routelint:", err)
		os.Exit(1)
	}

	bad := 0
	for _, pattern := range reg.Patterns() {
		node, _ := reg.Node(pattern)
		if node.ParentPath == "" {
			continue
		}
		parent, _ := reg.Node(node.ParentPath)
		if !route.IsValidScopeTransition(node.Scope, parent.Scope) {
			fmt.Fprintf(os.Stderr, "routelint: %s -> %s crosses %s to %s, which back navigation cannot do\n",
				pattern, node.ParentPath, node.Scope, parent.Scope)
			bad++
		}
	}
	if bad > 0 {
		os.Exit(1)
	}
	fmt.Printf("%s: %d routes ok\n", *file, len(reg.Patterns()))
}
