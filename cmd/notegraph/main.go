// Package main is the notegraph command.
package main

import "github.com/mesh-intelligence/notegraph/internal/cli"

func main() {
	cli.Execute()
}
