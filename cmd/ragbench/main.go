// cmd/ragbench/main.go
package main

import (
	cmd "github.com/mwiater/ragbench/internal/cli"
)

// main starts the ragbench CLI application by delegating to the
// cobra root command defined in the ragbench package. It does not
// take any arguments and does not return a value.
func main() {
	cmd.Execute()
}
