// Command callproxy runs and drives the delegated-call proxy.
package main

import "github.com/ppiankov/callproxy/internal/cli"

func main() {
	cli.Execute()
}
