// Command blended drives the blended Rust/Solidity math contracts: it checks
// the network, runs calculations, deploys the contract pair and serves the
// browser API.
package main

import (
	"os"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
