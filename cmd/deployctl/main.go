package main

import (
	"fmt"
	"os"

	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
)

// Set at build time with -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error (%s): %v\n", deployerr.Kind(err), err)
		os.Exit(1)
	}
}
