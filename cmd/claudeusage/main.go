package main

import (
	"fmt"
	"io"
	"log"
	"os"
)

func main() {
	// Internal logging stays quiet unless explicitly asked for.
	if os.Getenv("CLAUDEUSAGE_DEBUG") == "" {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(os.Stderr)
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
