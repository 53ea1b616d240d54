package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// An interrupt already logged its own shutdown line.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "harvester:", err)
		}
		os.Exit(1)
	}
}
