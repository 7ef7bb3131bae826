package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		// Interruption already prints the partial outcome; reprinting the
		// context error adds nothing.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "foundry:", err)
		}
		os.Exit(1)
	}
}
