package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/praetorian-inc/shardex/pkg/types"
)

// Process exit codes.
const (
	exitOK       = 0
	exitInput    = 2
	exitOutput   = 3
	exitInternal = 4
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error returned by a command to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return exitInternal
	case errors.Is(err, types.ErrInvalidConfig),
		errors.Is(err, types.ErrInputNotFound),
		errors.Is(err, types.ErrInputNotReadable):
		return exitInput
	case errors.Is(err, types.ErrOutputWrite):
		return exitOutput
	default:
		return exitInternal
	}
}
