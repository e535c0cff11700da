// Command grader grades scanned exam answer sheets with a generative model.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
)

// Exit codes.
const (
	ExitSuccess = 0
	ExitFailure = 1 // the run failed (nothing extractable, malformed mapping, model errors)
	ExitConfig  = 2 // configuration or usage error
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(newApp()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, llmerrors.ErrConfiguration), errors.Is(err, llmerrors.ErrModelUnavailable):
		return ExitConfig
	default:
		return ExitFailure
	}
}
