package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// forceExit is replaced in tests.
var forceExit = os.Exit

var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// shutdownContext returns a context canceled by the first SIGINT or SIGTERM.
// Cancellation stops the watcher and lets in-flight uploads finish. A second
// signal exits the process with status 1.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)

	go func() {
		defer signal.Stop(sigCh)

		sig, ok := nextSignal(ctx, sigCh)
		if !ok {
			return
		}

		logger.Info("received signal, finishing in-flight uploads", slog.String("signal", sig.String()))
		cancel()

		if sig, ok = nextSignal(parent, sigCh); !ok {
			return
		}

		logger.Warn("received second signal, abandoning in-flight uploads", slog.String("signal", sig.String()))
		forceExit(1)
	}()

	return ctx
}

// nextSignal waits for a signal on ch; ok is false when done fires first.
func nextSignal(done context.Context, ch <-chan os.Signal) (sig os.Signal, ok bool) {
	select {
	case sig = <-ch:
		return sig, true
	case <-done.Done():
		return nil, false
	}
}
