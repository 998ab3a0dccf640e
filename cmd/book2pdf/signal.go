package main

import (
	"context"
	"os/signal"
)

// notifyContext cancels the returned context on the first stop signal.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, stopSignals...)
}
