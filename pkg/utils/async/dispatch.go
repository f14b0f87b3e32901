package async

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/utils/logging"
)

// Dispatch runs a handler in a new goroutine with a fresh background
// context that carries over the caller's logger. Errors and panics are
// logged, never propagated: asynchronous work must not crash the process.
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	bgCtx := logging.With(context.Background(), logging.From(ctx))

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.From(bgCtx).Error("panic in async handler", "panic", r)
			}
		}()

		if err := handler(bgCtx); err != nil {
			logging.From(bgCtx).Error("async handler failed", "error", goerr.Unwrap(err))
		}
	}()
}
