package utils

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"go.uber.org/zap"

	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
)

// RecoverFn is a function that handles a recovered panic
type RecoverFn func(r interface{}, stack []byte)

// SafeGo executes the given function in a goroutine with panic recovery.
// Without onPanic the panic is logged.
func SafeGo(fn func(), onPanic RecoverFn) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				if onPanic != nil {
					onPanic(r, stack)
					return
				}
				logPanic(logger.Log, "[panic] Recovered from panic in goroutine", r, stack)
			}
		}()
		fn()
	}()
}

// WrapWithContextRecovery turns a panic in fn into an error, logged with the
// context logger.
func WrapWithContextRecovery(fn func(ctx context.Context) error) func(ctx context.Context) (err error) {
	return func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(logger.FromContext(ctx), "[panic] Recovered from panic", r, debug.Stack())
				err = fmt.Errorf("panic recovered: %v", r)
			}
		}()
		return fn(ctx)
	}
}

func logPanic(log *zap.Logger, msg string, r interface{}, stack []byte) {
	if log == nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n%s\n", msg, r, stack)
		return
	}
	log.Error(msg, zap.Any("panic", r), zap.ByteString("stack", stack))
}
