package llm

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout wraps c so every call is bounded by d. A non-positive d returns c unchanged.
// The bound holds even when c ignores ctx; a late answer is discarded. A panic
// inside c is returned as an error.
func WithTimeout(c Completer, d time.Duration) Completer {
	if d <= 0 {
		return c
	}
	return CompleterFunc(func(ctx context.Context, messages []Message, opts Options) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type answer struct {
			text string
			err  error
		}
		ch := make(chan answer, 1)
		go func() {
			var a answer
			defer func() {
				if p := recover(); p != nil {
					a = answer{err: fmt.Errorf("panic: %v", p)}
				}
				ch <- a
			}()
			a.text, a.err = c.Complete(ctx, messages, opts)
		}()

		select {
		case a := <-ch:
			return a.text, a.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
}
