package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

type timeoutEngine struct {
	Engine
	timeout time.Duration
}

// WithTimeout bounds every Recognize call of e. A call that outlives the
// deadline returns ErrRecognitionTimeout; its goroutine is abandoned and its
// result discarded. d <= 0 returns e unchanged.
func WithTimeout(e Engine, d time.Duration) Engine {
	if d <= 0 {
		return e
	}
	return &timeoutEngine{Engine: e, timeout: d}
}

func (t *timeoutEngine) Recognize(ctx context.Context, img image.Image) (Recognition, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type outcome struct {
		rec Recognition
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		rec, err := t.Engine.Recognize(ctx, img)
		done <- outcome{rec: rec, err: err}
	}()

	select {
	case o := <-done:
		return o.rec, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Recognition{}, fmt.Errorf("%w: %s exceeded %s", ErrRecognitionTimeout, t.ID(), t.timeout)
		}
		return Recognition{}, ctx.Err()
	}
}
