package service

import (
	"context"
	"sync"
	"time"
)

// ticker runs tick once at start and then on every interval until stopped.
type ticker struct {
	interval time.Duration
	tick     func(context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// start launches the loop.  Later calls are no-ops.
func (t *ticker) start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		return
	}

	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go t.loop(ctx, t.done)
}

// stop cancels the loop and waits for it to exit.  Safe to call more than
// once, and before start.
func (t *ticker) stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *ticker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	t.tick(ctx)

	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			t.tick(ctx)
		}
	}
}
