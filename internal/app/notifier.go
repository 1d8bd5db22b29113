package app

import (
	"sync"

	"go.uber.org/zap"
)

// notifier delivers callbacks one at a time on its own goroutine.
// The queue is unbounded so publishers never block on slow observers.
type notifier struct {
	logger *zap.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newNotifier(logger *zap.Logger) *notifier {
	n := &notifier{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go n.loop()
	return n
}

// publish enqueues fn and reports false once the notifier is closed
func (n *notifier) publish(fn func()) bool {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return false
	}
	n.queue = append(n.queue, fn)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
	return true
}

// close stops accepting callbacks; queued ones are still delivered
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// drained is closed after the last queued callback returned
func (n *notifier) drained() <-chan struct{} {
	return n.done
}

func (n *notifier) loop() {
	defer close(n.done)
	for {
		n.mu.Lock()
		batch := n.queue
		n.queue = nil
		closed := n.closed
		n.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-n.wake
			continue
		}

		for _, fn := range batch {
			n.deliver(fn)
		}
	}
}

func (n *notifier) deliver(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			n.logger.Error("Observer panicked", zap.Any("panic", p), zap.Stack("stack"))
		}
	}()
	fn()
}
