package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrLoopStopped is returned for work submitted to a stopped loop.
var ErrLoopStopped = errors.New("event loop stopped")

// eventLoop runs tasks one at a time in submission order on its own
// goroutine. Posting never blocks.
type eventLoop struct {
	mu      sync.Mutex
	tasks   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
	logger  *zap.Logger
}

func newEventLoop(logger *zap.Logger) *eventLoop {
	l := &eventLoop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.run()
	return l
}

// post queues fn. It reports false when the loop is stopped.
func (l *eventLoop) post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	l.signal()
	return true
}

// call runs fn on the loop and waits for its result.
func (l *eventLoop) call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	ok := l.post(func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in event loop: %v", r)
			}
			result <- err
		}()
		err = fn()
	})
	if !ok {
		return ErrLoopStopped
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop rejects new tasks. Queued tasks still run before the loop exits.
func (l *eventLoop) stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.signal()
}

func (l *eventLoop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *eventLoop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		tasks := l.tasks
		l.tasks = nil
		stopped := l.stopped
		l.mu.Unlock()

		for _, task := range tasks {
			l.exec(task)
		}
		if len(tasks) > 0 {
			continue
		}
		if stopped {
			return
		}
		<-l.wake
	}
}

func (l *eventLoop) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic recovered in event loop", zap.Any("panic", r))
		}
	}()
	task()
}
