package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Background runs fire-and-forget tasks with panic recovery and lets the
// server drain them on shutdown.
type Background struct {
	log  logrus.FieldLogger
	wg   sync.WaitGroup
	done chan struct{}
}

func New(log logrus.FieldLogger) *Background {
	return &Background{
		log:  log,
		done: make(chan struct{}),
	}
}

func (b *Background) Run(fn func() error) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.log.WithField("message", fmt.Sprintf("%v", r)).Error("PANIC IN BACKGROUND TASK")
			}
		}()

		if err := fn(); err != nil {
			b.log.WithField("message", err).Error("ERROR IN BACKGROUND TASK")
		}
	}()
}

// Every runs fn at the given interval until shutdown. The first run happens
// after one interval, not immediately.
func (b *Background) Every(interval time.Duration, fn func() error) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		tick := time.NewTicker(interval)
		defer tick.Stop()

		for {
			select {
			case <-b.done:
				return
			case <-tick.C:
				b.Run(fn)
			}
		}
	}()
}

func (b *Background) Shutdown(ctx context.Context) error {
	close(b.done)

	stopped := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
