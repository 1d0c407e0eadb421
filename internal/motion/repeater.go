package motion

import (
	"sync"
	"time"

	"github.com/ayusman/paperbeat/internal/timeutil"
)

// Repeater runs a function on a fixed period until stopped.
type Repeater struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartRepeater calls fn with the tick time every period on its own
// goroutine, using clock's ticker.
func StartRepeater(clock timeutil.Clock, period time.Duration, fn func(time.Time)) *Repeater {
	r := &Repeater{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	ticker := clock.NewTicker(period)

	go func() {
		defer close(r.done)
		defer ticker.Stop()

		for {
			select {
			case <-r.stop:
				return
			case now := <-ticker.C():
				select {
				case <-r.stop:
					return
				default:
				}
				fn(now)
			}
		}
	}()

	return r
}

// Stop cancels the repeater and waits for its goroutine to exit. It is safe
// to call more than once. It must not be called from fn.
func (r *Repeater) Stop() {
	r.once.Do(func() { close(r.stop) })
	<-r.done
}

// Done is closed once the repeater has stopped.
func (r *Repeater) Done() <-chan struct{} {
	return r.done
}
