// Package scheduler runs per-probe flush timers.
//
// Flush intervals can be arbitrarily long. Each wait is built from a chain of
// bounded clock timers, no longer than a maximum step, so a delay is never
// truncated and never fires early.
package scheduler

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// MaxStep is the longest single timer used when composing long delays.
const MaxStep = time.Duration(math.MaxInt32) * time.Millisecond

// Job is the cancelable handle of a periodic job.
type Job struct {
	key  string
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Key returns the key the job was scheduled under.
func (j *Job) Key() string {
	return j.key
}

// Stop cancels the job and waits for its goroutine to exit. It must not be
// called from the job function itself.
func (j *Job) Stop() {
	j.cancel()
	<-j.done
}

func (j *Job) cancel() {
	j.once.Do(func() { close(j.stop) })
}

// wait blocks until d has elapsed on clk or stop is closed. It reports
// whether the full delay elapsed.
func wait(clk clock.Clock, d, step time.Duration, stop <-chan struct{}) bool {
	if step <= 0 {
		step = MaxStep
	}
	remaining := d
	for remaining > 0 {
		chunk := remaining
		if chunk > step {
			chunk = step
		}

		timer := clk.Timer(chunk)
		select {
		case <-timer.C:
			remaining -= chunk
		case <-stop:
			timer.Stop()
			return false
		}
	}

	select {
	case <-stop:
		return false
	default:
		return true
	}
}
