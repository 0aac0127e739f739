package editor

import (
	"sync"
	"time"
)

// DefaultRunDuration is how long a simulated run lasts
const DefaultRunDuration = 3 * time.Second

// RunEventType names a simulated-run transition
type RunEventType string

const (
	RunStarted   RunEventType = "run_started"
	RunStopped   RunEventType = "run_stopped"
	RunCompleted RunEventType = "run_completed"
)

// RunEvent is emitted on every run transition
type RunEvent struct {
	Type RunEventType `json:"type"`
	// Run counts started runs; events of one run share it
	Run uint64    `json:"run"`
	At  time.Time `json:"at"`
}

// Runner simulates executing the graph: it flips to running, then back after
// a fixed delay. Toggling while running stops it. Stopping is best effort: a
// completion that already fired still runs, but it is a no-op for a run that
// was stopped or superseded.
type Runner struct {
	duration time.Duration
	emit     func(RunEvent)

	mu      sync.Mutex
	running bool
	run     uint64
	timer   *time.Timer
}

// NewRunner creates an idle runner. emit receives every transition and may be nil.
func NewRunner(duration time.Duration, emit func(RunEvent)) *Runner {
	if duration <= 0 {
		duration = DefaultRunDuration
	}
	return &Runner{duration: duration, emit: emit}
}

// Toggle starts a run when idle and stops it when running. It returns
// whether a run is in progress afterwards.
func (r *Runner) Toggle() bool {
	r.mu.Lock()
	var ev RunEvent
	if r.running {
		if r.timer != nil {
			r.timer.Stop()
			r.timer = nil
		}
		r.running = false
		ev = RunEvent{Type: RunStopped, Run: r.run, At: time.Now()}
	} else {
		r.run++
		r.running = true
		run := r.run
		r.timer = time.AfterFunc(r.duration, func() { r.complete(run) })
		ev = RunEvent{Type: RunStarted, Run: run, At: time.Now()}
	}
	running := r.running
	r.mu.Unlock()

	r.send(ev)
	return running
}

// Running reports whether a run is in progress
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Stop ends an active run without emitting an event
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.running = false
}

func (r *Runner) complete(run uint64) {
	r.mu.Lock()
	if !r.running || r.run != run {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.timer = nil
	r.mu.Unlock()

	r.send(RunEvent{Type: RunCompleted, Run: run, At: time.Now()})
}

func (r *Runner) send(ev RunEvent) {
	if r.emit != nil {
		r.emit(ev)
	}
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
