package sdr

import "sync"

// Pause is a guard that keeps the block paused and its control mutex
// locked until Resume is called:
//
//	defer b.Pause().Resume()
type Pause struct {
	w    *Worker
	once sync.Once
}

// Pause acquires control mutex and pauses the worker. Streams of the
// block can be safely replaced until Resume is called.
func (w *Worker) Pause() *Pause {
	w.ctrl.Lock()
	w.TempStop()
	return &Pause{w: w}
}

// Resume restarts the worker if it was running before the pause and
// releases control mutex. Repeated calls have no effect.
func (p *Pause) Resume() {
	p.once.Do(func() {
		p.w.TempStart()
		p.w.ctrl.Unlock()
	})
}

// Reconfigure calls fn while the block is paused. The block is resumed on
// every exit path, including panics.
func (w *Worker) Reconfigure(fn func() error) error {
	defer w.Pause().Resume()
	return fn()
}

// Locked calls fn with control mutex held, but without pausing the
// worker. It's used to change parameters that the worker reads
// atomically.
func (w *Worker) Locked(fn func()) {
	w.ctrl.Lock()
	defer w.ctrl.Unlock()
	fn()
}
