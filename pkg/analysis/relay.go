package analysis

import "sync"

// StepRelay is a single-slot progress callback holder. The consumer
// rebinds the slot at will (last write wins) while a submission is in
// flight; the analyzer only ever calls through the slot and never holds
// a direct reference to consumer state. An empty slot drops the step.
type StepRelay struct {
	mu sync.Mutex
	fn func(step int)
}

// NewStepRelay returns an empty relay.
func NewStepRelay() *StepRelay {
	return &StepRelay{}
}

// Bind installs the callback, replacing any previous one.
func (r *StepRelay) Bind(fn func(step int)) {
	r.mu.Lock()
	r.fn = fn
	r.mu.Unlock()
}

// Unbind empties the slot.
func (r *StepRelay) Unbind() {
	r.Bind(nil)
}

// Notify forwards a step to the bound callback, if any. The callback
// runs outside the lock so it may rebind the relay.
func (r *StepRelay) Notify(step int) {
	r.mu.Lock()
	fn := r.fn
	r.mu.Unlock()
	if fn != nil {
		fn(step)
	}
}
