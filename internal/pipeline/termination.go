package pipeline

import (
	"sync"
	"sync/atomic"
)

// Termination is the one-way stop flag. Once set it stays set; it is read
// from the capture context and the pipeline without locking.
type Termination struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

// NewTermination creates an unset flag
func NewTermination() *Termination {
	return &Termination{done: make(chan struct{})}
}

// Set raises the flag and reports whether this call was the one that set it
func (t *Termination) Set() bool {
	first := false
	t.once.Do(func() {
		t.set.Store(true)
		close(t.done)
		first = true
	})
	return first
}

// IsSet reports whether the flag has been raised
func (t *Termination) IsSet() bool {
	return t.set.Load()
}

// Done is closed when the flag is raised
func (t *Termination) Done() <-chan struct{} {
	return t.done
}
