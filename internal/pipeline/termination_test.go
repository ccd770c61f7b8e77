package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTerminationSetOnce(t *testing.T) {
	term := NewTermination()
	if term.IsSet() {
		t.Fatal("New flag should be unset")
	}

	var firsts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if term.Set() {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()

	if firsts.Load() != 1 {
		t.Errorf("Expected exactly one setter, got %d", firsts.Load())
	}
	if !term.IsSet() {
		t.Error("Flag should stay set")
	}

	select {
	case <-term.Done():
	default:
		t.Error("Done should be closed once set")
	}
}

func TestDetachedGroupWait(t *testing.T) {
	g := newDetachedGroup(testLogger())
	release := make(chan struct{})

	g.Go("blocked", func() error {
		<-release
		return nil
	})
	g.Go("failing", func() error {
		return errors.New("boom")
	})
	g.Go("panicking", func() error {
		panic("unexpected")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Wait(ctx); err == nil {
		t.Error("Expected Wait to time out while a task is blocked")
	}
	if g.Active() != 1 {
		t.Errorf("Expected 1 active task, got %d", g.Active())
	}

	close(release)
	if err := g.Wait(context.Background()); err != nil {
		t.Errorf("Wait failed: %v", err)
	}
	if g.Active() != 0 {
		t.Errorf("Expected 0 active tasks, got %d", g.Active())
	}
}
