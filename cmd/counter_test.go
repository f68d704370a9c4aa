package cmd

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/vbauerster/mpb/v8"
)

// TestSpeedCounter_SetBar_Concurrent tests for race conditions when SetBar and IncrBy
// are called concurrently. Run with: go test -race -run TestSpeedCounter_SetBar_Concurrent
func TestSpeedCounter_SetBar_Concurrent(t *testing.T) {
	sc := NewSpeedCounter(time.Millisecond)
	p := mpb.New(mpb.WithOutput(io.Discard))
	bar1 := p.AddBar(1000)
	bar2 := p.AddBar(1000)

	sc.Start()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				sc.SetBar(bar1)
			} else {
				sc.SetBar(bar2)
			}
		}(i)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sc.IncrBy(100)
		}()
	}

	wg.Wait()
	sc.Stop()
	if got := bar1.Current() + bar2.Current(); got != 1000 {
		t.Errorf("bars received %d bytes, want 1000", got)
	}
	bar1.Abort(true)
	bar2.Abort(true)
	p.Wait()
}

// TestSpeedCounter_NilBar ensures no panic occurs when bar is nil
func TestSpeedCounter_NilBar(t *testing.T) {
	sc := NewSpeedCounter(time.Millisecond)

	sc.Start()
	sc.IncrBy(100)
	time.Sleep(time.Millisecond * 5)
	sc.Stop()
}

func TestSpeedCounter_StopFlushes(t *testing.T) {
	sc := NewSpeedCounter(time.Hour)
	p := mpb.New(mpb.WithOutput(io.Discard))
	bar := p.AddBar(300)
	sc.SetBar(bar)
	sc.Start()
	sc.IncrBy(100)
	sc.IncrBy(200)
	sc.Stop()
	sc.Stop()
	p.Wait()
	if !bar.Completed() {
		t.Errorf("bar at %d after Stop, want complete", bar.Current())
	}
}
