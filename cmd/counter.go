package cmd

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
)

// SpeedCounter batches the progress reported by concurrent segment workers
// and feeds it to a bar once per refresh cycle, so the EWMA speed decorator
// sees one sample per tick instead of one per block.
type SpeedCounter struct {
	ticker *time.Ticker
	// bytes per cycle
	bpc atomic.Int64
	// refresh rate
	refreshRate time.Duration
	bar         atomic.Pointer[mpb.Bar]

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func NewSpeedCounter(refreshRate time.Duration) *SpeedCounter {
	return &SpeedCounter{
		ticker:      time.NewTicker(refreshRate),
		refreshRate: refreshRate,
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

func (s *SpeedCounter) SetBar(bar *mpb.Bar) {
	s.bar.Store(bar)
}

func (s *SpeedCounter) Start() {
	go s.worker()
}

func (s *SpeedCounter) IncrBy(n int) {
	s.bpc.Add(int64(n))
}

// Stop ends the worker and flushes what is left of the current cycle.
// It must only be called after Start.
func (s *SpeedCounter) Stop() {
	s.stopOnce.Do(func() {
		s.ticker.Stop()
		close(s.done)
		<-s.stopped
		s.flush()
	})
}

func (s *SpeedCounter) worker() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			s.flush()
		}
	}
}

func (s *SpeedCounter) flush() {
	bar := s.bar.Load()
	if bar == nil {
		return
	}
	if n := s.bpc.Swap(0); n > 0 {
		bar.EwmaIncrInt64(n, s.refreshRate)
	}
}
