package fetchlib

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock returns a now func advancing by step on every call.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := cur
		cur = cur.Add(step)
		return t
	}
}

func TestStatsTracker_TransferLifecycle(t *testing.T) {
	s := NewStatsTracker()
	s.now = fakeClock(time.Unix(1000, 0), time.Second)
	s.StartSession()

	okID := s.StartTransfer("a/file.bin", "HASH1", 100)
	s.AddProgress(okID, 60)
	s.AddProgress(okID, 40)
	s.CompleteTransfer(okID, nil)

	badID := s.StartTransfer("a/other.bin", "HASH1", 50)
	s.AddProgress(badID, 10)
	s.CompleteTransfer(badID, errors.New("short read"))

	s.SkipTransfer(5000)
	s.RecordJobProcessed()

	sum := s.Summary()
	if sum.FilesAttempted != 2 || sum.FilesSucceeded != 1 || sum.FilesFailed != 1 {
		t.Errorf("files = %d/%d/%d, want 2/1/1", sum.FilesAttempted, sum.FilesSucceeded, sum.FilesFailed)
	}
	if sum.BytesTransferred != 100 {
		t.Errorf("BytesTransferred = %d, want 100 (failed transfers excluded)", sum.BytesTransferred)
	}
	if sum.BytesSkipped != 5000 {
		t.Errorf("BytesSkipped = %d, want 5000", sum.BytesSkipped)
	}
	if sum.JobsProcessed != 1 {
		t.Errorf("JobsProcessed = %d, want 1", sum.JobsProcessed)
	}
	if sum.SuccessRate() != 50 {
		t.Errorf("SuccessRate() = %v, want 50", sum.SuccessRate())
	}

	hist := s.History(0)
	if len(hist) != 2 {
		t.Fatalf("len(History) = %d, want 2", len(hist))
	}
	if hist[0].ID != badID {
		t.Errorf("History not newest first: got %s first", hist[0].Path)
	}
	if hist[0].IsSuccessful() || !hist[1].IsSuccessful() {
		t.Errorf("IsSuccessful flags wrong: %+v", hist)
	}
	if len(s.ActiveTransfers()) != 0 {
		t.Errorf("ActiveTransfers not empty after completion")
	}

	// sealed records are not affected by later progress on the same id
	s.AddProgress(okID, 999)
	if got := s.History(0)[1].BytesTransferred; got != 100 {
		t.Errorf("sealed record changed: BytesTransferred = %d", got)
	}
}

func TestStatsTracker_ConnectionCounters(t *testing.T) {
	s := NewStatsTracker()
	s.RecordConnectionAttempt(true)
	s.RecordConnectionAttempt(true)
	s.RecordConnectionAttempt(false)
	s.RecordConnectionAttempt(true)
	s.RecordPoolMiss()
	s.RecordPoolHit()
	s.RecordPoolHit()
	s.RecordPoolHit()

	sum := s.Summary()
	if sum.ConnectionAttempts != 4 || sum.ConnectionFailures != 1 {
		t.Errorf("connections = %d/%d, want 4/1", sum.ConnectionAttempts, sum.ConnectionFailures)
	}
	if sum.ConnectionSuccessRate() != 75 {
		t.Errorf("ConnectionSuccessRate() = %v, want 75", sum.ConnectionSuccessRate())
	}
	if sum.PoolHitRate() != 75 {
		t.Errorf("PoolHitRate() = %v, want 75", sum.PoolHitRate())
	}
}

func TestStatsTracker_HistoryIsBounded(t *testing.T) {
	s := NewStatsTracker()
	s.now = fakeClock(time.Unix(0, 0), time.Millisecond)
	s.historyLimit = 3
	var last string
	for i := 0; i < 5; i++ {
		id := s.StartTransfer("f", "k", 1)
		s.CompleteTransfer(id, nil)
		last = id
	}
	hist := s.History(0)
	if len(hist) != 3 {
		t.Fatalf("len(History) = %d, want 3", len(hist))
	}
	if hist[0].ID != last {
		t.Errorf("newest record dropped from history")
	}
	if got := s.History(2); len(got) != 2 {
		t.Errorf("History(2) returned %d records", len(got))
	}
}

func TestStatsTracker_ConcurrentUpdates(t *testing.T) {
	s := NewStatsTracker()
	id := s.StartTransfer("big.bin", "k", 0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.AddProgress(id, 1)
				s.RecordPoolHit()
			}
		}()
	}
	wg.Wait()
	s.CompleteTransfer(id, nil)
	sum := s.Summary()
	if sum.BytesTransferred != 1600 {
		t.Errorf("BytesTransferred = %d, want 1600", sum.BytesTransferred)
	}
	if sum.PoolHits != 1600 {
		t.Errorf("PoolHits = %d, want 1600", sum.PoolHits)
	}
}

func TestStatsTracker_EndSessionFreezesDuration(t *testing.T) {
	s := NewStatsTracker()
	s.now = fakeClock(time.Unix(0, 0), time.Second)
	s.StartSession()
	s.EndSession()
	d1 := s.Summary().Duration
	d2 := s.Summary().Duration
	if d1 != d2 || d1 != time.Second {
		t.Errorf("durations %v/%v, want both 1s", d1, d2)
	}
}
