package fetchlib

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DEF_HISTORY_LIMIT is the number of sealed transfer records kept per session.
const DEF_HISTORY_LIMIT = 1000

// TransferRecord describes one logical file transfer. Records returned by
// the tracker are copies; a sealed record never changes.
type TransferRecord struct {
	ID               string
	Path             string
	OwnerKey         string
	StartTime        time.Time
	EndTime          time.Time
	BytesTransferred int64
	TotalSize        int64
	Err              string
}

// IsComplete reports whether the record has been sealed.
func (r TransferRecord) IsComplete() bool {
	return !r.EndTime.IsZero()
}

// IsSuccessful reports whether the transfer finished without error.
func (r TransferRecord) IsSuccessful() bool {
	return r.IsComplete() && r.Err == ""
}

// Duration returns the elapsed time of a sealed record, or the time since
// start relative to now for an active one.
func (r TransferRecord) Duration(now time.Time) time.Duration {
	if r.IsComplete() {
		return r.EndTime.Sub(r.StartTime)
	}
	return now.Sub(r.StartTime)
}

// AverageSpeed returns bytes per second over Duration.
func (r TransferRecord) AverageSpeed(now time.Time) float64 {
	d := r.Duration(now).Seconds()
	if d <= 0 {
		return 0
	}
	return float64(r.BytesTransferred) / d
}

// SessionSummary is a read-only snapshot of the session counters.
type SessionSummary struct {
	Duration         time.Duration
	JobsProcessed    int
	FilesAttempted   int
	FilesSucceeded   int
	FilesFailed      int
	BytesTransferred int64
	BytesSkipped     int64
	// AverageSpeed is bytes per second over the whole session.
	AverageSpeed float64

	ConnectionAttempts int
	ConnectionFailures int
	PoolHits           int
	PoolMisses         int
}

// SuccessRate returns the percentage of attempted files that succeeded.
func (s SessionSummary) SuccessRate() float64 {
	if s.FilesAttempted == 0 {
		return 0
	}
	return float64(s.FilesSucceeded) / float64(s.FilesAttempted) * 100
}

// ConnectionSuccessRate returns the percentage of connection attempts that succeeded.
func (s SessionSummary) ConnectionSuccessRate() float64 {
	if s.ConnectionAttempts == 0 {
		return 0
	}
	return float64(s.ConnectionAttempts-s.ConnectionFailures) / float64(s.ConnectionAttempts) * 100
}

// PoolHitRate returns the percentage of acquisitions served by an idle connection.
func (s SessionSummary) PoolHitRate() float64 {
	total := s.PoolHits + s.PoolMisses
	if total == 0 {
		return 0
	}
	return float64(s.PoolHits) / float64(total) * 100
}

// StatsTracker collects thread-safe counters for a session, its transfers
// and the connection pool.
type StatsTracker struct {
	mu  sync.Mutex
	now func() time.Time

	start time.Time
	end   time.Time

	jobs           int
	filesAttempted int
	filesSucceeded int
	filesFailed    int
	bytesDone      int64
	bytesSkipped   int64

	connAttempts int
	connFailures int
	poolHits     int
	poolMisses   int

	active       map[string]*TransferRecord
	history      []TransferRecord
	historyLimit int
}

// NewStatsTracker creates a tracker whose session starts now.
func NewStatsTracker() *StatsTracker {
	s := &StatsTracker{
		now:          time.Now,
		historyLimit: DEF_HISTORY_LIMIT,
	}
	s.reset()
	return s
}

func (s *StatsTracker) reset() {
	s.start = s.now()
	s.end = time.Time{}
	s.jobs, s.filesAttempted, s.filesSucceeded, s.filesFailed = 0, 0, 0, 0
	s.bytesDone, s.bytesSkipped = 0, 0
	s.connAttempts, s.connFailures, s.poolHits, s.poolMisses = 0, 0, 0, 0
	s.active = make(map[string]*TransferRecord)
	s.history = nil
}

// StartSession discards every counter and starts a new session.
func (s *StatsTracker) StartSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// EndSession freezes the session duration.
func (s *StatsTracker) EndSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.end = s.now()
}

// StartTransfer opens a record for path and returns its ID.
func (s *StatsTracker) StartTransfer(path, ownerKey string, totalSize int64) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[id] = &TransferRecord{
		ID:        id,
		Path:      path,
		OwnerKey:  ownerKey,
		StartTime: s.now(),
		TotalSize: totalSize,
	}
	s.filesAttempted++
	return id
}

// AddProgress adds n transferred bytes to an active record.
func (s *StatsTracker) AddProgress(id string, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.active[id]; ok {
		r.BytesTransferred += n
	}
}

// SetTotalSize updates the expected size of an active record once it is known.
func (s *StatsTracker) SetTotalSize(id string, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.active[id]; ok && total > 0 {
		r.TotalSize = total
	}
}

// CompleteTransfer seals the record. A nil err counts as success.
func (s *StatsTracker) CompleteTransfer(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.active[id]
	if !ok {
		return
	}
	delete(s.active, id)
	r.EndTime = s.now()
	if err != nil {
		r.Err = err.Error()
		s.filesFailed++
	} else {
		s.filesSucceeded++
		s.bytesDone += r.BytesTransferred
	}
	s.history = append(s.history, *r)
	if over := len(s.history) - s.historyLimit; s.historyLimit > 0 && over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// SkipTransfer records bytes that did not need transferring.
func (s *StatsTracker) SkipTransfer(size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size > 0 {
		s.bytesSkipped += size
	}
}

// RecordJobProcessed counts one processed job (torrent).
func (s *StatsTracker) RecordJobProcessed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs++
}

// RecordConnectionAttempt counts one dial+login attempt.
func (s *StatsTracker) RecordConnectionAttempt(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connAttempts++
	if !success {
		s.connFailures++
	}
}

// RecordPoolHit counts one acquisition served by an idle connection.
func (s *StatsTracker) RecordPoolHit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolHits++
}

// RecordPoolMiss counts one acquisition that needed a new connection.
func (s *StatsTracker) RecordPoolMiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolMisses++
}

// ActiveTransfers returns copies of the records still in flight.
func (s *StatsTracker) ActiveTransfers() []TransferRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TransferRecord, 0, len(s.active))
	for _, r := range s.active {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// History returns up to limit sealed records, newest first.
// A limit <= 0 returns the whole retained history.
func (s *StatsTracker) History(limit int) []TransferRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TransferRecord, len(s.history))
	copy(out, s.history)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Summary returns a snapshot of the session counters.
func (s *StatsTracker) Summary() SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := s.end
	if end.IsZero() {
		end = s.now()
	}
	sum := SessionSummary{
		Duration:           end.Sub(s.start),
		JobsProcessed:      s.jobs,
		FilesAttempted:     s.filesAttempted,
		FilesSucceeded:     s.filesSucceeded,
		FilesFailed:        s.filesFailed,
		BytesTransferred:   s.bytesDone,
		BytesSkipped:       s.bytesSkipped,
		ConnectionAttempts: s.connAttempts,
		ConnectionFailures: s.connFailures,
		PoolHits:           s.poolHits,
		PoolMisses:         s.poolMisses,
	}
	if secs := sum.Duration.Seconds(); secs > 0 {
		sum.AverageSpeed = float64(s.bytesDone) / secs
	}
	return sum
}
