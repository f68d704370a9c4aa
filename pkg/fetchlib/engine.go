package fetchlib

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/warpdl/rtfetch/pkg/logger"
)

// partFile is the destination of a segmented transfer. Concurrent WriteAt
// calls must target disjoint ranges.
type partFile interface {
	io.WriterAt
	io.Closer
}

// TransferMode tells how a file was (or would be) fetched.
type TransferMode int

const (
	ModeSingle TransferMode = iota
	ModeSegmented
)

func (m TransferMode) String() string {
	if m == ModeSegmented {
		return "segmented"
	}
	return "single"
}

// Result describes a finished Transfer or Fetch.
type Result struct {
	Dest    string
	Skipped bool
	Mode    TransferMode
	// Bytes is the number of bytes written in this run.
	Bytes int64
	// Size is the final size of the destination.
	Size int64
}

type (
	// StartHandlerFunc is called once the strategy is chosen.
	StartHandlerFunc func(id string, mode TransferMode, total int64)
	// ProgressHandlerFunc receives the size of every written chunk.
	ProgressHandlerFunc func(id string, n int)
	// SkipHandlerFunc is called when the destination is already complete.
	SkipHandlerFunc func(id string, size int64)
	// CompleteHandlerFunc is called after the final rename.
	CompleteHandlerFunc func(id string, total int64)
	// ErrorHandlerFunc is called with the error a transfer returns.
	ErrorHandlerFunc func(id string, err error)
)

// Handlers are the callbacks of one transfer. The id passed to every
// handler is the destination path.
type Handlers struct {
	StartHandler    StartHandlerFunc
	ProgressHandler ProgressHandlerFunc
	SkipHandler     SkipHandlerFunc
	CompleteHandler CompleteHandlerFunc
	ErrorHandler    ErrorHandlerFunc
}

func (h *Handlers) setDefault(l logger.Logger) {
	if h.StartHandler == nil {
		h.StartHandler = func(id string, mode TransferMode, total int64) {}
	}
	if h.ProgressHandler == nil {
		h.ProgressHandler = func(id string, n int) {}
	}
	if h.SkipHandler == nil {
		h.SkipHandler = func(id string, size int64) {}
	}
	if h.CompleteHandler == nil {
		h.CompleteHandler = func(id string, total int64) {}
	}
	if h.ErrorHandler == nil {
		h.ErrorHandler = func(id string, err error) {
			l.Error("%s: Error: %s", id, err.Error())
		}
	} else {
		errHandler := h.ErrorHandler
		h.ErrorHandler = func(id string, err error) {
			l.Error("%s: Error: %s", id, err.Error())
			errHandler(id, err)
		}
	}
}

// EngineOpts configures an Engine. Zero values select the defaults.
type EngineOpts struct {
	BlockSize      int64
	Segments       int
	MinSegmentSize int64
	// SegmentAttempts is how many times a segment is fetched before it
	// fails; later attempts continue from the last written offset.
	SegmentAttempts int
	// MaxBytesPerSecond caps the combined rate of all transfers of the
	// engine. Zero means unlimited.
	MaxBytesPerSecond int64
	Stats             *StatsTracker
	Logger            logger.Logger
}

// Engine downloads resolved remote files into local destinations, either as
// one stream or as parallel byte-range segments.
type Engine struct {
	pool     *Pool
	resolver *Resolver
	opts     EngineOpts
	log      logger.Logger
	stats    *StatsTracker
	limiter  *rate.Limiter
}

// NewEngine creates an engine drawing connections from pool. resolver is
// only needed by Fetch.
func NewEngine(pool *Pool, resolver *Resolver, opts EngineOpts) *Engine {
	if opts.BlockSize <= 0 {
		opts.BlockSize = DEF_BLOCK_SIZE
	}
	if opts.Segments <= 0 {
		opts.Segments = DEF_SEGMENTS
	}
	if opts.Segments > MAX_SEGMENTS {
		opts.Segments = MAX_SEGMENTS
	}
	if opts.MinSegmentSize <= 0 {
		opts.MinSegmentSize = DEF_MIN_SEGMENT_SIZE
	}
	if opts.SegmentAttempts <= 0 {
		opts.SegmentAttempts = 1
	}
	l := opts.Logger
	if l == nil {
		l = logger.NewNopLogger()
	}
	e := &Engine{
		pool:     pool,
		resolver: resolver,
		opts:     opts,
		log:      l,
		stats:    opts.Stats,
	}
	if opts.MaxBytesPerSecond > 0 {
		burst := max(opts.BlockSize, opts.MaxBytesPerSecond)
		e.limiter = rate.NewLimiter(rate.Limit(opts.MaxBytesPerSecond), int(burst))
	}
	return e
}

// shouldSkip reports whether dst already holds the complete file. Only
// positive sizes count.
func shouldSkip(dst string, probed, hint int64) (int64, bool) {
	have := existingSize(dst)
	if have < 0 {
		return 0, false
	}
	if probed > 0 && have == probed {
		return have, true
	}
	if hint > 0 && have == hint {
		return have, true
	}
	return 0, false
}

// Transfer downloads res into dst. The data goes to dst+PartSuffix first and
// is renamed onto dst only when every byte arrived, so a failed transfer never
// leaves a file under the final name.
func (e *Engine) Transfer(ctx context.Context, res ResolvedRemote, dst string, sizeHint int64, handlers *Handlers) (Result, error) {
	h := Handlers{}
	if handlers != nil {
		h = *handlers
	}
	h.setDefault(e.log)

	result, err := e.transfer(ctx, res, dst, sizeHint, &h)
	if err != nil {
		h.ErrorHandler(dst, err)
	}
	return result, err
}

func (e *Engine) transfer(ctx context.Context, res ResolvedRemote, dst string, sizeHint int64, h *Handlers) (Result, error) {
	result := Result{Dest: dst}
	if size, ok := shouldSkip(dst, res.Size, sizeHint); ok {
		e.log.Debug("skip (exists same size): %s", dst)
		h.SkipHandler(dst, size)
		result.Skipped = true
		result.Size = size
		return result, nil
	}

	if err := ensureDir(filepath.Dir(dst)); err != nil {
		return result, err
	}
	part := dst + PartSuffix
	if err := removePart(part); err != nil {
		return result, err
	}

	size := effectiveSize(res.Size, sizeHint)
	if useSegments(size, e.opts.Segments, e.opts.BlockSize, e.opts.MinSegmentSize) {
		result.Mode = ModeSegmented
		h.StartHandler(dst, ModeSegmented, size)
		n, err := e.segmented(ctx, res, dst, part, size, h)
		result.Bytes = n
		if err != nil {
			return result, err
		}
	} else {
		result.Mode = ModeSingle
		h.StartHandler(dst, ModeSingle, size)
		n, err := e.single(ctx, res, dst, part, h)
		result.Bytes = n
		if err != nil {
			return result, err
		}
	}

	if err := commitPart(part, dst); err != nil {
		_ = removePart(part)
		return result, err
	}
	result.Size = result.Bytes
	h.CompleteHandler(dst, result.Bytes)
	return result, nil
}

// single streams the whole file over one connection.
func (e *Engine) single(ctx context.Context, res ResolvedRemote, dst, part string, h *Handlers) (int64, error) {
	f, err := os.OpenFile(part, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, &FileError{Op: "create", Path: part, Cause: err}
	}

	var written int64
	err = e.pool.WithConn(ctx, func(c *PooledConn) error {
		if err := c.ChangeDir(res.Dir); err != nil {
			return err
		}
		rc, err := c.RetrFrom(res.Name, 0)
		if err != nil {
			return err
		}
		n, err := e.pump(ctx, rc, f, 0, -1, dst, h)
		written = n
		cerr := rc.Close()
		if err != nil {
			return err
		}
		if res.Size > 0 && n < res.Size {
			return &ShortReadError{Start: 0, End: res.Size, Remaining: res.Size - n}
		}
		return cerr
	})

	if serr := f.Sync(); serr != nil && err == nil {
		err = &FileError{Op: "sync", Path: part, Cause: serr}
	}
	if cerr := f.Close(); cerr != nil && err == nil {
		err = &FileError{Op: "close", Path: part, Cause: cerr}
	}
	if err != nil {
		_ = removePart(part)
		return written, err
	}
	return written, nil
}

// segmented fetches size bytes as parallel ranges into a mapped part file.
func (e *Engine) segmented(ctx context.Context, res ResolvedRemote, dst, part string, size int64, h *Handlers) (int64, error) {
	ranges, err := SplitRanges(size, e.opts.Segments)
	if err != nil {
		return 0, err
	}
	pf, err := openPartFile(part, size)
	if err != nil {
		return 0, err
	}

	var (
		written atomic.Int64
		wg      sync.WaitGroup
		errs    = make([]error, len(ranges))
	)
	for i, rg := range ranges {
		wg.Add(1)
		safeGo(e.log, &wg, fmt.Sprintf("segment %d of %s", i, dst),
			func(r interface{}) { errs[i] = fmt.Errorf("segment worker panicked: %v", r) },
			func() {
				n, err := e.runSegment(ctx, res, rg, pf, dst, h)
				written.Add(n)
				errs[i] = err
			})
	}
	wg.Wait()

	closeErr := pf.Close()

	failed, first := 0, -1
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		if first < 0 {
			first = i
		}
	}
	if failed > 0 {
		e.log.Error("%s: %d of %d segments failed", dst, failed, len(ranges))
		_ = removePart(part)
		return written.Load(), &SegmentError{
			Index:  first,
			Range:  ranges[first],
			Failed: failed,
			Total:  len(ranges),
			Cause:  errs[first],
		}
	}
	if closeErr != nil {
		_ = removePart(part)
		return written.Load(), closeErr
	}
	return written.Load(), nil
}

// runSegment fills rg, retrying from the last written offset up to
// SegmentAttempts times.
func (e *Engine) runSegment(ctx context.Context, res ResolvedRemote, rg SegmentRange, w io.WriterAt, id string, h *Handlers) (int64, error) {
	var (
		total   int64
		lastErr error
	)
	pos := rg.Start
	for attempt := 1; attempt <= e.opts.SegmentAttempts; attempt++ {
		n, err := e.fetchRange(ctx, res, pos, rg.End, w, id, h)
		total += n
		pos += n
		if err == nil {
			return total, nil
		}
		lastErr = err
		if attempt < e.opts.SegmentAttempts {
			e.log.Warning("%s: segment [%d-%d) attempt %d failed at offset %d: %v",
				id, rg.Start, rg.End, attempt, pos, err)
		}
	}
	return total, lastErr
}

// fetchRange reads [start, end) on its own pooled connection.
func (e *Engine) fetchRange(ctx context.Context, res ResolvedRemote, start, end int64, w io.WriterAt, id string, h *Handlers) (int64, error) {
	pc, err := e.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	healthy := false
	defer func() { e.pool.Release(pc, healthy) }()

	if err := pc.ChangeDir(res.Dir); err != nil {
		healthy = isServerReply(err)
		return 0, err
	}
	rc, err := pc.RetrFrom(res.Name, start)
	if err != nil {
		healthy = isServerReply(err)
		return 0, err
	}
	want := end - start
	n, err := e.pump(ctx, rc, w, start, want, id, h)
	// Stopping at the range end aborts the data connection; the server then
	// answers 426 or 451 on the control channel, which is still usable.
	cerr := rc.Close()
	if err != nil {
		return n, err
	}
	if n < want {
		return n, &ShortReadError{Start: start, End: end, Remaining: want - n}
	}
	healthy = cerr == nil || isServerReply(cerr)
	return n, nil
}

// pump copies from r to w at off in BlockSize chunks until limit bytes were
// copied or r is exhausted. A negative limit reads to EOF.
func (e *Engine) pump(ctx context.Context, r io.Reader, w io.WriterAt, off, limit int64, id string, h *Handlers) (int64, error) {
	buf := make([]byte, e.opts.BlockSize)
	var done int64
	for limit < 0 || done < limit {
		chunk := buf
		if limit >= 0 && limit-done < int64(len(chunk)) {
			chunk = chunk[:limit-done]
		}
		n, rerr := r.Read(chunk)
		if n > 0 {
			if e.limiter != nil {
				if err := e.limiter.WaitN(ctx, n); err != nil {
					return done, err
				}
			}
			if _, werr := w.WriteAt(chunk[:n], off+done); werr != nil {
				if _, ok := werr.(*FileError); !ok {
					werr = &FileError{Op: "write", Path: id + PartSuffix, Cause: werr}
				}
				return done, werr
			}
			done += int64(n)
			h.ProgressHandler(id, n)
		}
		if rerr == io.EOF {
			return done, nil
		}
		if rerr != nil {
			return done, rerr
		}
	}
	return done, nil
}

// Fetch resolves entry.Remote, downloads it below destRoot and records the
// outcome in the stats tracker.
func (e *Engine) Fetch(ctx context.Context, entry PlanEntry, destRoot string, handlers *Handlers) (Result, error) {
	dst := entry.Dest(destRoot)
	res, err := e.resolver.Resolve(ctx, entry.Remote)
	if err != nil {
		if e.stats != nil {
			id := e.stats.StartTransfer(entry.Remote, entry.OwnerKey, entry.SizeHint)
			e.stats.CompleteTransfer(id, err)
		}
		if handlers != nil && handlers.ErrorHandler != nil {
			handlers.ErrorHandler(dst, err)
		}
		e.log.Error("%s: Error: %s", dst, err.Error())
		return Result{Dest: dst}, err
	}

	if e.stats == nil {
		return e.Transfer(ctx, res, dst, entry.SizeHint, handlers)
	}

	id := e.stats.StartTransfer(res.Path, entry.OwnerKey, effectiveSize(res.Size, entry.SizeHint))
	if size, ok := shouldSkip(dst, res.Size, entry.SizeHint); ok {
		e.stats.SkipTransfer(size)
		result, err := e.Transfer(ctx, res, dst, entry.SizeHint, handlers)
		e.stats.CompleteTransfer(id, err)
		return result, err
	}

	h := Handlers{}
	if handlers != nil {
		h = *handlers
	}
	progress := h.ProgressHandler
	h.ProgressHandler = func(hid string, n int) {
		e.stats.AddProgress(id, int64(n))
		if progress != nil {
			progress(hid, n)
		}
	}
	complete := h.CompleteHandler
	h.CompleteHandler = func(hid string, total int64) {
		// the server may not have reported a size
		e.stats.SetTotalSize(id, total)
		if complete != nil {
			complete(hid, total)
		}
	}
	result, err := e.Transfer(ctx, res, dst, entry.SizeHint, &h)
	e.stats.CompleteTransfer(id, err)
	return result, err
}
