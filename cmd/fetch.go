package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
	"github.com/warpdl/rtfetch/cmd/common"
	"github.com/warpdl/rtfetch/pkg/fetchlib"
)

// ErrReported is returned by actions that already printed their error. The
// caller should only set the exit status.
var ErrReported = errors.New("error already reported")

var (
	jobsPath   string
	dryRun     bool
	destDir    string
	noProgress bool

	fetchFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "jobs, j",
			Usage:       "JSON file with the jobs to fetch (\"-\" reads stdin)",
			Destination: &jobsPath,
		},
		cli.BoolFlag{
			Name:        "dry-run, n",
			Usage:       "print the download plan without transferring anything",
			Destination: &dryRun,
		},
		cli.StringFlag{
			Name:        "dest, d",
			Usage:       "download into this directory instead of the configured one",
			Destination: &destDir,
		},
		cli.BoolFlag{
			Name:        "no-progress",
			Usage:       "do not render progress bars",
			Destination: &noProgress,
		},
	}
)

var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

type fetchOpts struct {
	// DestDir overrides both the job and the configured destination.
	DestDir  string
	DryRun   bool
	Progress bool
	Out      io.Writer
}

func fetch(ctx *cli.Context) error {
	path := jobsPath
	if path == "" {
		path = ctx.Args().First()
	}
	if path == "" {
		if ctx.Command.Name == "" {
			return common.Help(ctx)
		}
		return common.PrintErrWithCmdHelp(ctx, errors.New("no jobs file provided"))
	} else if path == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}

	jobs, err := readJobsFile(path)
	if err != nil {
		common.PrintRuntimeErr(ctx, "fetch", "read_jobs", err)
		return ErrReported
	}
	cfg, err := loadConfig()
	if err != nil {
		common.PrintRuntimeErr(ctx, "fetch", "load_config", err)
		return ErrReported
	}
	l, err := newLogger(cfg, logLevel, verbose, stderr)
	if err != nil {
		common.PrintRuntimeErr(ctx, "fetch", "logger", err)
		return ErrReported
	}
	defer l.Close()

	if !dryRun {
		lock, err := acquireInstanceLock()
		if err != nil {
			common.PrintRuntimeErr(ctx, "fetch", "lock", err)
			return ErrReported
		}
		defer lock.Release()
	}

	s, err := openSession(cfg, l)
	if err != nil {
		common.PrintRuntimeErr(ctx, "fetch", "session", err)
		return ErrReported
	}
	defer s.Close()

	sctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	failed := s.fetchJobs(sctx, jobs, fetchOpts{
		DestDir:  destDir,
		DryRun:   dryRun,
		Progress: !noProgress,
		Out:      stdout,
	})
	if !dryRun {
		printSummary(stdout, s.stats.Summary(), s.pool.Stats())
	}
	if failed > 0 {
		return fmt.Errorf("%d job(s) failed", failed)
	}
	return nil
}

func readJobsFile(path string) ([]fetchlib.Job, error) {
	if path == "-" {
		return fetchlib.ReadJobs(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return fetchlib.ReadJobs(f)
}

// destFor picks where a job's files go: the override, else the job's own
// directory, else the configured one.
func (s *session) destFor(job fetchlib.Job, override string) string {
	switch {
	case override != "":
		return override
	case job.DestDir != "":
		return job.DestDir
	default:
		return s.cfg.Paths.DestDir
	}
}

// fetchJobs processes every complete job and returns the number of jobs
// that had at least one failed file.
func (s *session) fetchJobs(ctx context.Context, jobs []fetchlib.Job, opts fetchOpts) int {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	var view *progressView
	if opts.Progress && !opts.DryRun {
		view = newProgressView(opts.Out)
		defer view.Wait()
	}

	failed := 0
	for i, job := range jobs {
		if ctx.Err() != nil {
			s.log.Warning("interrupted, %d job(s) left", len(jobs)-i)
			break
		}
		if !job.Completed() {
			s.log.Info("%s: not complete, skipping", job.DisplayName())
			continue
		}
		plan := fetchlib.BuildPlan(job, s.cfg.Paths.FTPRoot, s.cfg.Paths.RTorrentRoot)
		if len(plan) == 0 {
			s.log.Warning("%s: no files to fetch", job.DisplayName())
			continue
		}
		root := s.destFor(job, opts.DestDir)
		if opts.DryRun {
			printPlan(opts.Out, job, plan, root)
			continue
		}
		if !s.fetchJob(ctx, job, plan, root, view) {
			failed++
		}
	}
	s.stats.EndSession()
	return failed
}

// fetchJob downloads the files of one job with the configured per-file
// concurrency. The job counts as processed only when every file succeeded
// or was skipped.
func (s *session) fetchJob(ctx context.Context, job fetchlib.Job, plan []fetchlib.PlanEntry, root string, view *progressView) bool {
	name := job.DisplayName()
	s.log.Info("%s: fetching %d file(s), %s into %s",
		name, len(plan), humanize.IBytes(uint64(fetchlib.PlanSize(plan))), root)

	var (
		wg     sync.WaitGroup
		sem    = make(chan struct{}, s.cfg.Transfer.FileConcurrency)
		errCnt atomic.Int32
	)
	for _, entry := range plan {
		if ctx.Err() != nil {
			errCnt.Add(1)
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(entry fetchlib.PlanEntry) {
			defer func() {
				<-sem
				wg.Done()
			}()
			var h *fetchlib.Handlers
			if view != nil {
				h = view.handlers(entry)
			}
			res, err := s.engine.Fetch(ctx, entry, root, h)
			if err != nil {
				errCnt.Add(1)
				return
			}
			if res.Skipped {
				s.log.Info("%s: already present", entry.RelPath)
				return
			}
			s.log.Info("%s: downloaded %s (%s)", entry.RelPath, humanize.IBytes(uint64(res.Bytes)), res.Mode)
		}(entry)
	}
	wg.Wait()

	if n := errCnt.Load(); n > 0 {
		s.log.Error("%s: %d of %d file(s) failed", name, n, len(plan))
		return false
	}
	s.stats.RecordJobProcessed()
	s.log.Info("%s: done", name)
	return true
}

func printPlan(w io.Writer, job fetchlib.Job, plan []fetchlib.PlanEntry, root string) {
	fmt.Fprintf(w, "%s (%s, %d file(s), %s)\n",
		job.DisplayName(), job.Key(), len(plan), humanize.IBytes(uint64(fetchlib.PlanSize(plan))))
	for _, e := range plan {
		size := "unknown size"
		if e.SizeHint > 0 {
			size = humanize.IBytes(uint64(e.SizeHint))
		}
		fmt.Fprintf(w, "  %s\n    -> %s (%s)\n", e.Remote, e.Dest(root), size)
	}
}
