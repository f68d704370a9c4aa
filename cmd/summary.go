package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/warpdl/rtfetch/pkg/fetchlib"
)

// printSummary writes the end-of-run report, including the state the
// connection pool was left in.
func printSummary(w io.Writer, sum fetchlib.SessionSummary, pool fetchlib.PoolStats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Session summary")
	fmt.Fprintf(tw, "  Duration:\t%s\n", sum.Duration.Round(time.Millisecond))
	fmt.Fprintf(tw, "  Jobs processed:\t%s\n", humanize.Comma(int64(sum.JobsProcessed)))
	fmt.Fprintf(tw, "  Files:\t%s attempted, %s ok, %s failed (%.1f%%)\n",
		humanize.Comma(int64(sum.FilesAttempted)),
		humanize.Comma(int64(sum.FilesSucceeded)),
		humanize.Comma(int64(sum.FilesFailed)),
		sum.SuccessRate(),
	)
	fmt.Fprintf(tw, "  Transferred:\t%s\n", humanize.IBytes(uint64(sum.BytesTransferred)))
	fmt.Fprintf(tw, "  Skipped:\t%s\n", humanize.IBytes(uint64(sum.BytesSkipped)))
	fmt.Fprintf(tw, "  Average speed:\t%s/s\n", humanize.IBytes(uint64(sum.AverageSpeed)))
	fmt.Fprintf(tw, "  Connections:\t%s attempts, %s failed (%.1f%% ok)\n",
		humanize.Comma(int64(sum.ConnectionAttempts)),
		humanize.Comma(int64(sum.ConnectionFailures)),
		sum.ConnectionSuccessRate(),
	)
	fmt.Fprintf(tw, "  Pool hit rate:\t%.1f%% (%d hits, %d misses)\n",
		sum.PoolHitRate(), sum.PoolHits, sum.PoolMisses)
	fmt.Fprintf(tw, "  Pool:\t%d active, %d idle of %d (%.1f%% used)\n",
		pool.Active, pool.Idle, pool.Max, pool.Utilization)
	tw.Flush()
}
