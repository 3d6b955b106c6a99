package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/chopsticks-dev/chopsticks/internal/metrics"
)

// PrintReport outputs a human-readable end-of-run summary: one row per
// operation type plus overall totals and pipeline health counters.
func PrintReport(w io.Writer, s metrics.Summary) {
	fmt.Fprintln(w, "\n--- Stress Test Results ---")
	fmt.Fprintf(w, "Duration:          %s\n", s.Elapsed.Round(1e6))
	fmt.Fprintf(w, "Total Operations:  %d\n", s.TotalOps)
	fmt.Fprintf(w, "Successful:        %d\n", s.TotalSuccesses)
	fmt.Fprintf(w, "Failed:            %d\n", s.TotalFailures)
	fmt.Fprintf(w, "Ops/sec:           %.2f\n", s.OpsPerSec)
	fmt.Fprintf(w, "Throughput:        %s/s\n", formatBytes(s.Throughput))
	if s.Partial {
		fmt.Fprintln(w, "NOTE: results include stale worker contributions (partial data)")
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OP\tCOUNT\tSUCCESS\tP50\tP95\tP99\tTHROUGHPUT")
	for _, op := range s.Ops {
		if op.Count == 0 {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%.1f%%\t%s\t%s\t%s\t%s/s\n",
			op.Op,
			op.Count,
			op.SuccessRate*100,
			op.P50.Round(1e5),
			op.P95.Round(1e5),
			op.P99.Round(1e5),
			formatBytes(op.Throughput),
		)
	}
	tw.Flush()

	writeErrorBreakdown(w, s)
	writeWorkers(w, s)

	if s.DroppedSnapshots > 0 || s.InvalidRecords > 0 {
		fmt.Fprintln(w, "\nPipeline Health:")
		fmt.Fprintf(w, "  Dropped Snapshots: %d\n", s.DroppedSnapshots)
		fmt.Fprintf(w, "  Invalid Records:   %d\n", s.InvalidRecords)
	}
}

// PrintJSONReport outputs the summary as indented JSON.
func PrintJSONReport(w io.Writer, s metrics.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func writeErrorBreakdown(w io.Writer, s metrics.Summary) {
	type row struct {
		op    metrics.Op
		kind  string
		count int64
	}
	var rows []row
	for _, op := range s.Ops {
		for kind, n := range op.Errors {
			rows = append(rows, row{op: op.Op, kind: kind, count: n})
		}
	}
	if len(rows) == 0 {
		return
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count == rows[j].count {
			if rows[i].op == rows[j].op {
				return rows[i].kind < rows[j].kind
			}
			return rows[i].op < rows[j].op
		}
		return rows[i].count > rows[j].count
	})
	fmt.Fprintln(w, "\nFailures:")
	for _, r := range rows {
		fmt.Fprintf(w, "  %s %s: %d\n", strings.ToUpper(string(r.op)), r.kind, r.count)
	}
}

func writeWorkers(w io.Writer, s metrics.Summary) {
	if len(s.Workers) == 0 {
		return
	}
	fmt.Fprintln(w, "\nWorkers:")
	for _, ws := range s.Workers {
		fmt.Fprintf(w, "  - %s: %s (seq=%d, last seen %s)\n",
			ws.ID, ws.Status, ws.LastSeq, ws.LastSeen.Format("15:04:05"))
	}
}

func formatBytes(bps float64) string {
	switch {
	case bps >= 1<<30:
		return fmt.Sprintf("%.2f GiB", bps/(1<<30))
	case bps >= 1<<20:
		return fmt.Sprintf("%.2f MiB", bps/(1<<20))
	case bps >= 1<<10:
		return fmt.Sprintf("%.2f KiB", bps/(1<<10))
	default:
		return fmt.Sprintf("%.0f B", bps)
	}
}
