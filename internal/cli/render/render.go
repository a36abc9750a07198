// Package render prints job reports and usage logs for terminal users.
package render

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"fms/internal/ledger"
	"fms/internal/sandbox/result"
)

// Report prints the final report of a job.
func Report(w io.Writer, r result.Report) {
	fmt.Fprintf(w, "\nExecution report (%s):\n", r.JobID)
	fmt.Fprintf(w, "  Outcome:        %s\n", r.Outcome)
	if r.Outcome == result.LaunchError {
		return
	}
	if r.Outcome.Violation() {
		fmt.Fprintln(w, "  Limit breached")
	}
	fmt.Fprintf(w, "  Exit code:      %d\n", r.ExitCode)
	fmt.Fprintf(w, "  Wall time:      %.2fs\n", r.Sample.WallSeconds)
	fmt.Fprintf(w, "  CPU time:       %.2fs", r.Sample.CPUSeconds)
	if r.Sample.CPUSource != "" {
		fmt.Fprintf(w, " (%s)", r.Sample.CPUSource)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Peak memory:    %.2fMB\n", r.Sample.MaxMemoryMB)
	fmt.Fprintf(w, "  Cost:           %.2f credits\n", r.Cost)
	if r.Balance != nil {
		fmt.Fprintf(w, "  Balance:        %.2f credits\n", *r.Balance)
	}
	if r.Remaining != nil {
		fmt.Fprintf(w, "  Quota left:     %.2fs\n", *r.Remaining)
	}
}

// Usage prints a usage log with its total.
func Usage(w io.Writer, records []ledger.UsageRecord, total float64) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No usage records found.")
		return
	}
	fmt.Fprintln(w, "=== Usage report (postpaid) ===")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tBINARY\tCPU(s)\tMEM(MB)\tTIME(s)\tCOST")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\n",
			rec.Timestamp, filepath.Base(rec.Binary), rec.CPUTime, rec.MemoryMax, rec.ExecutionTime, rec.Cost)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "Total due: %.2f credits\n", total)
}
