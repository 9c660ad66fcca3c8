package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"

	"github.com/omaskery/qnxtally/pkg/events"
	qio "github.com/omaskery/qnxtally/pkg/io"
)

// WriteText renders each parsed trace as a set of plain text tables
func WriteText(w io.Writer, bundles []qio.NamedBundle) error {
	for i, nb := range bundles {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
		}
		if err := writeTrace(w, nb); err != nil {
			return fmt.Errorf("failed to write report for '%s': %w", nb.Name, err)
		}
	}
	return nil
}

func writeTrace(w io.Writer, nb qio.NamedBundle) error {
	b := nb.Bundle
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "%s\n%s\n", nb.Name, strings.Repeat("=", len(nb.Name)))

	fmt.Fprintf(tw, "\nProcesses\n")
	fmt.Fprintf(tw, "PID\tName\n")
	for _, pid := range b.NamedProcesses() {
		name, _ := b.ProcessName(pid)
		fmt.Fprintf(tw, "%s\t%s\n", pid, name)
	}

	kinds := events.EventKinds()
	fmt.Fprintf(tw, "\nSynchronization events\n")
	fmt.Fprintf(tw, "PID\tTID\tThread Name")
	for _, kind := range kinds {
		fmt.Fprintf(tw, "\t%s", kind)
	}
	fmt.Fprintln(tw)
	for _, thread := range b.Threads() {
		fmt.Fprintf(tw, "%s\t%s\t%s", thread.PID, thread.TID, b.ThreadName(thread))
		for _, kind := range kinds {
			fmt.Fprintf(tw, "\t%s", count(b.EventCount(kind, thread)))
		}
		fmt.Fprintln(tw)
	}
	totals := EventTotals(b, AllProcesses)
	fmt.Fprintf(tw, "Totals\t\t")
	for _, kind := range kinds {
		fmt.Fprintf(tw, "\t%s", count(totals[kind]))
	}
	fmt.Fprintln(tw)

	cpus := b.Cpus()
	fmt.Fprintf(tw, "\nKernel calls per CPU\n")
	fmt.Fprintf(tw, "Call")
	for _, cpu := range cpus {
		fmt.Fprintf(tw, "\tCPU:%s", cpu)
	}
	fmt.Fprintln(tw)
	for _, call := range b.KernelCalls() {
		fmt.Fprintf(tw, "%s", call)
		for _, cpu := range cpus {
			fmt.Fprintf(tw, "\t%s", count(b.CpuKernelCount(call, cpu)))
		}
		fmt.Fprintln(tw)
	}

	calls := b.AttributedKernelCalls()
	fmt.Fprintf(tw, "\nKernel calls per thread\n")
	fmt.Fprintf(tw, "PID\tTID\tThread Name")
	for _, call := range calls {
		fmt.Fprintf(tw, "\t%s", call)
	}
	fmt.Fprintln(tw)
	for _, thread := range b.KernelThreads() {
		fmt.Fprintf(tw, "%s\t%s\t%s", thread.PID, thread.TID, b.ThreadName(thread))
		for _, call := range calls {
			fmt.Fprintf(tw, "\t%s", count(b.ThreadKernelCount(thread, call)))
		}
		fmt.Fprintln(tw)
	}

	fmt.Fprintf(tw, "\nRunning time\n")
	fmt.Fprintf(tw, "PID\tTID\tThread Name\tTotal (us)\tTotal (ms)\tCPU Usage\n")
	for _, thread := range b.RunningThreads() {
		rt, _ := b.RunningTime(thread)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			thread.PID, thread.TID, b.ThreadName(thread),
			humanize.Comma(rt.TotalMicroseconds),
			humanize.FtoaWithDigits(rt.TotalMilliseconds, 3),
			humanize.FtoaWithDigits(rt.CpuUsage, 4))
	}

	summary := SummarizeCpuEvents(b)
	fmt.Fprintf(tw, "\nSummary of CPU events for all processes\n")
	fmt.Fprintf(tw, "Call")
	for _, cpu := range summary.Cpus {
		fmt.Fprintf(tw, "\tCPU:%s", cpu)
	}
	fmt.Fprintf(tw, "\tTotal\n")
	for _, row := range summary.Rows {
		fmt.Fprintf(tw, "%s", row.Call)
		for _, n := range row.Counts {
			fmt.Fprintf(tw, "\t%s", count(n))
		}
		fmt.Fprintf(tw, "\t%s\n", count(row.Total))
	}

	return tw.Flush()
}

func count(n int) string {
	return humanize.Comma(int64(n))
}
