// report derives presentation tables from parsed traces and renders them as text
package report

import (
	"golang.org/x/exp/slices"

	"github.com/omaskery/qnxtally/pkg/events"
	qio "github.com/omaskery/qnxtally/pkg/io"
)

// AllProcesses selects every process when filtering a summary
const AllProcesses events.ProcessID = ""

// CpuEventRow holds the attributed calls of one kernel call on each CPU of a CpuEventSummary
type CpuEventRow struct {
	Call   string
	Counts []int
	Total  int
}

// CpuEventSummary totals attributed kernel calls per CPU, rebuilt from every thread's event log
type CpuEventSummary struct {
	Cpus []events.CpuID
	Rows []CpuEventRow
}

// SummarizeCpuEvents sums the per-thread CPU event logs into per-call, per-CPU totals
func SummarizeCpuEvents(b *qio.Bundle) CpuEventSummary {
	totals := map[string]map[events.CpuID]int{}
	cpuSet := map[events.CpuID]struct{}{}
	for _, thread := range b.KernelThreads() {
		for _, c := range b.ThreadCpuEvents(thread) {
			if totals[c.Call] == nil {
				totals[c.Call] = map[events.CpuID]int{}
			}
			totals[c.Call][c.CPU]++
			cpuSet[c.CPU] = struct{}{}
		}
	}

	summary := CpuEventSummary{}
	for cpu := range cpuSet {
		summary.Cpus = append(summary.Cpus, cpu)
	}
	slices.SortFunc(summary.Cpus, func(a, b events.CpuID) int {
		return events.CompareIDs(string(a), string(b))
	})

	for call, byCpu := range totals {
		row := CpuEventRow{Call: call, Counts: make([]int, len(summary.Cpus))}
		for i, cpu := range summary.Cpus {
			row.Counts[i] = byCpu[cpu]
			row.Total += byCpu[cpu]
		}
		summary.Rows = append(summary.Rows, row)
	}
	slices.SortFunc(summary.Rows, func(a, b CpuEventRow) int {
		switch {
		case a.Call < b.Call:
			return -1
		case a.Call > b.Call:
			return 1
		}
		return 0
	})
	return summary
}

// EventTotals sums the synchronization events of every thread in a process, or of all threads
func EventTotals(b *qio.Bundle, pid events.ProcessID) map[events.EventKind]int {
	totals := make(map[events.EventKind]int, len(events.EventKinds()))
	for _, kind := range events.EventKinds() {
		totals[kind] = 0
	}
	for _, thread := range b.Threads() {
		if pid != AllProcesses && thread.PID != pid {
			continue
		}
		for _, kind := range events.EventKinds() {
			totals[kind] += b.EventCount(kind, thread)
		}
	}
	return totals
}

// CallCount is a kernel call and how often it was attributed
type CallCount struct {
	Call  string
	Count int
}

// RankKernelCalls orders the kernel calls attributed within a process, or within all processes, by
// descending count. Calls never attributed there are left out.
func RankKernelCalls(b *qio.Bundle, pid events.ProcessID) []CallCount {
	counts := map[string]int{}
	for _, thread := range b.KernelThreads() {
		if pid != AllProcesses && thread.PID != pid {
			continue
		}
		for _, call := range b.AttributedKernelCalls() {
			counts[call] += b.ThreadKernelCount(thread, call)
		}
	}

	var ranked []CallCount
	for call, n := range counts {
		if n > 0 {
			ranked = append(ranked, CallCount{Call: call, Count: n})
		}
	}
	slices.SortFunc(ranked, func(a, b CallCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		switch {
		case a.Call < b.Call:
			return -1
		case a.Call > b.Call:
			return 1
		}
		return 0
	})
	return ranked
}
