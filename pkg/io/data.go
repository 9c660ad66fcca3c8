package io

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"

	"github.com/omaskery/qnxtally/pkg/events"
)

// CpuUsageScale is the per-CPU divisor applied to a thread's running milliseconds when computing its CPU usage
const CpuUsageScale = 10

// RunningTime is the accumulated time a thread spent between being scheduled and its next timestamped line
type RunningTime struct {
	// TotalMicroseconds is the sum of every closed running interval
	TotalMicroseconds int64
	// TotalMilliseconds is TotalMicroseconds expressed in milliseconds
	TotalMilliseconds float64
	// CpuUsage is TotalMilliseconds normalised by the number of CPUs seen in the trace
	CpuUsage float64
}

// Stats describes how much of a trace the parser recognised
type Stats struct {
	Lines                   int
	UnrecognisedLines       int
	SchedulingMarkers       int
	KernelCalls             int
	UnattributedKernelCalls int
	ClosedIntervals         int
	UnmatchedStops          int
	NegativeIntervals       int
}

type eventCountKey struct {
	kind   events.EventKind
	thread events.ThreadKey
}

type kernelCallKey struct {
	call string
	cpu  events.CpuID
}

type threadKernelKey struct {
	thread events.ThreadKey
	call   string
}

// Bundle is the aggregate result of parsing one trace. It is read-only once returned by the parser.
type Bundle struct {
	processes          map[events.ProcessID]struct{}
	processNames       map[events.ProcessID]string
	threadNames        map[events.ThreadKey]string
	eventCounts        map[eventCountKey]int
	cpuKernelCounts    map[kernelCallKey]int
	threadKernelCounts map[threadKernelKey]int
	threadCpuEvents    map[events.ThreadKey][]events.CpuCall
	runningTime        map[events.ThreadKey]*RunningTime
	cpus               map[events.CpuID]struct{}
	stats              Stats
}

func newBundle() *Bundle {
	return &Bundle{
		processes:          map[events.ProcessID]struct{}{},
		processNames:       map[events.ProcessID]string{},
		threadNames:        map[events.ThreadKey]string{},
		eventCounts:        map[eventCountKey]int{},
		cpuKernelCounts:    map[kernelCallKey]int{},
		threadKernelCounts: map[threadKernelKey]int{},
		threadCpuEvents:    map[events.ThreadKey][]events.CpuCall{},
		runningTime:        map[events.ThreadKey]*RunningTime{},
		cpus:               map[events.CpuID]struct{}{},
	}
}

func (b *Bundle) ensureProcess(pid events.ProcessID) {
	b.processes[pid] = struct{}{}
}

func (b *Bundle) ensureThread(key events.ThreadKey) {
	b.ensureProcess(key.PID)
	if _, ok := b.threadNames[key]; !ok {
		b.threadNames[key] = events.UnnamedThread
	}
}

// setProcessName names a process, keeping the first name seen
func (b *Bundle) setProcessName(pid events.ProcessID, name string) {
	b.ensureProcess(pid)
	if _, ok := b.processNames[pid]; !ok {
		b.processNames[pid] = name
	}
}

func (b *Bundle) setThreadName(key events.ThreadKey, name string) {
	b.ensureThread(key)
	b.threadNames[key] = name
}

func (b *Bundle) addRunningTime(key events.ThreadKey, elapsed int64) {
	b.ensureThread(key)
	rt, ok := b.runningTime[key]
	if !ok {
		rt = &RunningTime{}
		b.runningTime[key] = rt
	}
	rt.TotalMicroseconds += elapsed
	rt.TotalMilliseconds = float64(rt.TotalMicroseconds) / 1_000
}

func (b *Bundle) computeCpuUsage() {
	divisor := float64(len(b.cpus) * CpuUsageScale)
	for _, rt := range b.runningTime {
		if divisor == 0 {
			rt.CpuUsage = 0
			continue
		}
		rt.CpuUsage = rt.TotalMilliseconds / divisor
	}
}

// Processes lists every process id seen in the trace, named or not
func (b *Bundle) Processes() []events.ProcessID {
	return sortedIDs(b.processes)
}

// NamedProcesses lists the processes that have a display name
func (b *Bundle) NamedProcesses() []events.ProcessID {
	return sortedIDs(b.processNames)
}

// ProcessName retrieves the display name of a process, if one was seen
func (b *Bundle) ProcessName(pid events.ProcessID) (string, bool) {
	name, ok := b.processNames[pid]
	return name, ok
}

// Threads lists every thread seen in the trace, ordered by process then thread id
func (b *Bundle) Threads() []events.ThreadKey {
	keys := make([]events.ThreadKey, 0, len(b.threadNames))
	for k := range b.threadNames {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, events.CompareThreadKeys)
	return keys
}

// ThreadsOf lists the threads seen for a single process
func (b *Bundle) ThreadsOf(pid events.ProcessID) []events.ThreadKey {
	var keys []events.ThreadKey
	for _, k := range b.Threads() {
		if k.PID == pid {
			keys = append(keys, k)
		}
	}
	return keys
}

// HasThread reports whether the thread was seen in the trace
func (b *Bundle) HasThread(key events.ThreadKey) bool {
	_, ok := b.threadNames[key]
	return ok
}

// ThreadName retrieves the display name of a thread, defaulting to UnnamedThread
func (b *Bundle) ThreadName(key events.ThreadKey) string {
	if name, ok := b.threadNames[key]; ok {
		return name
	}
	return events.UnnamedThread
}

// EventCount retrieves how many lines of a thread carried the given synchronization marker
func (b *Bundle) EventCount(kind events.EventKind, key events.ThreadKey) int {
	return b.eventCounts[eventCountKey{kind: kind, thread: key}]
}

// Cpus lists every CPU id seen anywhere in the trace
func (b *Bundle) Cpus() []events.CpuID {
	return sortedIDs(b.cpus)
}

// KernelCalls lists the names of every kernel call seen on any CPU
func (b *Bundle) KernelCalls() []string {
	seen := map[string]struct{}{}
	for k := range b.cpuKernelCounts {
		seen[k.call] = struct{}{}
	}
	return sortedKeys(seen)
}

// CpuKernelCount retrieves how often a kernel call was made on a CPU, attributed to a thread or not
func (b *Bundle) CpuKernelCount(call string, cpu events.CpuID) int {
	return b.cpuKernelCounts[kernelCallKey{call: call, cpu: cpu}]
}

// AttributedKernelCalls lists the names of kernel calls attributed to at least one thread
func (b *Bundle) AttributedKernelCalls() []string {
	seen := map[string]struct{}{}
	for k, n := range b.threadKernelCounts {
		if n > 0 {
			seen[k.call] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// KernelThreads lists the threads with at least one attributed kernel call
func (b *Bundle) KernelThreads() []events.ThreadKey {
	var keys []events.ThreadKey
	for _, k := range b.Threads() {
		if len(b.threadCpuEvents[k]) > 0 {
			keys = append(keys, k)
		}
	}
	return keys
}

// ThreadKernelCount retrieves how many calls of a kernel call were attributed to a thread
func (b *Bundle) ThreadKernelCount(key events.ThreadKey, call string) int {
	return b.threadKernelCounts[threadKernelKey{thread: key, call: call}]
}

// ThreadCpuEvents retrieves, in trace order, the kernel calls attributed to a thread and the CPU each ran on
func (b *Bundle) ThreadCpuEvents(key events.ThreadKey) []events.CpuCall {
	calls := b.threadCpuEvents[key]
	out := make([]events.CpuCall, len(calls))
	copy(out, calls)
	return out
}

// RunningThreads lists the threads that closed at least one running interval
func (b *Bundle) RunningThreads() []events.ThreadKey {
	keys := make([]events.ThreadKey, 0, len(b.runningTime))
	for k := range b.runningTime {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, events.CompareThreadKeys)
	return keys
}

// RunningTime retrieves the accumulated running time of a thread
func (b *Bundle) RunningTime(key events.ThreadKey) (RunningTime, bool) {
	rt, ok := b.runningTime[key]
	if !ok {
		return RunningTime{}, false
	}
	return *rt, true
}

// Stats retrieves the recognition statistics for the trace
func (b *Bundle) Stats() Stats {
	return b.stats
}

func sortedIDs[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b K) int {
		return events.CompareIDs(string(a), string(b))
	})
	return keys
}

func sortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
