package io

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/omaskery/qnxtally/pkg/events"
)

type jsonRunningTime struct {
	Total    int64   `json:"total"`
	Msec     float64 `json:"msec"`
	CpuUsage float64 `json:"cpu_usage"`
}

type jsonStats struct {
	Lines                   int `json:"lines"`
	UnrecognisedLines       int `json:"unrecognisedLines"`
	SchedulingMarkers       int `json:"schedulingMarkers"`
	KernelCalls             int `json:"kernelCalls"`
	UnattributedKernelCalls int `json:"unattributedKernelCalls"`
	ClosedIntervals         int `json:"closedIntervals"`
	UnmatchedStops          int `json:"unmatchedStops"`
	NegativeIntervals       int `json:"negativeIntervals"`
}

// jsonBundle mirrors the nesting a report renderer expects: outer keys are kinds or call names, then pid, then tid
type jsonBundle struct {
	Processes          map[string]string                     `json:"processes"`
	Threads            map[string]map[string]string          `json:"threads"`
	EventCounts        map[string]map[string]map[string]int  `json:"eventCounts"`
	CpuEvents          map[string]map[string]int             `json:"cpuEvents"`
	ThreadCpuEvents    map[string]map[string][][2]string     `json:"threadCpuEvents"`
	ThreadKernelCounts map[string]map[string]map[string]int  `json:"threadKernelCounts"`
	ThreadRunningTime  map[string]map[string]jsonRunningTime `json:"threadRunningTime"`
	Cpus               []string                              `json:"cpus"`
	Stats              jsonStats                             `json:"stats"`
}

// NamedBundle pairs a parsed trace with the name of the input it came from
type NamedBundle struct {
	Name   string
	Bundle *Bundle
}

// WriteJsonObject writes a single bundle as a JSON object. Output is byte-identical for identical bundles.
func WriteJsonObject(w io.Writer, b *Bundle) error {
	encoder := json.NewEncoder(w)
	if err := encoder.Encode(toJsonBundle(b)); err != nil {
		return fmt.Errorf("failed to write JSON bundle: %w", err)
	}
	return nil
}

// WriteJsonObjects writes several bundles as one JSON object keyed by input name
func WriteJsonObjects(w io.Writer, bundles []NamedBundle) error {
	out := make(map[string]jsonBundle, len(bundles))
	for _, nb := range bundles {
		if _, dup := out[nb.Name]; dup {
			return fmt.Errorf("duplicate input name '%s'", nb.Name)
		}
		out[nb.Name] = toJsonBundle(nb.Bundle)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to write JSON bundles: %w", err)
	}
	return nil
}

func toJsonBundle(b *Bundle) jsonBundle {
	j := jsonBundle{
		Processes:          map[string]string{},
		Threads:            map[string]map[string]string{},
		EventCounts:        map[string]map[string]map[string]int{},
		CpuEvents:          map[string]map[string]int{},
		ThreadCpuEvents:    map[string]map[string][][2]string{},
		ThreadKernelCounts: map[string]map[string]map[string]int{},
		ThreadRunningTime:  map[string]map[string]jsonRunningTime{},
		Cpus:               []string{},
	}

	for pid, name := range b.processNames {
		j.Processes[string(pid)] = name
	}
	for key, name := range b.threadNames {
		threadMap(j.Threads, key)[string(key.TID)] = name
	}

	for _, kind := range events.EventKinds() {
		j.EventCounts[string(kind)] = map[string]map[string]int{}
	}
	for key, n := range b.eventCounts {
		byPid := j.EventCounts[string(key.kind)]
		threadMap(byPid, key.thread)[string(key.thread.TID)] = n
	}

	for key, n := range b.cpuKernelCounts {
		if j.CpuEvents[key.call] == nil {
			j.CpuEvents[key.call] = map[string]int{}
		}
		j.CpuEvents[key.call][string(key.cpu)] = n
	}

	for key, calls := range b.threadCpuEvents {
		pairs := make([][2]string, 0, len(calls))
		for _, c := range calls {
			pairs = append(pairs, [2]string{string(c.CPU), c.Call})
		}
		threadMap(j.ThreadCpuEvents, key)[string(key.TID)] = pairs
	}

	for key, n := range b.threadKernelCounts {
		byTid := threadMap(j.ThreadKernelCounts, key.thread)
		if byTid[string(key.thread.TID)] == nil {
			byTid[string(key.thread.TID)] = map[string]int{}
		}
		byTid[string(key.thread.TID)][key.call] = n
	}

	for key, rt := range b.runningTime {
		threadMap(j.ThreadRunningTime, key)[string(key.TID)] = jsonRunningTime{
			Total:    rt.TotalMicroseconds,
			Msec:     rt.TotalMilliseconds,
			CpuUsage: rt.CpuUsage,
		}
	}

	for _, cpu := range b.Cpus() {
		j.Cpus = append(j.Cpus, string(cpu))
	}

	s := b.stats
	j.Stats = jsonStats{
		Lines:                   s.Lines,
		UnrecognisedLines:       s.UnrecognisedLines,
		SchedulingMarkers:       s.SchedulingMarkers,
		KernelCalls:             s.KernelCalls,
		UnattributedKernelCalls: s.UnattributedKernelCalls,
		ClosedIntervals:         s.ClosedIntervals,
		UnmatchedStops:          s.UnmatchedStops,
		NegativeIntervals:       s.NegativeIntervals,
	}

	return j
}

// threadMap returns the per-thread map for the key's process, creating it when missing
func threadMap[V any](byPid map[string]map[string]V, key events.ThreadKey) map[string]V {
	m, ok := byPid[string(key.PID)]
	if !ok {
		m = map[string]V{}
		byPid[string(key.PID)] = m
	}
	return m
}
