package io

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/omaskery/qnxtally/pkg/events"
)

var (
	pidPattern       = regexp.MustCompile(`pid:(\d+)`)
	tidPattern       = regexp.MustCompile(`tid:(\d+)`)
	namePattern      = regexp.MustCompile(`name:(.+)`)
	cpuPattern       = regexp.MustCompile(`CPU:(\d+)`)
	runningPattern   = regexp.MustCompile(`THREAD\s+:THRUNNING\s+pid:(\d+)\s+tid:(\d+)`)
	kernelPattern    = regexp.MustCompile(`KER_CALL\s+:(\S+)`)
	threadRefPattern = regexp.MustCompile(`pid:(\d+)\s+tid:(\d+)`)
	timestampPattern = regexp.MustCompile(`t:(\d+)\.(\d+)\.(\d+)us`)

	// a name runs to the end of the line unless another field token follows it
	nameEndPattern = regexp.MustCompile(`\s(?:pid:\d|tid:\d|CPU:\d|t:\d|THREAD\s|KER_CALL\s)`)
)

// Line holds the fields recognised in a single line of trace text. Every field is optional.
type Line struct {
	// PID is the first process id on the line, empty when absent
	PID events.ProcessID
	// TID is the first thread id on the line, empty when absent
	TID events.ThreadID
	// Name is the display name carried by the line, empty when absent
	Name string
	// CPU is the CPU the line refers to, empty when absent
	CPU events.CpuID
	// Scheduled names the thread a CPU line marks as running, nil when the line is not a scheduling marker
	Scheduled *events.ThreadKey
	// KernelCall is the name of the kernel call made on CPU, only set when CPU is present
	KernelCall string
	// ThreadRef is an adjacent pid/tid pair, used to close running intervals
	ThreadRef *events.ThreadKey
	// Timestamp is the line time in microseconds, nil when absent
	Timestamp *int64
}

// Classify probes a line for each known field independently. A line matching nothing yields a zero Line.
func Classify(line string) Line {
	var l Line

	if m := pidPattern.FindStringSubmatch(line); m != nil {
		l.PID = events.ProcessID(m[1])
	}
	if m := tidPattern.FindStringSubmatch(line); m != nil {
		l.TID = events.ThreadID(m[1])
	}
	if m := namePattern.FindStringSubmatch(line); m != nil {
		l.Name = trimName(m[1])
	}

	if m := cpuPattern.FindStringSubmatch(line); m != nil {
		l.CPU = events.CpuID(m[1])

		if r := runningPattern.FindStringSubmatch(line); r != nil {
			l.Scheduled = &events.ThreadKey{
				PID: events.ProcessID(r[1]),
				TID: events.ThreadID(r[2]),
			}
		}
		if k := kernelPattern.FindStringSubmatch(line); k != nil {
			l.KernelCall = k[1]
		}
	}

	if m := threadRefPattern.FindStringSubmatch(line); m != nil {
		l.ThreadRef = &events.ThreadKey{
			PID: events.ProcessID(m[1]),
			TID: events.ThreadID(m[2]),
		}
	}

	if m := timestampPattern.FindStringSubmatch(line); m != nil {
		if ts, ok := parseTimestamp(m[1], m[2], m[3]); ok {
			l.Timestamp = &ts
		}
	}

	return l
}

// Empty reports whether no field was recognised on the line
func (l Line) Empty() bool {
	return l.PID == "" && l.TID == "" && l.Name == "" && l.CPU == "" &&
		l.ThreadRef == nil && l.Timestamp == nil
}

func trimName(raw string) string {
	if loc := nameEndPattern.FindStringIndex(raw); loc != nil {
		raw = raw[:loc[0]]
	}
	return strings.TrimSpace(raw)
}

// parseTimestamp converts the seconds, milliseconds and microseconds components to total microseconds
func parseTimestamp(sec, msec, usec string) (int64, bool) {
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return 0, false
	}
	ms, err := strconv.ParseInt(msec, 10, 64)
	if err != nil {
		return 0, false
	}
	us, err := strconv.ParseInt(usec, 10, 64)
	if err != nil {
		return 0, false
	}
	return s*1_000_000 + ms*1_000 + us, true
}
