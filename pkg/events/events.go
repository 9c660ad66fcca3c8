// events provides the value types shared by the trace parser and its consumers
package events

import (
	"strconv"
	"strings"
)

// EventKind identifies one of the synchronization markers tallied per thread
type EventKind string

const (
	EventReceive   EventKind = "THRECEIVE"
	EventCondVar   EventKind = "THCONDVAR"
	EventReply     EventKind = "THREPLY"
	EventSem       EventKind = "THSEM"
	EventMutex     EventKind = "THMUTEX"
	EventNanosleep EventKind = "THNANOSLEEP"
)

var eventKinds = [...]EventKind{
	EventReceive,
	EventCondVar,
	EventReply,
	EventSem,
	EventMutex,
	EventNanosleep,
}

// EventKinds lists every synchronization marker in report column order
func EventKinds() []EventKind {
	kinds := make([]EventKind, len(eventKinds))
	copy(kinds, eventKinds[:])
	return kinds
}

// Valid reports whether the kind is one of the known markers
func (k EventKind) Valid() bool {
	switch k {
	case EventReceive, EventCondVar, EventReply, EventSem, EventMutex, EventNanosleep:
		return true
	}
	return false
}

// Marker is the literal text that identifies this kind within a trace line
func (k EventKind) Marker() string {
	return string(k)
}

// ProcessID is a process identifier exactly as it appears in the trace
type ProcessID string

// ThreadID is a thread identifier exactly as it appears in the trace, only unique within its process
type ThreadID string

// CpuID is a CPU identifier exactly as it appears in the trace
type CpuID string

// UnnamedThread is the display name of threads for which no name line has been seen
const UnnamedThread = "Unnamed Thread"

// ThreadKey identifies a single thread across the whole trace
type ThreadKey struct {
	PID ProcessID
	TID ThreadID
}

func (k ThreadKey) String() string {
	return string(k.PID) + "/" + string(k.TID)
}

// CpuCall is a kernel call observed on a CPU, as recorded in a thread's event log
type CpuCall struct {
	CPU  CpuID
	Call string
}

// CompareIDs orders trace identifiers numerically when both are numeric, otherwise lexically.
// Numeric identifiers sort before non-numeric ones.
func CompareIDs(a, b string) int {
	an, aErr := strconv.ParseUint(a, 10, 64)
	bn, bErr := strconv.ParseUint(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		if an < bn {
			return -1
		}
		if an > bn {
			return 1
		}
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// CompareThreadKeys orders threads by process then thread identifier
func CompareThreadKeys(a, b ThreadKey) int {
	if c := CompareIDs(string(a.PID), string(b.PID)); c != 0 {
		return c
	}
	return CompareIDs(string(a.TID), string(b.TID))
}
