package io

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-logr/logr"

	"github.com/omaskery/qnxtally/pkg/events"
)

var (
	ErrUnreadableInput = errors.New("trace input could not be read")
)

type ParserOption = func(p *Parser)

// WithLogger reports attribution approximations at verbosity 2
func WithLogger(logger logr.Logger) ParserOption {
	return func(p *Parser) {
		p.logger = logger
	}
}

// Parser folds trace lines, in order, into a Bundle. A Parser holds the state of exactly one trace
// and must not be reused after Finish.
type Parser struct {
	logger logr.Logger
	bundle *Bundle

	currentPID events.ProcessID
	currentTID events.ThreadID

	// last thread marked running on each CPU
	running map[events.CpuID]events.ThreadKey
	// start of each thread's open running interval
	openIntervals map[events.ThreadKey]int64
}

func NewParser(options ...ParserOption) *Parser {
	p := &Parser{
		logger:        logr.Discard(),
		bundle:        newBundle(),
		running:       map[events.CpuID]events.ThreadKey{},
		openIntervals: map[events.ThreadKey]int64{},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Parse reads the whole trace from r and folds it into a Bundle
func Parse(r io.Reader, options ...ParserOption) (*Bundle, error) {
	text, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w: %w", ErrUnreadableInput, err)
	}
	return ParseString(string(text), options...), nil
}

// ParseString folds every line of text into a Bundle
func ParseString(text string, options ...ParserOption) *Bundle {
	p := NewParser(options...)
	for _, line := range strings.Split(text, "\n") {
		p.Feed(line)
	}
	return p.Finish()
}

// Feed consumes the next line of the trace
func (p *Parser) Feed(line string) {
	l := Classify(line)
	p.bundle.stats.Lines++
	if l.Empty() {
		p.bundle.stats.UnrecognisedLines++
	}

	p.trackContext(l)
	p.tallyEvents(line)
	p.trackScheduling(l)
	p.attributeKernelCall(l)
	p.accumulateRunningTime(l)
}

// Finish derives the values that depend on the whole trace and returns the result
func (p *Parser) Finish() *Bundle {
	p.bundle.computeCpuUsage()
	return p.bundle
}

// trackContext moves the process/thread cursor. Identifiers persist across lines until replaced, and a new
// process id always clears the thread.
func (p *Parser) trackContext(l Line) {
	if l.PID != "" {
		p.currentPID = l.PID
		p.currentTID = ""
		p.bundle.ensureProcess(l.PID)
	}
	if p.currentPID == "" {
		return
	}

	if l.TID != "" {
		p.currentTID = l.TID
		p.bundle.ensureThread(p.currentThread())
	}

	if l.Name != "" {
		if p.currentTID == "" {
			p.bundle.setProcessName(p.currentPID, l.Name)
		} else {
			p.bundle.setThreadName(p.currentThread(), l.Name)
		}
	}
}

// tallyEvents counts each synchronization marker at most once per line, against the current thread
func (p *Parser) tallyEvents(line string) {
	if p.currentPID == "" || p.currentTID == "" {
		return
	}
	thread := p.currentThread()
	for _, kind := range events.EventKinds() {
		if strings.Contains(line, kind.Marker()) {
			p.bundle.eventCounts[eventCountKey{kind: kind, thread: thread}]++
		}
	}
}

func (p *Parser) trackScheduling(l Line) {
	if l.CPU == "" {
		return
	}
	p.bundle.cpus[l.CPU] = struct{}{}

	if l.Scheduled != nil {
		p.bundle.ensureThread(*l.Scheduled)
		p.running[l.CPU] = *l.Scheduled
		p.bundle.stats.SchedulingMarkers++
	}
}

func (p *Parser) attributeKernelCall(l Line) {
	if l.KernelCall == "" || l.CPU == "" {
		return
	}
	p.bundle.stats.KernelCalls++
	p.bundle.cpuKernelCounts[kernelCallKey{call: l.KernelCall, cpu: l.CPU}]++

	thread, ok := p.running[l.CPU]
	if !ok {
		p.bundle.stats.UnattributedKernelCalls++
		p.logger.V(2).Info("kernel call on cpu with no running thread", "cpu", l.CPU, "call", l.KernelCall)
		return
	}
	p.bundle.threadKernelCounts[threadKernelKey{thread: thread, call: l.KernelCall}]++
	p.bundle.threadCpuEvents[thread] = append(p.bundle.threadCpuEvents[thread], events.CpuCall{
		CPU:  l.CPU,
		Call: l.KernelCall,
	})
}

// accumulateRunningTime opens an interval when a thread is scheduled and closes it on the next timestamped
// line naming that thread
func (p *Parser) accumulateRunningTime(l Line) {
	if l.Timestamp == nil {
		return
	}
	ts := *l.Timestamp

	if l.Scheduled != nil {
		p.openIntervals[*l.Scheduled] = ts
		return
	}
	if l.ThreadRef == nil {
		return
	}

	thread := *l.ThreadRef
	start, ok := p.openIntervals[thread]
	if !ok {
		p.bundle.stats.UnmatchedStops++
		p.logger.V(2).Info("timestamped line for thread with no open interval", "thread", thread.String())
		return
	}
	delete(p.openIntervals, thread)

	elapsed := ts - start
	if elapsed < 0 {
		p.bundle.stats.NegativeIntervals++
		p.logger.V(2).Info("discarding interval that ends before it starts",
			"thread", thread.String(), "start", start, "end", ts)
		return
	}
	p.bundle.addRunningTime(thread, elapsed)
	p.bundle.stats.ClosedIntervals++
}

func (p *Parser) currentThread() events.ThreadKey {
	return events.ThreadKey{PID: p.currentPID, TID: p.currentTID}
}
