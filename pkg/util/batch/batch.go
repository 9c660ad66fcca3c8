// batch parses a list of trace files, one isolated parser per input, without letting a bad input stop the rest
package batch

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"

	qio "github.com/omaskery/qnxtally/pkg/io"
)

type RunnerOption = func(r *Runner)

type ErrorHandler = func(input string, err error)

type ClockFn = func() time.Time

type OpenFn = func(path string) (io.ReadCloser, error)

// Observer is told about the outcome of every input, metrics.Recorder satisfies it
type Observer interface {
	ObserveBundle(input string, b *qio.Bundle, elapsed time.Duration)
	ObserveFailure(input string)
}

func WithLogger(logger logr.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithErrorHandler(handler ErrorHandler) RunnerOption {
	return func(r *Runner) {
		r.errHandler = handler
	}
}

func WithClock(f ClockFn) RunnerOption {
	return func(r *Runner) {
		r.clock = f
	}
}

func WithOpener(f OpenFn) RunnerOption {
	return func(r *Runner) {
		r.open = f
	}
}

func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) {
		r.observer = o
	}
}

// WithParserOptions are applied to the parser of every input, after the runner's own logger
func WithParserOptions(options ...qio.ParserOption) RunnerOption {
	return func(r *Runner) {
		r.parserOptions = append(r.parserOptions, options...)
	}
}

type Runner struct {
	logger        logr.Logger
	errHandler    ErrorHandler
	clock         ClockFn
	open          OpenFn
	observer      Observer
	parserOptions []qio.ParserOption
}

// Failure is an input that could not be parsed
type Failure struct {
	Input string
	Err   error
}

// Result holds the bundles of every parsed input, in input order, and the inputs that failed
type Result struct {
	Bundles  []qio.NamedBundle
	Failures []Failure
}

func (r Result) Failed() bool {
	return len(r.Failures) > 0
}

func NewRunner(options ...RunnerOption) *Runner {
	r := &Runner{
		logger: logr.Discard(),
		clock:  time.Now,
		open:   openFile,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Run parses every input in order. Inputs sharing a name are parsed separately and named apart in the result.
func (r *Runner) Run(inputs []string) Result {
	var result Result
	seen := map[string]int{}

	for _, input := range inputs {
		b, err := r.RunOne(input)
		if err != nil {
			result.Failures = append(result.Failures, Failure{Input: input, Err: err})
			continue
		}

		name := input
		seen[input]++
		if n := seen[input]; n > 1 {
			name = fmt.Sprintf("%s#%d", input, n)
			r.logger.Info("input given more than once, renaming", "input", input, "name", name)
		}
		result.Bundles = append(result.Bundles, qio.NamedBundle{Name: name, Bundle: b})
	}

	r.logger.Info("finished parsing traces", "parsed", len(result.Bundles), "failed", len(result.Failures))
	return result
}

// RunOne parses a single input with a fresh parser
func (r *Runner) RunOne(input string) (*qio.Bundle, error) {
	start := r.clock()
	logger := r.logger.WithValues("input", input)
	logger.Info("parsing trace")

	f, err := r.open(input)
	if err != nil {
		err = fmt.Errorf("failed to open '%s': %w: %w", input, qio.ErrUnreadableInput, err)
		r.handleError(input, "failed to open trace", err)
		return nil, err
	}
	defer func() { _ = f.Close() }()

	options := append([]qio.ParserOption{qio.WithLogger(logger)}, r.parserOptions...)
	b, err := qio.Parse(f, options...)
	if err != nil {
		err = fmt.Errorf("failed to parse '%s': %w", input, err)
		r.handleError(input, "failed to parse trace", err)
		return nil, err
	}

	elapsed := r.clock().Sub(start)
	s := b.Stats()
	logger.V(1).Info("parsed trace",
		"lines", s.Lines,
		"unrecognised", s.UnrecognisedLines,
		"threads", len(b.Threads()),
		"cpus", len(b.Cpus()),
		"kernelCalls", s.KernelCalls,
		"unattributed", s.UnattributedKernelCalls,
		"unmatchedStops", s.UnmatchedStops,
		"negativeIntervals", s.NegativeIntervals,
		"elapsed", elapsed.String())

	if r.observer != nil {
		r.observer.ObserveBundle(input, b, elapsed)
	}
	return b, nil
}

func (r *Runner) handleError(input, context string, err error) {
	r.logger.Error(err, context, "input", input)
	if r.observer != nil {
		r.observer.ObserveFailure(input)
	}
	if r.errHandler != nil {
		(r.errHandler)(input, err)
	}
}

// openFile treats "-" as standard input
func openFile(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}
