package batch_test

import (
	"errors"
	"io"
	"io/fs"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/omaskery/qnxtally/pkg/events"
	qio "github.com/omaskery/qnxtally/pkg/io"
	"github.com/omaskery/qnxtally/pkg/metrics"
	"github.com/omaskery/qnxtally/pkg/util/batch"
)

var errBrokenPipe = errors.New("broken pipe")

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errBrokenPipe
}

func (brokenReader) Close() error {
	return nil
}

type mockFiles map[string]string

func (m mockFiles) open(path string) (io.ReadCloser, error) {
	if path == "broken.txt" {
		return brokenReader{}, nil
	}
	text, ok := m[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(text)), nil
}

type mockClock struct {
	now time.Time
}

func (m *mockClock) tick() time.Time {
	m.now = m.now.Add(2 * time.Millisecond)
	return m.now
}

type observed struct {
	parsed map[string]time.Duration
	failed []string
}

func (o *observed) ObserveBundle(input string, _ *qio.Bundle, elapsed time.Duration) {
	o.parsed[input] = elapsed
}

func (o *observed) ObserveFailure(input string) {
	o.failed = append(o.failed, input)
}

var _ = Describe("Runner", func() {
	var files mockFiles
	var observer *observed
	var handled map[string]error
	var options []batch.RunnerOption
	var runner *batch.Runner

	BeforeEach(func() {
		files = mockFiles{
			"a.txt": "pid:1 name:proc-a\ntid:1 name:main THMUTEX\n",
			"b.txt": "pid:2 tid:1 name:worker\nCPU:0 THREAD :THRUNNING pid:2 tid:1\nCPU:0 KER_CALL :MsgSendv\n",
		}
		observer = &observed{parsed: map[string]time.Duration{}}
		handled = map[string]error{}
		options = nil
	})

	JustBeforeEach(func() {
		clock := &mockClock{}
		baseOptions := []batch.RunnerOption{
			batch.WithOpener(files.open),
			batch.WithClock(clock.tick),
			batch.WithObserver(observer),
			batch.WithErrorHandler(func(input string, err error) {
				handled[input] = err
			}),
		}
		runner = batch.NewRunner(append(baseOptions, options...)...)
	})

	When("every input is readable", func() {
		It("parses each input with its own parser, in order", func() {
			result := runner.Run([]string{"a.txt", "b.txt"})
			Expect(result.Failed()).To(BeFalse())
			Expect(result.Bundles).To(HaveLen(2))

			a, b := result.Bundles[0], result.Bundles[1]
			Expect(a.Name).To(Equal("a.txt"))
			Expect(b.Name).To(Equal("b.txt"))

			Expect(a.Bundle.Processes()).To(Equal([]events.ProcessID{"1"}))
			Expect(a.Bundle.EventCount(events.EventMutex, events.ThreadKey{PID: "1", TID: "1"})).To(Equal(1))
			Expect(a.Bundle.Cpus()).To(BeEmpty())

			Expect(b.Bundle.Processes()).To(Equal([]events.ProcessID{"2"}))
			Expect(b.Bundle.ThreadKernelCount(events.ThreadKey{PID: "2", TID: "1"}, "MsgSendv")).To(Equal(1))
		})

		It("reports timing to the observer", func() {
			runner.Run([]string{"a.txt"})
			Expect(observer.parsed).To(HaveKeyWithValue("a.txt", 2*time.Millisecond))
			Expect(observer.failed).To(BeEmpty())
		})

		It("names repeated inputs apart", func() {
			result := runner.Run([]string{"a.txt", "a.txt"})
			Expect(result.Bundles).To(HaveLen(2))
			Expect(result.Bundles[0].Name).To(Equal("a.txt"))
			Expect(result.Bundles[1].Name).To(Equal("a.txt#2"))
			Expect(result.Bundles[0].Bundle).ToNot(BeIdenticalTo(result.Bundles[1].Bundle))
		})
	})

	When("an input cannot be opened", func() {
		It("reports it and carries on with the rest", func() {
			result := runner.Run([]string{"missing.txt", "a.txt"})
			Expect(result.Failed()).To(BeTrue())
			Expect(result.Bundles).To(HaveLen(1))
			Expect(result.Bundles[0].Name).To(Equal("a.txt"))

			Expect(result.Failures).To(HaveLen(1))
			failure := result.Failures[0]
			Expect(failure.Input).To(Equal("missing.txt"))
			Expect(errors.Is(failure.Err, qio.ErrUnreadableInput)).To(BeTrue())
			Expect(errors.Is(failure.Err, fs.ErrNotExist)).To(BeTrue())

			Expect(handled).To(HaveKey("missing.txt"))
			Expect(observer.failed).To(Equal([]string{"missing.txt"}))
		})
	})

	When("an input fails part way through reading", func() {
		It("reports it as unreadable", func() {
			_, err := runner.RunOne("broken.txt")
			Expect(errors.Is(err, qio.ErrUnreadableInput)).To(BeTrue())
			Expect(errors.Is(err, errBrokenPipe)).To(BeTrue())
			Expect(handled).To(HaveKey("broken.txt"))
		})
	})

	When("parser options are given", func() {
		var parserLogged bool

		BeforeEach(func() {
			parserLogged = false
			options = []batch.RunnerOption{
				batch.WithParserOptions(func(p *qio.Parser) {
					parserLogged = true
				}),
			}
		})

		It("applies them to every parser", func() {
			runner.Run([]string{"a.txt"})
			Expect(parserLogged).To(BeTrue())
		})
	})

	When("a metrics recorder observes the run", func() {
		var recorder *metrics.Recorder

		BeforeEach(func() {
			recorder = metrics.NewRecorder()
			options = []batch.RunnerOption{batch.WithObserver(recorder)}
		})

		It("records parsed and failed inputs", func() {
			runner.Run([]string{"a.txt", "missing.txt", "b.txt"})
			expected := `
# HELP qnxtally_inputs_total Trace inputs processed, by input and result
# TYPE qnxtally_inputs_total counter
qnxtally_inputs_total{input="a.txt",result="parsed"} 1
qnxtally_inputs_total{input="b.txt",result="parsed"} 1
qnxtally_inputs_total{input="missing.txt",result="failed"} 1
`
			Expect(testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(expected),
				"qnxtally_inputs_total")).To(Succeed())
		})
	})
})
