package io_test

import (
	"encoding/json"
	"fmt"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"strings"

	qio "github.com/omaskery/qnxtally/pkg/io"
)

var _ = Describe("WriteJsonObject", func() {
	var writer strings.Builder
	var bundle *qio.Bundle
	var err error
	var output string

	BeforeEach(func() {
		writer = strings.Builder{}
		output = ""
		err = nil
	})

	JustBeforeEach(func() {
		err = qio.WriteJsonObject(&writer, bundle)
		output = writer.String()
	})

	When("the trace is empty", func() {
		BeforeEach(func() {
			bundle = qio.ParseString("")
		})

		It("still lists every event kind", func() {
			Expect(err).To(Succeed())
			Expect(output).To(MatchJSON(mustJson(map[string]interface{}{
				"processes": map[string]interface{}{},
				"threads":   map[string]interface{}{},
				"eventCounts": map[string]interface{}{
					"THRECEIVE":   map[string]interface{}{},
					"THCONDVAR":   map[string]interface{}{},
					"THREPLY":     map[string]interface{}{},
					"THSEM":       map[string]interface{}{},
					"THMUTEX":     map[string]interface{}{},
					"THNANOSLEEP": map[string]interface{}{},
				},
				"cpuEvents":          map[string]interface{}{},
				"threadCpuEvents":    map[string]interface{}{},
				"threadKernelCounts": map[string]interface{}{},
				"threadRunningTime":  map[string]interface{}{},
				"cpus":               []interface{}{},
				"stats":              statsJson(1, 1, 0, 0, 0, 0, 0),
			})))
		})
	})

	When("the trace is the reference example", func() {
		BeforeEach(func() {
			bundle = qio.ParseString(strings.Join([]string{
				"pid:10 name:/sbin/foo",
				"tid:1 name:worker CPU:0 THREAD :THRUNNING pid:10 tid:1 t:0.000.100us",
				"pid:10 tid:1 THRECEIVE t:0.000.600us",
				"CPU:0 KER_CALL :ker_read",
			}, "\n"))
		})

		It("writes every table", func() {
			Expect(err).To(Succeed())
			Expect(output).To(MatchJSON(mustJson(map[string]interface{}{
				"processes": map[string]interface{}{"10": "/sbin/foo"},
				"threads": map[string]interface{}{
					"10": map[string]interface{}{"1": "worker"},
				},
				"eventCounts": map[string]interface{}{
					"THRECEIVE": map[string]interface{}{
						"10": map[string]interface{}{"1": 1},
					},
					"THCONDVAR":   map[string]interface{}{},
					"THREPLY":     map[string]interface{}{},
					"THSEM":       map[string]interface{}{},
					"THMUTEX":     map[string]interface{}{},
					"THNANOSLEEP": map[string]interface{}{},
				},
				"cpuEvents": map[string]interface{}{
					"ker_read": map[string]interface{}{"0": 1},
				},
				"threadCpuEvents": map[string]interface{}{
					"10": map[string]interface{}{
						"1": []interface{}{[]interface{}{"0", "ker_read"}},
					},
				},
				"threadKernelCounts": map[string]interface{}{
					"10": map[string]interface{}{
						"1": map[string]interface{}{"ker_read": 1},
					},
				},
				"threadRunningTime": map[string]interface{}{
					"10": map[string]interface{}{
						"1": map[string]interface{}{"total": 500, "msec": 0.5, "cpu_usage": 0.05},
					},
				},
				"cpus":  []interface{}{"0"},
				"stats": statsJson(4, 0, 1, 1, 0, 1, 0),
			})))
		})
	})
})

var _ = Describe("WriteJsonObjects", func() {
	It("keys each bundle by its input name", func() {
		var writer strings.Builder
		err := qio.WriteJsonObjects(&writer, []qio.NamedBundle{
			{Name: "a.txt", Bundle: qio.ParseString("pid:1 name:alpha")},
			{Name: "b.txt", Bundle: qio.ParseString("pid:2 name:beta")},
		})
		Expect(err).To(Succeed())

		var decoded map[string]map[string]interface{}
		Expect(json.Unmarshal([]byte(writer.String()), &decoded)).To(Succeed())
		Expect(decoded).To(HaveLen(2))
		Expect(decoded["a.txt"]["processes"]).To(Equal(map[string]interface{}{"1": "alpha"}))
		Expect(decoded["b.txt"]["processes"]).To(Equal(map[string]interface{}{"2": "beta"}))
	})

	It("rejects duplicate input names", func() {
		var writer strings.Builder
		err := qio.WriteJsonObjects(&writer, []qio.NamedBundle{
			{Name: "a.txt", Bundle: qio.ParseString("")},
			{Name: "a.txt", Bundle: qio.ParseString("")},
		})
		Expect(err).To(HaveOccurred())
		Expect(writer.String()).To(BeEmpty())
	})
})

func statsJson(lines, unrecognised, scheduling, kernelCalls, unattributed, closed, unmatched int) map[string]interface{} {
	return map[string]interface{}{
		"lines":                   lines,
		"unrecognisedLines":       unrecognised,
		"schedulingMarkers":       scheduling,
		"kernelCalls":             kernelCalls,
		"unattributedKernelCalls": unattributed,
		"closedIntervals":         closed,
		"unmatchedStops":          unmatched,
		"negativeIntervals":       0,
	}
}

func mustJson(j map[string]interface{}) string {
	data, err := json.Marshal(j)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal test json: %v", err))
	}
	return string(data)
}
