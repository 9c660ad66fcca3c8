package io_test

import (
	"github.com/omaskery/qnxtally/pkg/events"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/omaskery/qnxtally/pkg/io"
)

var _ = Describe("Classify", func() {
	var line string
	var l io.Line

	JustBeforeEach(func() {
		l = io.Classify(line)
	})

	When("the line carries no known field", func() {
		BeforeEach(func() {
			line = "some unrelated text: 12"
		})

		It("yields an empty line", func() {
			Expect(l.Empty()).To(BeTrue())
			Expect(l.Timestamp).To(BeNil())
			Expect(l.Scheduled).To(BeNil())
		})
	})

	When("the line is a scheduling marker", func() {
		BeforeEach(func() {
			line = "t:0.000.100us CPU:3 THREAD  :THRUNNING   pid:10 tid:2"
		})

		It("names the scheduled thread and cpu", func() {
			Expect(l.CPU).To(Equal(events.CpuID("3")))
			Expect(l.Scheduled).To(Equal(&events.ThreadKey{PID: "10", TID: "2"}))
			Expect(l.PID).To(Equal(events.ProcessID("10")))
			Expect(l.TID).To(Equal(events.ThreadID("2")))
			Expect(*l.Timestamp).To(BeNumerically("==", 100))
		})
	})

	When("a running marker has no cpu", func() {
		BeforeEach(func() {
			line = "THREAD :THRUNNING pid:10 tid:2"
		})

		It("is not a scheduling marker", func() {
			Expect(l.Scheduled).To(BeNil())
			Expect(l.ThreadRef).To(Equal(&events.ThreadKey{PID: "10", TID: "2"}))
		})
	})

	When("the line is a kernel call", func() {
		BeforeEach(func() {
			line = "t:1.002.003us CPU:1 KER_CALL :MsgSendv/11 scoid:0x40000002"
		})

		It("extracts the call name up to the first space", func() {
			Expect(l.CPU).To(Equal(events.CpuID("1")))
			Expect(l.KernelCall).To(Equal("MsgSendv/11"))
			Expect(*l.Timestamp).To(BeNumerically("==", 1002003))
		})
	})

	When("a kernel call marker has no cpu", func() {
		BeforeEach(func() {
			line = "KER_CALL :MsgSendv"
		})

		It("drops the call", func() {
			Expect(l.KernelCall).To(BeEmpty())
		})
	})

	When("a name is followed by other fields", func() {
		BeforeEach(func() {
			line = "tid:1 name:worker CPU:0 THREAD :THRUNNING pid:10 tid:1 t:0.000.100us"
		})

		It("stops the name at the next field", func() {
			Expect(l.Name).To(Equal("worker"))
		})
	})

	When("a name contains spaces", func() {
		BeforeEach(func() {
			line = "pid:4 name:  io-pkt v6 driver  "
		})

		It("keeps the whole trimmed remainder", func() {
			Expect(l.Name).To(Equal("io-pkt v6 driver"))
		})
	})
})
