package store_test

import (
	"errors"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"os"
	"path/filepath"

	qio "github.com/omaskery/qnxtally/pkg/io"
	"github.com/omaskery/qnxtally/pkg/store"
)

const sampleTrace = `pid:10 name:/sbin/foo
tid:1 name:worker CPU:0 THREAD :THRUNNING pid:10 tid:1 t:0.000.100us
pid:10 tid:1 THRECEIVE t:0.000.600us
CPU:0 KER_CALL :ker_read
CPU:0 KER_CALL :ker_read
pid:11`

var _ = Describe("SQLiteStore", func() {
	var dir string
	var dbPath string
	var s *store.SQLiteStore

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "qnxtally-store")
		Expect(err).To(Succeed())
		dbPath = filepath.Join(dir, "traces.db")

		s, err = store.NewSQLiteStore(dbPath, true)
		Expect(err).To(Succeed())
	})

	AfterEach(func() {
		Expect(s.Close()).To(Succeed())
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	queryInt := func(query string, args ...interface{}) int {
		rows, err := s.Query(query, args...)
		Expect(err).To(Succeed())
		defer rows.Close()
		Expect(rows.Next()).To(BeTrue())
		var n int
		Expect(rows.Scan(&n)).To(Succeed())
		return n
	}

	When("a bundle is saved", func() {
		BeforeEach(func() {
			Expect(s.SaveBundle("trace-a.txt", qio.ParseString(sampleTrace))).To(Succeed())
		})

		It("records the trace", func() {
			Expect(s.TraceNames()).To(Equal([]string{"trace-a.txt"}))
		})

		It("stores every table", func() {
			Expect(queryInt("SELECT COUNT(*) FROM processes")).To(Equal(2))
			Expect(queryInt("SELECT COUNT(*) FROM processes WHERE name IS NULL")).To(Equal(1))
			Expect(queryInt("SELECT COUNT(*) FROM threads")).To(Equal(1))
			Expect(queryInt("SELECT count FROM event_counts WHERE kind = ?", "THRECEIVE")).To(Equal(1))
			Expect(queryInt("SELECT count FROM cpu_kernel_counts WHERE call = ? AND cpu = ?", "ker_read", "0")).To(Equal(2))
			Expect(queryInt("SELECT count FROM thread_kernel_counts WHERE pid = ? AND tid = ?", "10", "1")).To(Equal(2))
			Expect(queryInt("SELECT COUNT(*) FROM thread_cpu_events")).To(Equal(2))
			Expect(queryInt("SELECT total_us FROM running_time WHERE pid = ? AND tid = ?", "10", "1")).To(Equal(500))
		})

		It("refuses the same trace name twice", func() {
			err := s.SaveBundle("trace-a.txt", qio.ParseString(""))
			Expect(errors.Is(err, store.ErrDuplicateTrace)).To(BeTrue())
			Expect(s.TraceNames()).To(HaveLen(1))
		})

		It("keeps traces separate", func() {
			Expect(s.SaveBundle("trace-b.txt", qio.ParseString("pid:3 tid:4 THSEM"))).To(Succeed())
			Expect(s.TraceNames()).To(Equal([]string{"trace-a.txt", "trace-b.txt"}))
			Expect(queryInt("SELECT COUNT(*) FROM threads t JOIN traces r ON r.id = t.trace_id WHERE r.name = ?", "trace-b.txt")).To(Equal(1))
		})
	})
})
