package deadlock

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/rados/process"
	"github.com/sarchlab/rados/resource"
)

var _ = Describe("Detector", func() {
	var (
		mockCtrl *gomock.Controller
		graph    *MockWaitGraph
		detector *Detector
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		graph = NewMockWaitGraph(mockCtrl)
		detector = NewDetector(graph)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should not find a cycle if the holder waits for nothing", func() {
		graph.EXPECT().Requested(process.PID(2)).Return([]resource.ID{100})
		graph.EXPECT().Holders(resource.ID(100)).Return([]process.PID{1})
		graph.EXPECT().Requested(process.PID(1)).Return(nil)

		Expect(detector.Detect(2, 100)).To(BeFalse())
	})

	It("should find a cycle closed by the hypothetical request", func() {
		graph.EXPECT().Requested(process.PID(2)).Return(nil)
		graph.EXPECT().Holders(resource.ID(1)).Return([]process.PID{1})
		graph.EXPECT().Requested(process.PID(1)).Return([]resource.ID{2})
		graph.EXPECT().Holders(resource.ID(2)).Return([]process.PID{2})

		cycle, found := detector.FindCycle(2, 1)

		Expect(found).To(BeTrue())
		Expect(cycle).To(Equal([]process.PID{2, 1}))
	})

	It("should use the real requests for every other process", func() {
		graph.EXPECT().Requested(process.PID(1)).Return(nil)
		graph.EXPECT().Holders(resource.ID(7)).Return([]process.PID{2})
		graph.EXPECT().Requested(process.PID(2)).Return(nil)

		Expect(detector.Detect(1, 7)).To(BeFalse())
	})

	It("should not duplicate a resource already requested", func() {
		graph.EXPECT().Requested(process.PID(1)).Return([]resource.ID{7})
		graph.EXPECT().Holders(resource.ID(7)).Return(nil).Times(1)

		Expect(detector.Detect(1, 7)).To(BeFalse())
	})

	It("should not report a cycle for an already explored branch", func() {
		// 1 waits for 2 and 3, both of which wait for 4.
		graph.EXPECT().Requested(process.PID(1)).Return([]resource.ID{20, 30})
		graph.EXPECT().Holders(resource.ID(20)).Return([]process.PID{2})
		graph.EXPECT().Holders(resource.ID(30)).Return([]process.PID{3})
		graph.EXPECT().Requested(process.PID(2)).Return([]resource.ID{40})
		graph.EXPECT().Requested(process.PID(3)).Return([]resource.ID{40})
		graph.EXPECT().Holders(resource.ID(40)).Return([]process.PID{4}).Times(2)
		graph.EXPECT().Requested(process.PID(4)).Return(nil)

		Expect(detector.Detect(1, 30)).To(BeFalse())
	})

	It("should not modify the slice returned by the graph", func() {
		requests := make([]resource.ID, 1, 4)
		requests[0] = 5

		graph.EXPECT().Requested(process.PID(1)).Return(requests)
		graph.EXPECT().Holders(gomock.Any()).Return(nil).AnyTimes()

		detector.Detect(1, 6)

		Expect(requests[:2]).To(Equal([]resource.ID{5, 0}))
	})
})

var _ = Describe("Detector over a resource graph", func() {
	var (
		table    *process.Table
		graph    *resource.Graph
		detector *Detector
	)

	create := func(name string) process.PID {
		pid := table.Create(name)
		graph.AddProcess(pid)

		return pid
	}

	BeforeEach(func() {
		table = process.NewTable()
		graph = resource.NewGraph(table)
		detector = NewDetector(graph)
	})

	It("should detect a two-process cycle", func() {
		p1 := create("p1")
		p2 := create("p2")
		graph.CommitHeld(p1, 1)
		graph.CommitHeld(p2, 2)
		graph.Request(p1, 2, p2)

		Expect(detector.Detect(p2, 1)).To(BeTrue())
		Expect(table.State(p1)).To(Equal(process.Blocked))
		Expect(table.State(p2)).To(Equal(process.Blocked))
	})

	It("should detect a cycle further down the path", func() {
		p1 := create("p1")
		p2 := create("p2")
		p3 := create("p3")
		graph.CommitHeld(p1, 1)
		graph.CommitHeld(p2, 2)
		graph.CommitHeld(p3, 3)
		graph.Request(p2, 3, process.NoPID)
		graph.Request(p3, 2, process.NoPID)

		cycle, found := detector.FindCycle(p1, 2)

		Expect(found).To(BeTrue())
		Expect(cycle).To(Equal([]process.PID{p2, p3}))
	})

	It("should not find a cycle in a chain", func() {
		p1 := create("p1")
		p2 := create("p2")
		p3 := create("p3")
		graph.CommitHeld(p2, 2)
		graph.CommitHeld(p3, 3)
		graph.Request(p2, 3, process.NoPID)

		Expect(detector.Detect(p1, 2)).To(BeFalse())
	})

	It("should follow long chains without recursion", func() {
		const n = 20000

		pids := make([]process.PID, n)
		for i := range pids {
			pids[i] = create("p")
			graph.CommitHeld(pids[i], resource.ID(i))
		}

		for i := 1; i < n; i++ {
			graph.Request(pids[i], resource.ID(i-1), process.NoPID)
		}

		Expect(detector.Detect(pids[0], resource.ID(n-1))).To(BeTrue())
		Expect(detector.Detect(pids[n-1], resource.ID(n))).To(BeFalse())
	})
})
