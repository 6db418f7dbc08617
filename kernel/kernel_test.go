package kernel

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/rados/memory"
	"github.com/sarchlab/rados/process"
	"github.com/sarchlab/rados/resource"
	"github.com/sarchlab/rados/scheduler"
	"github.com/sarchlab/rados/sim/hooking"
)

type positionRecorder struct {
	lock      sync.Mutex
	positions []string
}

func (r *positionRecorder) Func(ctx hooking.HookCtx) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.positions = append(r.positions, ctx.Pos.Name)
}

func (r *positionRecorder) recorded() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	return append([]string(nil), r.positions...)
}

var _ = Describe("Kernel", func() {
	var (
		mockCtrl *gomock.Controller
		clock    *MockClock
		k        *Kernel
	)

	stateOf := func(pid process.PID) process.State {
		p, found := k.Process(pid)
		Expect(found).To(BeTrue())

		return p.State
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		clock = NewMockClock(mockCtrl)
		clock.EXPECT().Now().Return(time.Time{}).AnyTimes()

		var err error
		k, err = MakeBuilder().
			WithMemorySize(100).
			WithPageSize(10).
			WithQuantum(time.Second).
			WithClock(clock).
			Build()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should reject an uneven page size", func() {
		_, err := MakeBuilder().WithMemorySize(100).WithPageSize(15).Build()

		Expect(errors.Is(err, memory.ErrInvalidGeometry)).To(BeTrue())
	})

	It("should report the geometry", func() {
		Expect(k.Geometry()).To(Equal(Geometry{
			Size: 100, PageSize: 10, NumPages: 10,
		}))
	})

	It("should create processes", func() {
		Expect(k.CreateProcess("editor")).To(Equal(process.PID(1)))
		Expect(k.CreateProcess("shell")).To(Equal(process.PID(2)))

		Expect(k.ListProcesses()).To(Equal([]process.Process{
			{PID: 1, Name: "editor", State: process.Ready, Active: true},
			{PID: 2, Name: "shell", State: process.Ready, Active: true},
		}))
	})

	Context("when a resource is contested", func() {
		var p1, p2 process.PID

		BeforeEach(func() {
			p1 = k.CreateProcess("P1")
		})

		It("should grant free memory", func() {
			result := k.AllocateMemory(p1, 25, 100)

			Expect(result.Outcome).To(Equal(Granted))
			Expect(result.Pages).To(Equal([]int{0, 1, 2}))

			pages := k.MemorySnapshot()
			for i := 0; i < 3; i++ {
				Expect(pages[i].Owner).To(Equal(p1))
				Expect(pages[i].Resource).To(Equal(resource.ID(100)))
			}
			Expect(pages[3].Free).To(BeTrue())
			Expect(k.WaitGraph().Rows[0].Held).To(Equal([]resource.ID{100}))
		})

		It("should make the second process wait", func() {
			k.AllocateMemory(p1, 25, 100)
			p2 = k.CreateProcess("P2")

			result := k.AllocateMemory(p2, 5, 100)

			Expect(result).To(Equal(AllocResult{Outcome: Busy, Holder: p1}))
			Expect(stateOf(p2)).To(Equal(process.Blocked))

			Expect(k.RequestResource(p2, 100, p1)).To(Succeed())
			Expect(stateOf(p2)).To(Equal(process.Blocked))
			Expect(stateOf(p1)).To(Equal(process.Ready))
			Expect(k.DetectDeadlock(p2, 100)).To(BeFalse())
			Expect(k.WaitGraph().Edges).To(Equal([]resource.Edge{
				{From: p2, To: p1, Resource: 100},
			}))
		})

		It("should notify but not grant on free", func() {
			k.AllocateMemory(p1, 25, 100)
			p2 = k.CreateProcess("P2")
			k.AllocateMemory(p2, 5, 100)

			freed := k.FreeMemory(p1)

			Expect(freed).To(Equal([]resource.ID{100}))
			Expect(stateOf(p2)).To(Equal(process.Ready))
			_, held := k.OwnerOf(100)
			Expect(held).To(BeFalse())
			for _, page := range k.MemorySnapshot()[:3] {
				Expect(page.Free).To(BeTrue())
			}
			Expect(k.WaitGraph().Rows[1].Held).To(BeEmpty())
			Expect(k.WaitGraph().Rows[1].Requested).To(Equal([]resource.ID{100}))
		})

		It("should grant the resource when the waiter retries", func() {
			k.AllocateMemory(p1, 25, 100)
			p2 = k.CreateProcess("P2")
			k.AllocateMemory(p2, 5, 100)
			k.FreeMemory(p1)

			result := k.AllocateMemory(p2, 5, 100)

			Expect(result.Outcome).To(Equal(Granted))
			Expect(result.Pages).To(Equal([]int{0}))
			Expect(k.WaitGraph().Rows[1].Requested).To(BeEmpty())
		})

		It("should drop the request of a waiter that runs out of memory", func() {
			k.AllocateMemory(p1, 25, 100)
			p2 = k.CreateProcess("P2")
			k.AllocateMemory(p2, 5, 100)
			k.FreeMemory(p1)

			result := k.AllocateMemory(p2, 500, 100)

			Expect(result.Outcome).To(Equal(OutOfMemory))
			Expect(k.WaitGraph().Rows[1].Requested).To(BeEmpty())
			Expect(k.Memory().Units).To(HaveEach(process.NoPID))
		})
	})

	Context("when processes wait for each other", func() {
		var p1, p2 process.PID

		BeforeEach(func() {
			p1 = k.CreateProcess("P1")
			p2 = k.CreateProcess("P2")
			Expect(k.AllocateMemory(p1, 10, 1).Outcome).To(Equal(Granted))
			Expect(k.AllocateMemory(p2, 10, 2).Outcome).To(Equal(Granted))
		})

		It("should deny the request that closes the cycle", func() {
			Expect(k.RequestResource(p1, 2, p2)).To(Succeed())

			result := k.AllocateMemory(p2, 10, 1)

			Expect(result.Outcome).To(Equal(DeniedDeadlockRisk))
			Expect(result.Holder).To(Equal(p1))
			Expect(result.Cycle).To(Equal([]process.PID{p2, p1}))
			Expect(k.DetectDeadlock(p2, 1)).To(BeTrue())
			Expect(stateOf(p1)).To(Equal(process.Blocked))
			Expect(stateOf(p2)).To(Equal(process.Blocked))

			owner, _ := k.OwnerOf(1)
			Expect(owner).To(Equal(p1))
		})

		It("should detect the cycle on the first contested allocation", func() {
			result := k.AllocateMemory(p1, 10, 2)

			Expect(result.Outcome).To(Equal(DeniedDeadlockRisk))
			Expect(result.Cycle).To(Equal([]process.PID{p1, p2}))
		})

		It("should clear the deadlock when a process frees its memory", func() {
			k.AllocateMemory(p1, 10, 2)

			k.FreeMemory(p2)

			Expect(k.DetectDeadlock(p1, 2)).To(BeFalse())
			Expect(stateOf(p1)).To(Equal(process.Ready))
			Expect(stateOf(p2)).To(Equal(process.Ready))
			Expect(k.AllocateMemory(p1, 10, 2).Outcome).To(Equal(Granted))
		})
	})

	It("should report out of memory for sizes beyond any page count", func() {
		p1 := k.CreateProcess("P1")

		for _, size := range []int{math.MaxInt, math.MaxInt - 5, 101} {
			Expect(k.AllocateMemory(p1, size, 1).Outcome).To(Equal(OutOfMemory))
		}

		Expect(k.Memory().Units).To(HaveEach(process.NoPID))
		Expect(k.AllocateMemory(p1, 100, 1).Outcome).To(Equal(Granted))
	})

	It("should deny unknown processes", func() {
		Expect(k.AllocateMemory(3, 10, 1).Outcome).To(Equal(DeniedNoSuchPid))

		err := k.RequestResource(3, 1, 1)
		Expect(errors.Is(err, ErrNoSuchProcess)).To(BeTrue())

		Expect(k.DetectDeadlock(3, 1)).To(BeFalse())
		Expect(k.FreeMemory(3)).To(BeEmpty())
	})

	It("should run ready processes only", func() {
		p1 := k.CreateProcess("P1")
		p2 := k.CreateProcess("P2")
		p3 := k.CreateProcess("P3")
		k.AllocateMemory(p1, 10, 1)
		k.AllocateMemory(p3, 10, 1)

		clock.EXPECT().Sleep(time.Second).Times(2)

		events := k.RunSchedulerCycle()

		Expect(events).To(HaveLen(2))
		Expect(events[0].PID).To(Equal(p1))
		Expect(events[1].PID).To(Equal(p2))
		Expect(stateOf(p3)).To(Equal(process.Blocked))
	})

	It("should hold the gate for the whole cycle", func() {
		k.CreateProcess("P1")

		sleeping := make(chan struct{})
		wake := make(chan struct{})
		clock.EXPECT().Sleep(time.Second).Do(func(time.Duration) {
			close(sleeping)
			<-wake
		})

		done := k.RunSchedulerCycleAsync()
		Eventually(sleeping).Should(BeClosed())

		created := make(chan process.PID, 1)
		go func() {
			created <- k.CreateProcess("P2")
		}()

		Consistently(created, 50*time.Millisecond).ShouldNot(Receive())

		close(wake)

		Eventually(done).Should(Receive(HaveLen(1)))
		Eventually(created).Should(Receive(Equal(process.PID(2))))
	})

	It("should serialize concurrent callers", func() {
		var wg sync.WaitGroup

		pids := make(chan process.PID, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)

			go func() {
				defer GinkgoRecover()
				defer wg.Done()

				pid := k.CreateProcess("worker")
				pids <- pid

				k.AllocateMemory(pid, 10, resource.ID(int(pid)%4))
				k.FreeMemory(pid)
			}()
		}

		wg.Wait()
		close(pids)

		seen := make(map[process.PID]bool)
		for pid := range pids {
			Expect(seen[pid]).To(BeFalse())
			seen[pid] = true
		}

		Expect(seen).To(HaveLen(20))
		Expect(k.Memory().Problem).To(BeEmpty())
		Expect(k.Memory().Units).To(HaveEach(process.NoPID))
	})

	It("should report every view in one state", func() {
		p1 := k.CreateProcess("P1")
		p2 := k.CreateProcess("P2")
		k.AllocateMemory(p1, 25, 100)
		k.AllocateMemory(p2, 5, 100)

		s := k.State()

		Expect(s.Geometry).To(Equal(Geometry{Size: 100, PageSize: 10, NumPages: 10}))
		Expect(s.Quantum).To(Equal(time.Second))
		Expect(s.Processes).To(HaveLen(2))
		Expect(s.Processes[1].State).To(Equal(process.Blocked))
		Expect(s.Memory.FreePages).To(Equal(7))
		Expect(s.Memory.Bindings).To(Equal([]Binding{
			{Resource: 100, Owner: p1, Pages: []int{0, 1, 2}},
		}))
		Expect(s.Memory.Problem).To(BeEmpty())
		Expect(s.Memory.Units[:30]).To(HaveEach(p1))
		Expect(s.WaitGraph.Edges).To(Equal([]resource.Edge{
			{From: p2, To: p1, Resource: 100},
		}))
	})

	It("should stop changing once halted", func() {
		Expect(k.Halt(context.Background())).To(Succeed())

		created := make(chan process.PID, 1)
		go func() {
			created <- k.CreateProcess("late")
		}()

		Consistently(created, 50*time.Millisecond).ShouldNot(Receive())
	})

	It("should give up halting when the context ends", func() {
		running := make(chan struct{})
		clock.EXPECT().Sleep(time.Second).Do(func(time.Duration) {
			close(running)
			time.Sleep(100 * time.Millisecond)
		})
		k.CreateProcess("P1")
		done := k.RunSchedulerCycleAsync()
		Eventually(running).Should(BeClosed())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		Expect(k.Halt(ctx)).To(MatchError(context.DeadlineExceeded))
		Eventually(done).Should(Receive(HaveLen(1)))
	})

	It("should report every operation to hooks", func() {
		recorder := &positionRecorder{}
		k.AcceptHook(recorder)

		p1 := k.CreateProcess("P1")
		p2 := k.CreateProcess("P2")
		k.AllocateMemory(p1, 10, 1)
		k.AllocateMemory(p2, 10, 1)
		k.FreeMemory(p1)

		Expect(recorder.recorded()).To(Equal([]string{
			HookPosProcessCreated.Name,
			HookPosProcessCreated.Name,
			HookPosAllocate.Name,
			process.HookPosStateChange.Name,
			HookPosRequest.Name,
			HookPosAllocate.Name,
			process.HookPosStateChange.Name,
			HookPosFree.Name,
		}))
	})

	It("should report scheduler runs to hooks", func() {
		recorder := &positionRecorder{}
		k.AcceptHook(recorder)
		k.CreateProcess("P1")
		clock.EXPECT().Sleep(time.Second)

		k.RunSchedulerCycle()

		Expect(recorder.recorded()).To(ContainElements(
			scheduler.HookPosRunStart.Name,
			scheduler.HookPosRunEnd.Name,
		))
	})
})
