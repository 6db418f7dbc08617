package idgen

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("IDGenerator", func() {
	It("should generate sequential ids", func() {
		g := NewSequential()

		Expect(g.Generate()).To(Equal("1"))
		Expect(g.Generate()).To(Equal("2"))
		Expect(g.Generate()).To(Equal("3"))
	})

	It("should generate unique ids in parallel", func() {
		for _, g := range []IDGenerator{NewSequential(), NewParallel()} {
			var (
				wg   sync.WaitGroup
				lock sync.Mutex
				seen = make(map[string]bool)
			)

			for i := 0; i < 100; i++ {
				wg.Add(1)

				go func() {
					defer wg.Done()

					id := g.Generate()

					lock.Lock()
					seen[id] = true
					lock.Unlock()
				}()
			}

			wg.Wait()

			Expect(seen).To(HaveLen(100))
		}
	})
})
