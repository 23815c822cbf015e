package sensors

import (
	"sync"
	"testing"

	. "github.com/onsi/gomega"
)

func TestReadBeforePublish(t *testing.T) {
	g := NewWithT(t)
	l := NewLatest[float64]("imu")
	v, fresh, ok := l.Read()
	g.Expect(ok).To(BeFalse())
	g.Expect(fresh).To(BeFalse())
	g.Expect(v).To(BeZero())
	g.Expect(l.Stale()).To(Equal(uint64(1)))
}

func TestStaleReuseAndCounters(t *testing.T) {
	g := NewWithT(t)
	l := NewLatest[int]("joints")
	l.Publish(1)
	l.Publish(2)

	v, fresh, ok := l.Read()
	g.Expect([]any{v, fresh, ok}).To(Equal([]any{2, true, true}))

	for i := 1; i <= 3; i++ {
		v, fresh, ok = l.Read()
		g.Expect(v).To(Equal(2))
		g.Expect(fresh).To(BeFalse())
		g.Expect(ok).To(BeTrue())
		g.Expect(l.Streak()).To(Equal(i))
	}
	g.Expect(l.Stale()).To(Equal(uint64(3)))

	l.Publish(3)
	v, fresh, _ = l.Read()
	g.Expect(v).To(Equal(3))
	g.Expect(fresh).To(BeTrue())
	g.Expect(l.Streak()).To(BeZero())
	g.Expect(l.Stale()).To(Equal(uint64(3)))
}

func TestConcurrentPublishers(t *testing.T) {
	g := NewWithT(t)
	l := NewLatest[[]int]("plan")
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				l.Publish([]int{w, i})
			}
		}(w)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if v, _, ok := l.Read(); ok && len(v) != 2 {
				t.Error("torn sample")
				return
			}
		}
	}()
	wg.Wait()
	<-done
	v, _, ok := l.Read()
	g.Expect(ok).To(BeTrue())
	g.Expect(v[1]).To(BeNumerically("<", 100))
}
