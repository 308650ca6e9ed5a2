package photodb

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"photodb/internal/model"
)

func TestForEach(t *testing.T) {
	t.Run("visits every item", func(t *testing.T) {
		items := make([]int, 100)
		for i := range items {
			items[i] = i
		}
		var sum atomic.Int64
		if err := forEach(context.Background(), 8, items, func(_ context.Context, n int) { sum.Add(int64(n)) }); err != nil {
			t.Fatalf("forEach() error = %v", err)
		}
		if got := sum.Load(); got != 4950 {
			t.Errorf("sum = %d, want 4950", got)
		}
	})

	t.Run("respects the worker limit", func(t *testing.T) {
		var running, peak atomic.Int64
		items := make([]int, 20)
		_ = forEach(context.Background(), 3, items, func(context.Context, int) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
		})
		if p := peak.Load(); p > 3 {
			t.Errorf("peak concurrency = %d, want <= 3", p)
		}
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var calls atomic.Int64
		err := forEach(ctx, 2, make([]int, 10), func(context.Context, int) { calls.Add(1) })
		if !errors.Is(err, context.Canceled) {
			t.Errorf("forEach() error = %v, want context.Canceled", err)
		}
		if calls.Load() != 0 {
			t.Errorf("forEach() ran %d items after cancellation", calls.Load())
		}
	})
}

func TestClaimTable(t *testing.T) {
	var fp model.Fingerprint
	fp[0] = 1

	t.Run("first caller owns", func(t *testing.T) {
		ct := newClaimTable()
		c, owner := ct.acquire(fp)
		if !owner {
			t.Fatal("acquire() owner = false for the first caller")
		}
		c2, owner2 := ct.acquire(fp)
		if owner2 || c2 != c {
			t.Fatal("second acquire() should wait on the first claim")
		}
		ct.release(fp, c, true)
		<-c2.done
		if !c2.placed {
			t.Error("waiter did not see placed = true")
		}
		if _, again := ct.acquire(fp); again {
			t.Error("placed fingerprint was claimable again")
		}
	})

	t.Run("failed claim is handed over", func(t *testing.T) {
		ct := newClaimTable()
		c, _ := ct.acquire(fp)
		ct.release(fp, c, false)
		<-c.done
		if c.placed {
			t.Error("placed = true for a failed claim")
		}
		if _, owner := ct.acquire(fp); !owner {
			t.Error("acquire() after a failed claim should own the fingerprint")
		}
	})

	t.Run("one owner under contention", func(t *testing.T) {
		ct := newClaimTable()
		var owners atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, owner := ct.acquire(fp); owner {
					owners.Add(1)
				}
			}()
		}
		wg.Wait()
		if n := owners.Load(); n != 1 {
			t.Errorf("owners = %d, want 1", n)
		}
	})
}
