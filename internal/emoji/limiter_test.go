package emoji

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquireReleaseRoundtrip(t *testing.T) {
	l := NewLimiter(5, 2)
	release, err := l.Acquire(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	release()
}

func TestPerUserCapBlocksFourthConcurrentAcquire(t *testing.T) {
	l := NewLimiter(10, 3)

	var releases []func()
	for i := 0; i < 3; i++ {
		r, err := l.Acquire(context.Background(), "alice")
		if err != nil {
			t.Fatal(err)
		}
		releases = append(releases, r)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "alice"); err == nil {
		t.Fatal("want acquire to block and time out once the per-user cap is exhausted")
	}

	for _, r := range releases {
		r()
	}
}

func TestGlobalCapIsSharedAcrossUsers(t *testing.T) {
	l := NewLimiter(1, 5)

	release, err := l.Acquire(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "bob"); err == nil {
		t.Fatal("want bob to block on the exhausted global gate even though his own gate is free")
	}
	release()
}

func TestDifferentUsersDoNotContendPerUserGates(t *testing.T) {
	l := NewLimiter(10, 1)

	releaseAlice, err := l.Acquire(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	defer releaseAlice()

	releaseBob, err := l.Acquire(context.Background(), "bob")
	if err != nil {
		t.Fatal("bob should acquire freely since his per-user gate is independent of alice's")
	}
	defer releaseBob()
}

func TestCleanupDropsIdleFullyReleasedGates(t *testing.T) {
	l := NewLimiter(10, 1)
	release, err := l.Acquire(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	release()

	l.Cleanup(time.Now().Add(time.Hour), time.Minute)

	l.mu.Lock()
	_, present := l.perUser["alice"]
	l.mu.Unlock()
	if present {
		t.Fatal("want idle, fully-released gate dropped by Cleanup")
	}
}

func TestCleanupKeepsGatesStillInUse(t *testing.T) {
	l := NewLimiter(10, 1)
	release, err := l.Acquire(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	l.Cleanup(time.Now().Add(time.Hour), time.Minute)

	l.mu.Lock()
	_, present := l.perUser["alice"]
	l.mu.Unlock()
	if !present {
		t.Fatal("want in-use gate preserved by Cleanup")
	}
}

func TestConcurrentAcquireReleaseStaysWithinGlobalCap(t *testing.T) {
	l := NewLimiter(3, 3)
	var inFlight int32
	var maxSeen int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "shared")
			if err != nil {
				t.Error(err)
				return
			}
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				max := atomic.LoadInt32(&maxSeen)
				if cur <= max || atomic.CompareAndSwapInt32(&maxSeen, max, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			release()
		}(i)
	}
	wg.Wait()

	if atomic.LoadInt32(&maxSeen) > 3 {
		t.Fatalf("want at most 3 concurrent holders (per-user cap == global cap here), saw %d", maxSeen)
	}
}
