package bot

import (
	"sync"
	"testing"
	"time"
)

func TestAntiFloodGuardCooldown(t *testing.T) {
	current := time.Unix(1700000000, 0)
	guard := NewAntiFloodGuard(900 * time.Millisecond)
	guard.now = func() time.Time { return current }

	if got := guard.Acquire(42); got != Proceed {
		t.Fatalf("first acquire = %v, want Proceed", got)
	}
	guard.Release(42)

	current = current.Add(100 * time.Millisecond)
	if got := guard.Acquire(42); got != Wait {
		t.Fatalf("acquire inside cooldown = %v, want Wait", got)
	}

	current = current.Add(time.Second)
	if got := guard.Acquire(42); got != Proceed {
		t.Fatalf("acquire after cooldown = %v, want Proceed", got)
	}
	guard.Release(42)
}

func TestAntiFloodGuardInFlight(t *testing.T) {
	current := time.Unix(1700000000, 0)
	guard := NewAntiFloodGuard(100 * time.Millisecond)
	guard.now = func() time.Time { return current }

	if got := guard.Acquire(7); got != Proceed {
		t.Fatalf("first acquire = %v, want Proceed", got)
	}

	current = current.Add(time.Second)
	if got := guard.Acquire(7); got != InFlight {
		t.Fatalf("acquire while busy = %v, want InFlight", got)
	}

	guard.Release(7)
	current = current.Add(time.Second)
	if got := guard.Acquire(7); got != Proceed {
		t.Fatalf("acquire after release = %v, want Proceed", got)
	}
}

func TestAntiFloodGuardIsolatesUsers(t *testing.T) {
	guard := NewAntiFloodGuard(time.Minute)

	if got := guard.Acquire(1); got != Proceed {
		t.Fatalf("user 1 acquire = %v, want Proceed", got)
	}
	if got := guard.Acquire(2); got != Proceed {
		t.Fatalf("user 2 acquire = %v, want Proceed", got)
	}
}

func TestAntiFloodGuardConcurrentAcquire(t *testing.T) {
	guard := NewAntiFloodGuard(time.Minute)

	const workers = 32
	var wg sync.WaitGroup
	results := make(chan Verdict, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- guard.Acquire(99)
		}()
	}
	wg.Wait()
	close(results)

	proceeds := 0
	for v := range results {
		if v == Proceed {
			proceeds++
		}
	}
	if proceeds != 1 {
		t.Fatalf("concurrent acquires yielded %d Proceed verdicts, want exactly 1", proceeds)
	}
}
