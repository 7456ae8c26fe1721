package resultcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fixed(lines ...string) Producer {
	return func(context.Context) (Lines, error) {
		return Lines(lines), nil
	}
}

func TestSingleFlightExactlyOneProducer(t *testing.T) {
	c := New(10, time.Minute)
	var invocations atomic.Int32
	release := make(chan struct{})

	producer := func(context.Context) (Lines, error) {
		invocations.Add(1)
		<-release
		return Lines{"shared"}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Lines, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrExecute(context.Background(), "k", producer)
		}(i)
	}

	// Let every caller reach the flight before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := invocations.Load(); n != 1 {
		t.Fatalf("producer ran %d times, want 1", n)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if len(results[i]) != 1 || results[i][0] != "shared" {
			t.Fatalf("caller %d got %v", i, results[i])
		}
	}
}

func TestSuccessServedFromCacheUntilTTL(t *testing.T) {
	c := New(10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	var invocations int
	producer := func(context.Context) (Lines, error) {
		invocations++
		return Lines{fmt.Sprintf("run %d", invocations)}, nil
	}

	first, err := c.GetOrExecute(context.Background(), "k", producer)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.GetOrExecute(context.Background(), "k", producer)
	if err != nil {
		t.Fatal(err)
	}
	if invocations != 1 {
		t.Fatalf("producer ran %d times within TTL, want 1", invocations)
	}
	if first[0] != second[0] {
		t.Fatalf("cached result differs: %q vs %q", first[0], second[0])
	}

	now = now.Add(time.Minute) // entry is now exactly at TTL, treated as expired
	third, err := c.GetOrExecute(context.Background(), "k", producer)
	if err != nil {
		t.Fatal(err)
	}
	if invocations != 2 {
		t.Fatalf("producer ran %d times after TTL, want 2", invocations)
	}
	if third[0] != "run 2" {
		t.Fatalf("got %q after expiry", third[0])
	}
}

func TestFailureIsNotCached(t *testing.T) {
	c := New(10, time.Minute)
	boom := errors.New("unreachable")
	var invocations int
	producer := func(context.Context) (Lines, error) {
		invocations++
		if invocations == 1 {
			return nil, boom
		}
		return Lines{"recovered"}, nil
	}

	if _, err := c.GetOrExecute(context.Background(), "k", producer); !errors.Is(err, boom) {
		t.Fatalf("first call error = %v, want %v", err, boom)
	}
	lines, err := c.GetOrExecute(context.Background(), "k", producer)
	if err != nil {
		t.Fatalf("second call should retry: %v", err)
	}
	if invocations != 2 {
		t.Fatalf("producer ran %d times, want 2", invocations)
	}
	if lines[0] != "recovered" {
		t.Fatalf("got %q", lines[0])
	}
	if c.Len() != 1 {
		t.Fatalf("cache has %d entries, want only the success", c.Len())
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(3, time.Minute)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		if _, err := c.GetOrExecute(ctx, k, fixed(k)); err != nil {
			t.Fatal(err)
		}
	}
	// Touch "a" so "b" becomes the least recently used.
	if _, err := c.GetOrExecute(ctx, "a", fixed("never")); err != nil {
		t.Fatal(err)
	}

	if _, err := c.GetOrExecute(ctx, "d", fixed("d")); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 3 {
		t.Fatalf("len = %d, want 3", c.Len())
	}

	var ran bool
	probe := func(context.Context) (Lines, error) {
		ran = true
		return Lines{"refetched"}, nil
	}
	if _, err := c.GetOrExecute(ctx, "b", probe); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("b should have been evicted as least recently used")
	}
	ran = false
	if _, err := c.GetOrExecute(ctx, "a", probe); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Fatal("a should have survived eviction")
	}
}

func TestCacheNeverExceedsCapacity(t *testing.T) {
	c := New(4, time.Minute)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("k%d", i)
		if _, err := c.GetOrExecute(ctx, key, fixed(key)); err != nil {
			t.Fatal(err)
		}
		if c.Len() > 4 {
			t.Fatalf("len = %d after %d inserts, cap 4", c.Len(), i+1)
		}
	}
}

func TestWaiterAbandonsOnContextCancel(t *testing.T) {
	c := New(10, time.Minute)
	started := make(chan struct{})
	release := make(chan struct{})
	producer := func(context.Context) (Lines, error) {
		close(started)
		<-release
		return Lines{"late"}, nil
	}

	go c.GetOrExecute(context.Background(), "k", producer)
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetOrExecute(ctx, "k", func(context.Context) (Lines, error) {
		t.Error("second producer must not run")
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	close(release)
}

func TestSweepPurgesExpired(t *testing.T) {
	c := New(10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.GetOrExecute(ctx, "old", fixed("old"))
	now = now.Add(30 * time.Second)
	c.GetOrExecute(ctx, "new", fixed("new"))
	now = now.Add(31 * time.Second) // "old" expired, "new" still live

	if dropped := c.Sweep(); dropped != 1 {
		t.Fatalf("swept %d, want 1", dropped)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
}
