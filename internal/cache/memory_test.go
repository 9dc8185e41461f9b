package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryCache_BasicOperations(t *testing.T) {
	cache := NewMemoryCache(1024)

	value := []byte("audio")
	if err := cache.Put("k", value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := cache.Get("k")
	if !ok {
		t.Fatal("Get failed: key not found")
	}
	if string(got) != string(value) {
		t.Errorf("Get = %q, want %q", got, value)
	}

	if _, ok := cache.Get("missing"); ok {
		t.Error("Get returned a value for a missing key")
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
	if stats.Size != int64(len(value)) {
		t.Errorf("Size = %d, want %d", stats.Size, len(value))
	}
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	cache := NewMemoryCache(30)

	for i := 0; i < 3; i++ {
		if err := cache.Put(fmt.Sprintf("k%d", i), make([]byte, 10)); err != nil {
			t.Fatal(err)
		}
	}

	// Touch k0 so k1 becomes the eviction candidate.
	cache.Get("k0")

	if err := cache.Put("k3", make([]byte, 10)); err != nil {
		t.Fatal(err)
	}

	if _, ok := cache.Get("k1"); ok {
		t.Error("k1 should have been evicted")
	}
	for _, key := range []string{"k0", "k2", "k3"} {
		if _, ok := cache.Get(key); !ok {
			t.Errorf("%s should still be cached", key)
		}
	}
	if got := cache.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestMemoryCache_ItemTooLarge(t *testing.T) {
	cache := NewMemoryCache(10)
	if err := cache.Put("big", make([]byte, 11)); err != ErrItemTooLarge {
		t.Errorf("Put = %v, want ErrItemTooLarge", err)
	}
}

func TestMemoryCache_ReplaceKeepsSizeAccurate(t *testing.T) {
	cache := NewMemoryCache(100)
	_ = cache.Put("k", make([]byte, 40))
	_ = cache.Put("k", make([]byte, 10))

	if got := cache.Stats().Size; got != 10 {
		t.Errorf("Size = %d, want 10", got)
	}
	if got := cache.Stats().Items; got != 1 {
		t.Errorf("Items = %d, want 1", got)
	}
}

func TestMemoryCache_Prune(t *testing.T) {
	cache := NewMemoryCache(100)
	_ = cache.Put("old", []byte("a"))
	time.Sleep(20 * time.Millisecond)
	_ = cache.Put("new", []byte("b"))

	if n := cache.Prune(10 * time.Millisecond); n != 1 {
		t.Errorf("Prune removed %d entries, want 1", n)
	}
	if _, ok := cache.Get("new"); !ok {
		t.Error("recent entry was pruned")
	}
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	cache := NewMemoryCache(1024)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := fmt.Sprintf("k%d-%d", id, j%5)
				_ = cache.Put(key, []byte("v"))
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if cache.Stats().Size > 1024 {
		t.Error("cache exceeded its capacity")
	}
}
