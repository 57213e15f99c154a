package cache

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type membershipKey struct {
	valueSet string
	system   string
	code     string
}

func TestLRU_GetSet(t *testing.T) {
	c := New[membershipKey, bool](4)

	glucose := membershipKey{"http://example.org/vs/glucose", "http://loinc.org", "2345-7"}
	hba1c := membershipKey{"http://example.org/vs/glucose", "http://loinc.org", "4548-4"}

	c.Set(glucose, true)
	c.Set(hba1c, false)

	if v, ok := c.Get(glucose); !ok || !v {
		t.Errorf("Get(glucose) = %v, %v; want true, true", v, ok)
	}
	if v, ok := c.Get(hba1c); !ok || v {
		t.Errorf("Get(hba1c) = %v, %v; want false, true", v, ok)
	}
	if _, ok := c.Get(membershipKey{valueSet: "other"}); ok {
		t.Error("Get(other) should miss")
	}
}

func TestLRU_Eviction(t *testing.T) {
	c := New[string, int](2)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("'b' should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Errorf("Get(c) = %d, %v; want 3, true", v, ok)
	}
	if s := c.Stats(); s.Evicts != 1 {
		t.Errorf("Stats.Evicts = %d; want 1", s.Evicts)
	}
}

func TestLRU_UpdateDeleteClear(t *testing.T) {
	c := New[string, int](3)

	c.Set("a", 1)
	c.Set("a", 10)
	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("Get(a) = %d; want 10", v)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d; want 1", c.Len())
	}

	c.Set("b", 2)
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) should miss after Delete")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d; want 0", c.Len())
	}
}

func TestLRU_GetOrLoad(t *testing.T) {
	c := New[string, string](2)
	calls := 0
	load := func() (string, error) {
		calls++
		return "library FHIRHelpers version '4.0.1'", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad("FHIRHelpers|4.0.1", load)
		if err != nil {
			t.Fatalf("GetOrLoad() error = %v", err)
		}
		if !strings.HasPrefix(v, "library FHIRHelpers") {
			t.Errorf("GetOrLoad() = %q", v)
		}
	}
	if calls != 1 {
		t.Errorf("load called %d times; want 1", calls)
	}
}

func TestLRU_GetOrLoadError(t *testing.T) {
	c := New[string, int](2)
	loadErr := errors.New("not found")

	if _, err := c.GetOrLoad("x", func() (int, error) { return 0, loadErr }); !errors.Is(err, loadErr) {
		t.Fatalf("err = %v; want %v", err, loadErr)
	}
	if c.Len() != 0 {
		t.Errorf("failed loads must not be cached, Len() = %d", c.Len())
	}
}

func TestLRU_Stats(t *testing.T) {
	c := New[string, int](2)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Get("a")
	c.Get("c")

	stats := c.Stats()
	if stats.Size != 2 || stats.Capacity != 2 {
		t.Errorf("Size, Capacity = %d, %d; want 2, 2", stats.Size, stats.Capacity)
	}
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("Hits, Misses = %d, %d; want 2, 1", stats.Hits, stats.Misses)
	}

	expected := 2.0 / 3.0
	if stats.HitRate < expected-0.01 || stats.HitRate > expected+0.01 {
		t.Errorf("HitRate = %f; want ~%f", stats.HitRate, expected)
	}
}

func TestLRU_DefaultCapacity(t *testing.T) {
	c := New[int, int](0)
	if s := c.Stats(); s.Capacity != DefaultCapacity {
		t.Errorf("Capacity = %d; want %d", s.Capacity, DefaultCapacity)
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := New[int, int](100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.Set(i, i*10)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = c.GetOrLoad(i, func() (int, error) { return i * 10, nil })
		}(i)
	}
	wg.Wait()

	for i := 0; i < 100; i++ {
		if v, ok := c.Get(i); ok && v != i*10 {
			t.Errorf("Get(%d) = %d; want %d", i, v, i*10)
		}
	}
}

func TestLRU_ConcurrentSameKey(t *testing.T) {
	c := New[string, int](4)
	c.Set("k", 0)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Set("k", j)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if v, ok := c.Get("k"); !ok || v < 0 || v >= 1000 {
					t.Errorf("Get(k) = %d, %v", v, ok)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestCollector(t *testing.T) {
	c := New[string, int](1)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("b")
	c.Get("a")

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector("membership", c))

	expected := `
# HELP cqlretrieve_cache_entries Entries currently cached
# TYPE cqlretrieve_cache_entries gauge
cqlretrieve_cache_entries{cache="membership"} 1
# HELP cqlretrieve_cache_evictions_total Cache evictions
# TYPE cqlretrieve_cache_evictions_total counter
cqlretrieve_cache_evictions_total{cache="membership"} 1
# HELP cqlretrieve_cache_hits_total Cache hits
# TYPE cqlretrieve_cache_hits_total counter
cqlretrieve_cache_hits_total{cache="membership"} 1
# HELP cqlretrieve_cache_misses_total Cache misses
# TYPE cqlretrieve_cache_misses_total counter
cqlretrieve_cache_misses_total{cache="membership"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected)); err != nil {
		t.Error(err)
	}
}

func BenchmarkLRU_Get(b *testing.B) {
	c := New[string, int](1000)
	for i := 0; i < 1000; i++ {
		c.Set(strconv.Itoa(i), i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(strconv.Itoa(i % 1000))
	}
}

func BenchmarkLRU_Concurrent(b *testing.B) {
	c := New[int, int](1000)

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%2 == 0 {
				c.Set(i%1000, i)
			} else {
				c.Get(i % 1000)
			}
			i++
		}
	})
}
