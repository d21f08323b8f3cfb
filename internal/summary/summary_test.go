package summary

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryClaimOncePerWindow(t *testing.T) {
	state := NewMemory()
	ctx := context.Background()

	first, _ := state.Claim(ctx, "p1", 1)
	second, _ := state.Claim(ctx, "p1", 1)
	other, _ := state.Claim(ctx, "p2", 1)
	if !first || second || !other {
		t.Fatalf("claims = %v %v %v, want true false true", first, second, other)
	}
}

func TestMemoryClaimConcurrent(t *testing.T) {
	state := NewMemory()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := state.Claim(context.Background(), "p", 3); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one claim, got %d", wins)
	}
}

func TestMemoryOverview(t *testing.T) {
	state := NewMemory()
	ctx := context.Background()
	if got, _ := state.Overview(ctx, "p"); got != "" {
		t.Fatalf("expected empty overview, got %q", got)
	}
	_ = state.SetOverview(ctx, "p", "概览")
	if got, _ := state.Overview(ctx, "p"); got != "概览" {
		t.Fatalf("unexpected overview %q", got)
	}
}

func TestWindowFor(t *testing.T) {
	cases := []struct {
		offset, interval time.Duration
		want             int64
	}{
		{0, 2 * time.Minute, 0},
		{119 * time.Second, 2 * time.Minute, 0},
		{120 * time.Second, 2 * time.Minute, 1},
		{250 * time.Second, 2 * time.Minute, 2},
		{30 * time.Second, 0, 0},
	}
	for _, c := range cases {
		if got := WindowFor(c.offset, c.interval); got != c.want {
			t.Fatalf("WindowFor(%v, %v) = %d, want %d", c.offset, c.interval, got, c.want)
		}
	}
}

type fakeRedis struct {
	sets    map[string]map[string]struct{}
	strings map[string]string
	expires map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		sets:    map[string]map[string]struct{}{},
		strings: map[string]string{},
		expires: map[string]time.Duration{},
	}
}

func (f *fakeRedis) SAdd(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	set, ok := f.sets[key]
	if !ok {
		set = map[string]struct{}{}
		f.sets[key] = set
	}
	var added int64
	for _, m := range members {
		s := m.(string)
		if _, exists := set[s]; !exists {
			set[s] = struct{}{}
			added++
		}
	}
	return redis.NewIntResult(added, nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.strings[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.strings[key] = value.(string)
	f.expires[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisStateKeysAndTTL(t *testing.T) {
	fake := newFakeRedis()
	state := newRedisState(fake, time.Hour)
	ctx := context.Background()

	first, err := state.Claim(ctx, "p1", 2)
	if err != nil || !first {
		t.Fatalf("first claim = %v, %v", first, err)
	}
	if again, _ := state.Claim(ctx, "p1", 2); again {
		t.Fatal("second claim of the same window should fail")
	}
	if _, ok := fake.sets["prdforge:windows:p1"]["2"]; !ok {
		t.Fatalf("window not stored under expected key: %v", fake.sets)
	}
	if fake.expires["prdforge:windows:p1"] != time.Hour {
		t.Fatalf("expected ttl on windows key")
	}

	if got, err := state.Overview(ctx, "p1"); err != nil || got != "" {
		t.Fatalf("missing overview = %q, %v", got, err)
	}
	if err := state.SetOverview(ctx, "p1", "合并后的概览"); err != nil {
		t.Fatalf("SetOverview returned error: %v", err)
	}
	if fake.strings["prdforge:overview:p1"] != "合并后的概览" {
		t.Fatalf("overview not stored under expected key: %v", fake.strings)
	}
	if got, _ := state.Overview(ctx, "p1"); got != "合并后的概览" {
		t.Fatalf("unexpected overview %q", got)
	}
}
