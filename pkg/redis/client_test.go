package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
)

func TestFixedWindowAllowStartsWindowOnFirstHit(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryRedis()
	client := &Client{store: mem}

	for i, want := range []bool{true, true, false} {
		allowed, count, err := client.FixedWindowAllow(ctx, "user:42", 2, 1500*time.Millisecond)
		if err != nil {
			t.Fatalf("hit %d: %v", i+1, err)
		}
		if allowed != want || count != int64(i+1) {
			t.Fatalf("hit %d: allowed=%v count=%d", i+1, allowed, count)
		}
	}
	if ttl := mem.ttl["rf:rate_limit:user:42"]; ttl != 1500*time.Millisecond {
		t.Fatalf("expected window ttl 1.5s, got %v", ttl)
	}
	if mem.expires != 1 {
		t.Fatalf("window should be armed once, got %d", mem.expires)
	}
	if mem.fallbacks != 1 {
		t.Fatalf("expected one EVAL after NOSCRIPT, got %d", mem.fallbacks)
	}
}

func TestFixedWindowAllowRearmsCounterWithoutTTL(t *testing.T) {
	mem := newMemoryRedis()
	mem.counters["rf:rate_limit:ip"] = 5
	client := &Client{store: mem}

	if _, _, err := client.FixedWindowAllow(context.Background(), "ip", 10, time.Minute); err != nil {
		t.Fatalf("FixedWindowAllow: %v", err)
	}
	if mem.ttl["rf:rate_limit:ip"] != time.Minute {
		t.Fatalf("expected stray counter to get a ttl, got %v", mem.ttl)
	}
}

func TestReleaseIfOwnerOnlyDeletesOwnLock(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryRedis()
	client := &Client{store: mem}
	lock := client.LockKey("cron-worker", "prod")

	if ok, err := client.SetNX(ctx, lock, "pod-a", time.Minute); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	released, err := client.ReleaseIfOwner(ctx, lock, "pod-b")
	if err != nil || released {
		t.Fatalf("foreign release: released=%v err=%v", released, err)
	}
	if _, err := client.Get(ctx, lock); err != nil {
		t.Fatalf("lock should survive a foreign release: %v", err)
	}
	released, err = client.ReleaseIfOwner(ctx, lock, "pod-a")
	if err != nil || !released {
		t.Fatalf("owner release: released=%v err=%v", released, err)
	}
	if _, err := client.Get(ctx, lock); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected lock gone, got %v", err)
	}
}

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMemoryRedis()}

	key := client.IdempotencyKey("render", "evt-1")
	if first, err := client.SetNX(ctx, key, "1", time.Minute); err != nil || !first {
		t.Fatalf("first setnx: %v %v", first, err)
	}
	if second, err := client.SetNX(ctx, key, "1", time.Minute); err != nil || second {
		t.Fatalf("second setnx: %v %v", second, err)
	}
	if err := client.Set(ctx, key, "2", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := client.Get(ctx, key); v != "2" {
		t.Fatalf("expected overwrite, got %q", v)
	}
	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	cases := map[string]string{
		client.IdempotencyKey("scope", "id"):     "rf:idempotency:scope:id",
		client.IdempotencyKey("", "id"):          "rf:idempotency:id",
		client.LockKey("cron-worker", "staging"): "rf:lock:cron-worker:staging",
		client.LockKey(" cron ", ""):             "rf:lock:cron",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("expected %s got %s", want, got)
		}
	}
}

func TestUninitializedClientFails(t *testing.T) {
	client := &Client{}
	if _, err := client.Get(context.Background(), "k"); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected errNotInitialized, got %v", err)
	}
	if _, _, err := client.FixedWindowAllow(context.Background(), "s", 1, time.Second); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected errNotInitialized, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client: %v", err)
	}
}

func TestOptionsPrefersURLAndFillsGaps(t *testing.T) {
	opts, err := options(config.RedisConfig{
		URL:         "redis://:secret@cache:6380/3",
		Address:     "ignored:6379",
		DB:          7,
		PoolSize:    12,
		DialTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.Password != "secret" || opts.DB != 3 {
		t.Fatalf("url fields not kept: %+v", opts)
	}
	if opts.PoolSize != 12 || opts.DialTimeout != 2*time.Second {
		t.Fatalf("gaps not filled: pool=%d dial=%v", opts.PoolSize, opts.DialTimeout)
	}

	opts, err = options(config.RedisConfig{Address: "localhost:6379", DB: 1})
	if err != nil || opts.Addr != "localhost:6379" || opts.DB != 1 {
		t.Fatalf("address config: %+v %v", opts, err)
	}
	if _, err := options(config.RedisConfig{}); err == nil {
		t.Fatal("expected missing address to fail")
	}
}

// memoryRedis runs the two client scripts natively. EVALSHA answers NOSCRIPT
// until EVAL has loaded the script, like a fresh server.
type memoryRedis struct {
	data      map[string]string
	counters  map[string]int64
	ttl       map[string]time.Duration
	loaded    map[string]bool
	expires   int
	fallbacks int
}

type noScriptError struct{}

func (noScriptError) Error() string { return "NOSCRIPT No matching script" }
func (noScriptError) RedisError()   {}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{
		data:     make(map[string]string),
		counters: make(map[string]int64),
		ttl:      make(map[string]time.Duration),
		loaded:   make(map[string]bool),
	}
}

func (m *memoryRedis) run(sha string, keys []string, args []any) *redis.Cmd {
	switch sha {
	case fixedWindow.Hash():
		k := keys[0]
		m.counters[k]++
		if _, ok := m.ttl[k]; m.counters[k] == 1 || !ok {
			m.ttl[k] = time.Duration(args[0].(int64)) * time.Millisecond
			m.expires++
		}
		return redis.NewCmdResult(m.counters[k], nil)
	case releaseOwned.Hash():
		k := keys[0]
		if v, ok := m.data[k]; ok && v == fmt.Sprint(args[0]) {
			delete(m.data, k)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unknown script %s", sha))
}

func (m *memoryRedis) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	sha := redis.NewScript(script).Hash()
	m.loaded[sha] = true
	m.fallbacks++
	return m.run(sha, keys, args)
}

func (m *memoryRedis) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	if !m.loaded[sha] {
		return redis.NewCmdResult(nil, noScriptError{})
	}
	return m.run(sha, keys, args)
}

func (m *memoryRedis) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return m.Eval(ctx, script, keys, args...)
}

func (m *memoryRedis) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *memoryRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	out := make([]bool, len(hashes))
	for i, h := range hashes {
		out[i] = m.loaded[h]
	}
	return redis.NewBoolSliceResult(out, nil)
}

func (m *memoryRedis) ScriptLoad(_ context.Context, script string) *redis.StringCmd {
	sha := redis.NewScript(script).Hash()
	m.loaded[sha] = true
	return redis.NewStringResult(sha, nil)
}

func (m *memoryRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *memoryRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			delete(m.data, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}
