package redisstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeEntry struct {
	value   string
	expires time.Time
}

type publishedMessage struct {
	channel string
	payload []byte
}

// fakeRedis understands SET NX PX, PUBLISH and the lock release script.
type fakeRedis struct {
	mu         sync.Mutex
	now        time.Time
	values     map[string]fakeEntry
	published  []publishedMessage
	releases   int
	setErr     error
	publishErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{now: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), values: make(map[string]fakeEntry)}
}

func (f *fakeRedis) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeRedis) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.liveLocked(key)
	return entry.value, ok
}

func (f *fakeRedis) liveLocked(key string) (fakeEntry, bool) {
	entry, ok := f.values[key]
	if !ok {
		return fakeEntry{}, false
	}
	if !entry.expires.IsZero() && !f.now.Before(entry.expires) {
		delete(f.values, key)
		return fakeEntry{}, false
	}
	return entry, true
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		cmd.SetErr(f.setErr)
		return cmd
	}
	if _, ok := f.liveLocked(key); ok {
		cmd.SetVal(false)
		return cmd
	}
	entry := fakeEntry{value: fmt.Sprint(value)}
	if expiration > 0 {
		entry.expires = f.now.Add(expiration)
	}
	f.values[key] = entry
	cmd.SetVal(true)
	return cmd
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		cmd.SetErr(f.publishErr)
		return cmd
	}
	payload, _ := message.([]byte)
	f.published = append(f.published, publishedMessage{channel: channel, payload: payload})
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) release(ctx context.Context, keys []string, args []interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	entry, ok := f.liveLocked(keys[0])
	if ok && entry.value == fmt.Sprint(args[0]) {
		delete(f.values, keys[0])
		cmd.SetVal(int64(1))
		return cmd
	}
	cmd.SetVal(int64(0))
	return cmd
}

func (f *fakeRedis) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.release(ctx, keys, args)
}

func (f *fakeRedis) EvalSha(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.release(ctx, keys, args)
}

func (f *fakeRedis) EvalRO(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.release(ctx, keys, args)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.release(ctx, keys, args)
}

func (f *fakeRedis) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	cmd := redis.NewBoolSliceCmd(ctx)
	cmd.SetVal(make([]bool, len(hashes)))
	return cmd
}

func (f *fakeRedis) ScriptLoad(ctx context.Context, _ string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("release")
	return cmd
}
