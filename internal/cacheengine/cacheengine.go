// Package cacheengine implements the multi-level, tag-indexed cache: a
// sharded in-process map plus an optional redis/go-redis/v9 shared store
// for cross-process visibility, with two invalidation indices
// (tag -> keys, entity -> keys) maintained alongside the entries.
package cacheengine

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy names the cache policy a caller requests at Set time, controlling
// default TTL and read-through semantics.
type Policy string

const (
	PolicyEntity  Policy = "ENTITY"  // 5 min TTL, read-through for single-id lookups
	PolicyDynamic Policy = "DYNAMIC" // shorter TTL, keyed by query fingerprint
	PolicyStatic  Policy = "STATIC"  // long TTL, manual invalidation only
)

// DefaultTTL returns the default TTL for a policy.
func (p Policy) DefaultTTL() time.Duration {
	switch p {
	case PolicyEntity:
		return 5 * time.Minute
	case PolicyDynamic:
		return 30 * time.Second
	case PolicyStatic:
		return 24 * time.Hour
	default:
		return 5 * time.Minute
	}
}

// SharedStore is the subset of a distributed cache backend CacheEngine
// depends on. *redis.Client satisfies it directly.
type SharedStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

type entry struct {
	value      []byte
	expiresAt  time.Time
	tags       []string
	entityTag  string
}

const shardCount = 16

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Engine is the multi-level cache: a sharded local map plus an optional
// shared store. Entries are guarded by a lock per shard; the tag and entity
// indices are guarded by one engine-wide lock.
type Engine struct {
	shards    [shardCount]*shard
	shared    SharedStore
	degraded  bool
	degMu     sync.RWMutex

	idxMu     sync.Mutex
	tagIndex    map[string]map[string]struct{}
	entityIndex map[string]map[string]struct{}

	onHit  func(level string)
	onMiss func(level string)
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithSharedStore wires a cross-process backend (normally Redis). Without
// one, the engine runs local-only and is never considered degraded.
func WithSharedStore(s SharedStore) Option {
	return func(e *Engine) { e.shared = s }
}

// WithObserver wires hit/miss callbacks, used to drive Prometheus counters.
func WithObserver(onHit, onMiss func(level string)) Option {
	return func(e *Engine) {
		e.onHit = onHit
		e.onMiss = onMiss
	}
}

// New constructs an Engine with shardCount local shards.
func New(opts ...Option) *Engine {
	e := &Engine{
		tagIndex:    make(map[string]map[string]struct{}),
		entityIndex: make(map[string]map[string]struct{}),
	}
	for i := range e.shards {
		e.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return e.shards[h.Sum32()%shardCount]
}

func (e *Engine) recordHit(level string) {
	if e.onHit != nil {
		e.onHit(level)
	}
}

func (e *Engine) recordMiss(level string) {
	if e.onMiss != nil {
		e.onMiss(level)
	}
}

// SetOptions configures a Set call.
type SetOptions struct {
	TTL       time.Duration
	Tags      []string
	EntityTag string
	Policy    Policy
}

// Get reads the local shard first, then the shared store (if wired and not
// degraded) on local miss. The local read takes the shard's read lock, so
// it is not lock-free: it waits while a writer holds that shard.
func (e *Engine) Get(ctx context.Context, key string) (any, bool) {
	sh := e.shardFor(key)
	sh.mu.RLock()
	ent, ok := sh.entries[key]
	sh.mu.RUnlock()

	if ok {
		if time.Now().After(ent.expiresAt) {
			e.recordMiss("local")
			return nil, false
		}
		e.recordHit("local")
		var v any
		if err := json.Unmarshal(ent.value, &v); err != nil {
			return nil, false
		}
		return v, true
	}
	e.recordMiss("local")

	if e.shared == nil || e.isDegraded() {
		return nil, false
	}

	raw, err := e.shared.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	e.recordHit("shared")
	return v, true
}

// Set upserts key with value under its shard's lock, then updates the tag
// and entity indices under the engine-wide index lock.
func (e *Engine) Set(ctx context.Context, key string, value any, opts SetOptions) error {
	ttl := opts.TTL
	if ttl == 0 {
		ttl = opts.Policy.DefaultTTL()
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	sh := e.shardFor(key)
	sh.mu.Lock()
	sh.entries[key] = &entry{
		value:     raw,
		expiresAt: time.Now().Add(ttl),
		tags:      opts.Tags,
		entityTag: opts.EntityTag,
	}
	sh.mu.Unlock()

	e.idxMu.Lock()
	for _, tag := range opts.Tags {
		if e.tagIndex[tag] == nil {
			e.tagIndex[tag] = make(map[string]struct{})
		}
		e.tagIndex[tag][key] = struct{}{}
	}
	if opts.EntityTag != "" {
		if e.entityIndex[opts.EntityTag] == nil {
			e.entityIndex[opts.EntityTag] = make(map[string]struct{})
		}
		e.entityIndex[opts.EntityTag][key] = struct{}{}
	}
	e.idxMu.Unlock()

	if e.shared != nil && !e.isDegraded() {
		if err := e.shared.Set(ctx, key, raw, ttl).Err(); err != nil {
			e.setDegraded(true)
		} else {
			e.setDegraded(false)
		}
	}
	return nil
}

// Delete removes a single key from every level.
func (e *Engine) Delete(ctx context.Context, key string) {
	sh := e.shardFor(key)
	sh.mu.Lock()
	delete(sh.entries, key)
	sh.mu.Unlock()

	if e.shared != nil && !e.isDegraded() {
		_ = e.shared.Del(ctx, key).Err()
	}
}

// InvalidateByTag removes every entry bearing tag: it detaches the tag's key
// set from the index, then deletes each key. Once it returns, every
// affected key misses; a read running concurrently may still see some.
func (e *Engine) InvalidateByTag(ctx context.Context, tag string) {
	e.idxMu.Lock()
	keys := e.tagIndex[tag]
	delete(e.tagIndex, tag)
	e.idxMu.Unlock()

	for key := range keys {
		e.Delete(ctx, key)
	}
}

// InvalidateEntity removes every entry tied to entityTag, plus the
// list-level tags the repository layer stamps alongside it
// ({resource}:list, {resource}:status:{s}, {resource}:category:{c}) via
// extraTags.
func (e *Engine) InvalidateEntity(ctx context.Context, entityTag string, extraTags ...string) {
	e.idxMu.Lock()
	keys := e.entityIndex[entityTag]
	delete(e.entityIndex, entityTag)
	e.idxMu.Unlock()

	for key := range keys {
		e.Delete(ctx, key)
	}
	for _, tag := range extraTags {
		e.InvalidateByTag(ctx, tag)
	}
}

func (e *Engine) isDegraded() bool {
	e.degMu.RLock()
	defer e.degMu.RUnlock()
	return e.degraded
}

func (e *Engine) setDegraded(v bool) {
	e.degMu.Lock()
	defer e.degMu.Unlock()
	e.degraded = v
}

// Degraded reports whether the shared store was recently unreachable; the
// engine continues serving from the local level only until it recovers.
func (e *Engine) Degraded() bool { return e.isDegraded() }

// Ping exercises the shared store health for HealthProbe.
func (e *Engine) Ping(ctx context.Context) error {
	if e.shared == nil {
		return nil
	}
	err := e.shared.Ping(ctx).Err()
	e.setDegraded(err != nil)
	return err
}
