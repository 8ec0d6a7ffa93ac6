// Package repository implements the persistence boundary for aggregates:
// a generic, cache-through store for any aggregate root. Aggregates are
// persisted as JSONB documents, one row per id, behind a typed Go API, so
// list/filter/projection logic is expressed once, generically, instead of
// per-aggregate SQL.
package repository

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/cacheengine"
	"github.com/aerosuite/platform/internal/logging"
)

// Entity is satisfied by a pointer to any aggregate root embedding
// aggregate.Root.
type Entity interface {
	GetID() string
	GetVersion() int64
	SetVersion(int64)
}

// Row is one stored record as the Store layer sees it: an opaque JSON
// document plus the optimistic-concurrency version it was written with.
type Row struct {
	ID      string
	Version int64
	Data    []byte
}

// Filter selects rows by evaluating a gjson predicate against the raw
// document; Match == nil selects every row.
type Filter struct {
	Match func(doc gjson.Result) bool
}

// ListOptions controls pagination, sort, and projection for FindAll.
type ListOptions struct {
	Skip       int
	Limit      int
	SortField  string // jsonpath-ish dotted field, e.g. "status"
	SortDesc   bool
	Projection []string // dotted field paths; empty = full entity
}

// Store is the raw persistence backend a Repository wraps: PostgresStore
// (see postgres.go), or MemoryStore (see memory.go) when no database is
// configured and in tests.
type Store interface {
	Get(ctx context.Context, id string) (Row, bool, error)
	List(ctx context.Context, filter Filter) ([]Row, error)
	Upsert(ctx context.Context, id string, data []byte, expectedVersion, newVersion int64) error
	Delete(ctx context.Context, id string) (bool, error)
}

// ErrStale is returned by Save when the optimistic-concurrency version
// token no longer matches the stored row.
var ErrStale = apperrors.New(apperrors.KindConflict, "entity was modified concurrently")

// Codec marshals/unmarshals T to/from the JSON document representation.
type Codec[T Entity] struct {
	Marshal   func(T) ([]byte, error)
	Unmarshal func([]byte) (T, error)
}

// JSONCodec builds a Codec using encoding/json and a zero-value factory for
// new instances.
func JSONCodec[T Entity](newT func() T) Codec[T] {
	return Codec[T]{
		Marshal: func(v T) ([]byte, error) { return json.Marshal(v) },
		Unmarshal: func(data []byte) (T, error) {
			v := newT()
			if err := json.Unmarshal(data, v); err != nil {
				var zero T
				return zero, err
			}
			return v, nil
		},
	}
}

// Repository wraps a Store with the cache engine: single-id lookups read
// through the ENTITY policy. Lists are not cached; FindAll, Count and
// Exists always read the store. Writes invalidate the entity's key and the
// resource's list tag.
type Repository[T Entity] struct {
	resource string
	store    Store
	cache    *cacheengine.Engine
	codec    Codec[T]
	log      *logging.Logger
}

// New constructs a Repository for the given resource name (used to
// namespace cache keys and tags).
func New[T Entity](resource string, store Store, cache *cacheengine.Engine, codec Codec[T], log *logging.Logger) *Repository[T] {
	return &Repository[T]{resource: resource, store: store, cache: cache, codec: codec, log: log}
}

func (r *Repository[T]) logQuery(ctx context.Context, name string, start time.Time, err error) {
	if r.log != nil {
		r.log.LogQuery(ctx, name, time.Since(start), err)
	}
}

// FindByID loads one entity, read-through cached under its entity key.
func (r *Repository[T]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	key := cacheengine.EntityKey(r.resource, id)

	if r.cache != nil {
		if v, ok := r.cache.Get(ctx, key); ok {
			raw, _ := json.Marshal(v)
			return r.codec.Unmarshal(raw)
		}
	}

	start := time.Now()
	row, found, err := r.store.Get(ctx, id)
	r.logQuery(ctx, "findById:"+r.resource, start, err)
	if err != nil {
		return zero, apperrors.Internal("repository findById failed", err)
	}
	if !found {
		return zero, apperrors.NotFound(r.resource, id)
	}

	entity, err := r.codec.Unmarshal(row.Data)
	if err != nil {
		return zero, apperrors.Internal("repository decode failed", err)
	}
	entity.SetVersion(row.Version)

	if r.cache != nil {
		var v any
		_ = json.Unmarshal(row.Data, &v)
		_ = r.cache.Set(ctx, key, v, cacheengine.SetOptions{
			Policy:    cacheengine.PolicyEntity,
			EntityTag: cacheengine.EntityTag(r.resource, id),
		})
	}
	return entity, nil
}

// Count returns the number of rows matching filter.
func (r *Repository[T]) Count(ctx context.Context, filter Filter) (int, error) {
	start := time.Now()
	rows, err := r.store.List(ctx, filter)
	r.logQuery(ctx, "count:"+r.resource, start, err)
	if err != nil {
		return 0, apperrors.Internal("repository count failed", err)
	}
	return len(rows), nil
}

// Exists reports whether any row matches filter.
func (r *Repository[T]) Exists(ctx context.Context, filter Filter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

// FindAll lists entities matching filter, applying sort/pagination and, if
// opts.Projection is non-empty, returning a field-projected map instead of
// the full entity, which every list path supports.
func (r *Repository[T]) FindAll(ctx context.Context, filter Filter, opts ListOptions) ([]T, []map[string]any, error) {
	start := time.Now()
	rows, err := r.store.List(ctx, filter)
	r.logQuery(ctx, "findAll:"+r.resource, start, err)
	if err != nil {
		return nil, nil, apperrors.Internal("repository findAll failed", err)
	}

	if opts.SortField != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			a := gjson.GetBytes(rows[i].Data, opts.SortField).String()
			b := gjson.GetBytes(rows[j].Data, opts.SortField).String()
			if opts.SortDesc {
				return a > b
			}
			return a < b
		})
	}

	lo, hi := paginate(len(rows), opts.Skip, opts.Limit)
	rows = rows[lo:hi]

	if len(opts.Projection) > 0 {
		projected := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			projected = append(projected, project(row.Data, opts.Projection))
		}
		return nil, projected, nil
	}

	entities := make([]T, 0, len(rows))
	for _, row := range rows {
		entity, err := r.codec.Unmarshal(row.Data)
		if err != nil {
			return nil, nil, apperrors.Internal("repository decode failed", err)
		}
		entity.SetVersion(row.Version)
		entities = append(entities, entity)
	}
	return entities, nil, nil
}

func paginate(n, skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if skip > n {
		skip = n
	}
	end := n
	if limit > 0 && skip+limit < n {
		end = skip + limit
	}
	return skip, end
}

func project(raw []byte, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	doc := string(raw)
	var parsed any
	_ = json.Unmarshal(raw, &parsed)
	for _, field := range fields {
		if v, err := jsonpath.Get("$."+field, parsed); err == nil {
			out[field] = v
			continue
		}
		out[field] = gjson.Get(doc, field).Value()
	}
	return out
}

// Save creates or updates entity. On update, the in-memory Version must
// match the stored version or ErrStale is returned (the
// optimistic-concurrency linearization). extraTags are additional cache
// tags to invalidate alongside the entity's own key (e.g. status/category
// facets the caller knows changed).
func (r *Repository[T]) Save(ctx context.Context, entity T, extraTags ...string) (T, error) {
	var zero T
	data, err := r.codec.Marshal(entity)
	if err != nil {
		return zero, apperrors.Internal("repository encode failed", err)
	}

	newVersion := entity.GetVersion() + 1
	start := time.Now()
	err = r.store.Upsert(ctx, entity.GetID(), data, entity.GetVersion(), newVersion)
	r.logQuery(ctx, "save:"+r.resource, start, err)
	if err != nil {
		if err == ErrStale {
			return zero, ErrStale
		}
		return zero, apperrors.Internal("repository save failed", err)
	}
	entity.SetVersion(newVersion)

	if r.cache != nil {
		r.cache.InvalidateEntity(ctx, cacheengine.EntityTag(r.resource, entity.GetID()),
			append([]string{cacheengine.ListTag(r.resource)}, extraTags...)...)
	}
	return entity, nil
}

// Delete removes the row and invalidates its caches.
func (r *Repository[T]) Delete(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	ok, err := r.store.Delete(ctx, id)
	r.logQuery(ctx, "delete:"+r.resource, start, err)
	if err != nil {
		return false, apperrors.Internal("repository delete failed", err)
	}
	if r.cache != nil {
		r.cache.InvalidateEntity(ctx, cacheengine.EntityTag(r.resource, id), cacheengine.ListTag(r.resource))
	}
	return ok, nil
}

// FieldEquals builds a Filter matching rows whose field equals value.
func FieldEquals(field, value string) Filter {
	return Filter{Match: func(doc gjson.Result) bool { return doc.Get(field).String() == value }}
}

// NoFilter matches every row.
func NoFilter() Filter { return Filter{} }
