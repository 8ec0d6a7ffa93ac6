// Package registry implements the model registry: named models with
// immutable, monotonically numbered versions that move through the draft ->
// staging -> production -> archived lifecycle. A model holds at most one
// production and at most one staging version at a time; promoting a new
// occupant archives the previous one. All metadata is durable through the
// same document store the domain repositories use.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/repository"
)

// Stage is the lifecycle label attached to a model version.
type Stage string

const (
	StageDraft      Stage = "draft"
	StageStaging    Stage = "staging"
	StageProduction Stage = "production"
	StageArchived   Stage = "archived"
)

// ValidStage reports whether s names a known stage.
func ValidStage(s Stage) bool {
	switch s {
	case StageDraft, StageStaging, StageProduction, StageArchived:
		return true
	}
	return false
}

// Version is one immutable version record. Only Stage (and its transition
// timestamp) ever changes after creation.
type Version struct {
	ID             string         `json:"id"`
	Number         int            `json:"number"`
	ModelID        string         `json:"modelId"`
	Stage          Stage          `json:"stage"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	TransitionedAt time.Time      `json:"transitionedAt"`
}

// Model is one named registry entry and the document persisted per name.
type Model struct {
	Name      string         `json:"name"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Versions  []*Version     `json:"versions"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`

	version int64 // store concurrency token, not serialized
}

// Clone deep-copies m so callers never alias registry-internal state.
func (m *Model) Clone() *Model {
	raw, _ := json.Marshal(m)
	out := &Model{}
	_ = json.Unmarshal(raw, out)
	out.version = m.version
	return out
}

func (m *Model) findVersion(number int) *Version {
	for _, v := range m.Versions {
		if v.Number == number {
			return v
		}
	}
	return nil
}

func (m *Model) currentIn(stage Stage) *Version {
	for _, v := range m.Versions {
		if v.Stage == stage {
			return v
		}
	}
	return nil
}

// Registry stores models durably and serializes stage transitions per model
// name so the one-production/one-staging invariant holds under concurrency.
type Registry struct {
	store repository.Store
	log   *zap.Logger

	mu    sync.Mutex
	names map[string]*sync.Mutex
}

// New constructs a Registry over the given document store.
func New(store repository.Store, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{store: store, log: log, names: make(map[string]*sync.Mutex)}
}

// nameLock returns the mutex serializing operations on one model name.
func (r *Registry) nameLock(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names[name] == nil {
		r.names[name] = &sync.Mutex{}
	}
	return r.names[name]
}

func (r *Registry) load(ctx context.Context, name string) (*Model, error) {
	row, ok, err := r.store.Get(ctx, name)
	if err != nil {
		return nil, apperrors.DependencyUnavailable("model store", err)
	}
	if !ok {
		return nil, apperrors.NotFound("model", name)
	}
	m := &Model{}
	if err := json.Unmarshal(row.Data, m); err != nil {
		return nil, apperrors.Internal("decoding model record", err)
	}
	m.version = row.Version
	return m, nil
}

func (r *Registry) save(ctx context.Context, m *Model) error {
	m.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(m)
	if err != nil {
		return apperrors.Internal("encoding model record", err)
	}
	if err := r.store.Upsert(ctx, m.Name, raw, m.version, m.version+1); err != nil {
		return apperrors.DependencyUnavailable("model store", err)
	}
	m.version++
	return nil
}

// Register creates the named model if it does not exist yet. Re-registering
// an existing name is a no-op that returns the stored model unchanged.
func (r *Registry) Register(ctx context.Context, name string, metadata map[string]any) (*Model, error) {
	if name == "" {
		return nil, apperrors.Validation("model name is required")
	}
	lock := r.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	existing, err := r.load(ctx, name)
	if err == nil {
		return existing.Clone(), nil
	}
	if apperrors.KindOf(err) != apperrors.KindNotFound {
		return nil, err
	}

	now := time.Now().UTC()
	m := &Model{Name: name, Metadata: metadata, CreatedAt: now, UpdatedAt: now}
	if err := r.save(ctx, m); err != nil {
		return nil, err
	}
	r.log.Info("model registered", zap.String("model", name))
	return m.Clone(), nil
}

// AddVersion appends a new version with the next monotonic number, starting
// in the draft stage.
func (r *Registry) AddVersion(ctx context.Context, name, modelID string, metadata map[string]any) (*Version, error) {
	if modelID == "" {
		return nil, apperrors.Validation("model artifact id is required")
	}
	lock := r.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	m, err := r.load(ctx, name)
	if err != nil {
		return nil, err
	}

	next := 1
	for _, v := range m.Versions {
		if v.Number >= next {
			next = v.Number + 1
		}
	}
	now := time.Now().UTC()
	v := &Version{
		ID:             uuid.New().String(),
		Number:         next,
		ModelID:        modelID,
		Stage:          StageDraft,
		Metadata:       metadata,
		CreatedAt:      now,
		TransitionedAt: now,
	}
	m.Versions = append(m.Versions, v)
	if err := r.save(ctx, m); err != nil {
		return nil, err
	}
	r.log.Info("model version added",
		zap.String("model", name), zap.Int("version", v.Number), zap.String("artifact", modelID))
	out := *v
	return &out, nil
}

// Transition moves one version to the given stage. Promoting to production
// or staging archives the current occupant of that stage first, so the
// at-most-one invariant holds after every call.
func (r *Registry) Transition(ctx context.Context, name string, number int, stage Stage) (*Model, error) {
	if !ValidStage(stage) {
		return nil, apperrors.Validation("unknown stage").WithDetail("stage", string(stage))
	}
	lock := r.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	m, err := r.load(ctx, name)
	if err != nil {
		return nil, err
	}
	v := m.findVersion(number)
	if v == nil {
		return nil, apperrors.NotFound("model version", name).WithDetail("version", number)
	}

	now := time.Now().UTC()
	if stage == StageProduction || stage == StageStaging {
		if cur := m.currentIn(stage); cur != nil && cur.Number != number {
			cur.Stage = StageArchived
			cur.TransitionedAt = now
			r.log.Info("model version archived by promotion",
				zap.String("model", name), zap.Int("version", cur.Number), zap.String("stage", string(stage)))
		}
	}
	v.Stage = stage
	v.TransitionedAt = now

	if err := r.save(ctx, m); err != nil {
		return nil, err
	}
	r.log.Info("model version transitioned",
		zap.String("model", name), zap.Int("version", number), zap.String("stage", string(stage)))
	return m.Clone(), nil
}

// Get returns the named model with all its versions.
func (r *Registry) Get(ctx context.Context, name string) (*Model, error) {
	m, err := r.load(ctx, name)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

// GetProduction returns the current production version, or notFound.
func (r *Registry) GetProduction(ctx context.Context, name string) (*Version, error) {
	return r.getStage(ctx, name, StageProduction)
}

// GetStaging returns the current staging version, or notFound.
func (r *Registry) GetStaging(ctx context.Context, name string) (*Version, error) {
	return r.getStage(ctx, name, StageStaging)
}

func (r *Registry) getStage(ctx context.Context, name string, stage Stage) (*Version, error) {
	m, err := r.load(ctx, name)
	if err != nil {
		return nil, err
	}
	if v := m.currentIn(stage); v != nil {
		out := *v
		return &out, nil
	}
	return nil, apperrors.NotFound("model version", name).WithDetail("stage", string(stage))
}

// ListVersions returns every version of the named model, oldest first.
func (r *Registry) ListVersions(ctx context.Context, name string) ([]*Version, error) {
	m, err := r.load(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]*Version, 0, len(m.Versions))
	for _, v := range m.Versions {
		c := *v
		out = append(out, &c)
	}
	return out, nil
}

// ListNames returns every registered model name.
func (r *Registry) ListNames(ctx context.Context) ([]string, error) {
	rows, err := r.store.List(ctx, repository.NoFilter())
	if err != nil {
		return nil, apperrors.DependencyUnavailable("model store", err)
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.ID)
	}
	return names, nil
}

// VersionsWhere selects versions whose stored metadata matches want at the
// given gjson path, e.g. VersionsWhere(ctx, "fraud", "framework", "onnx").
func (r *Registry) VersionsWhere(ctx context.Context, name, path, want string) ([]*Version, error) {
	m, err := r.load(ctx, name)
	if err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(m)
	var out []*Version
	for i, v := range m.Versions {
		res := gjson.GetBytes(raw, fmt.Sprintf("versions.%d.metadata.%s", i, path))
		if res.Exists() && res.String() == want {
			c := *v
			out = append(out, &c)
		}
	}
	return out, nil
}
