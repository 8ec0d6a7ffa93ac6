// Package sessionstore implements the shared session store:
// create/load/touch/rotate/revoke over a shared-store-backed record with
// absolute and idle expiry and fingerprint binding. Records ride the
// pluggable state backend so every worker process sees the same sessions;
// record updates go through the backend's compare-and-swap so concurrent
// workers never silently overwrite each other. TokenIssuer mints
// offline-verifiable tokens bound to a session.
package sessionstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/aerosuite/platform/infrastructure/state"
)

// LoadResult enumerates the outcomes of Load.
type LoadResult int

const (
	LoadOK LoadResult = iota
	LoadExpired
	LoadUnknown
	LoadFingerprintMismatch
)

// Record is one session. Flags carries arbitrary session-scoped booleans
// (e.g. "mfa_verified").
type Record struct {
	SessionID       string
	PrincipalID     string
	IssuedAt        time.Time
	LastSeenAt      time.Time
	AbsoluteExpiry  time.Time
	FingerprintHash string
	Flags           map[string]bool
}

func (r Record) idleExpired(idleTTL time.Duration) bool {
	return time.Now().After(r.LastSeenAt.Add(idleTTL))
}

func (r Record) absoluteExpired() bool {
	return time.Now().After(r.AbsoluteExpiry)
}

// Config configures the store's TTLs.
type Config struct {
	AbsoluteTTL time.Duration
	IdleTTL     time.Duration
	Backend     state.PersistenceBackend
}

// Store is the shared session store.
type Store struct {
	backend     state.PersistenceBackend
	absoluteTTL time.Duration
	idleTTL     time.Duration

	mu             sync.Mutex // guards principalIndex only; record writes use CAS
	principalIndex map[string]map[string]struct{}
}

// New constructs a Store. A nil Backend defaults to an in-memory backend,
// useful for single-process deployments and tests.
func New(cfg Config) *Store {
	backend := cfg.Backend
	if backend == nil {
		backend = state.NewMemoryBackend()
	}
	return &Store{
		backend:        backend,
		absoluteTTL:    cfg.AbsoluteTTL,
		idleTTL:        cfg.IdleTTL,
		principalIndex: make(map[string]map[string]struct{}),
	}
}

// Fingerprint hashes stable client attributes (user agent, IP prefix, TLS
// JA3, ...) into the value stored on the session record.
func Fingerprint(attributes ...string) string {
	h, _ := blake2b.New256(nil)
	for _, a := range attributes {
		_, _ = h.Write([]byte(a))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func newSessionID() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (s *Store) key(sessionID string) string { return "session:" + sessionID }

// Create issues a new session for principalID bound to clientFingerprint.
func (s *Store) Create(ctx context.Context, principalID, clientFingerprint string) (Record, error) {
	now := time.Now()
	rec := Record{
		SessionID:       newSessionID(),
		PrincipalID:     principalID,
		IssuedAt:        now,
		LastSeenAt:      now,
		AbsoluteExpiry:  now.Add(s.absoluteTTL),
		FingerprintHash: clientFingerprint,
		Flags:           map[string]bool{},
	}
	if err := s.persist(ctx, rec); err != nil {
		return Record{}, err
	}
	s.indexPrincipal(principalID, rec.SessionID)
	return rec, nil
}

func (s *Store) persist(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.backend.Save(ctx, s.key(rec.SessionID), raw)
}

func (s *Store) indexPrincipal(principalID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principalIndex[principalID] == nil {
		s.principalIndex[principalID] = make(map[string]struct{})
	}
	s.principalIndex[principalID][sessionID] = struct{}{}
}

// Load fetches a session, validating fingerprint and expiry. A mismatched
// fingerprint revokes the session and returns LoadFingerprintMismatch, so
// a hijacked session id dies on first use.
func (s *Store) Load(ctx context.Context, sessionID, clientFingerprint string) (Record, LoadResult, error) {
	raw, err := s.backend.Load(ctx, s.key(sessionID))
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return Record{}, LoadUnknown, nil
		}
		return Record{}, LoadUnknown, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, LoadUnknown, err
	}

	if rec.FingerprintHash != "" && clientFingerprint != "" && rec.FingerprintHash != clientFingerprint {
		_ = s.Revoke(ctx, sessionID)
		return Record{}, LoadFingerprintMismatch, nil
	}

	if rec.absoluteExpired() || rec.idleExpired(s.idleTTL) {
		return Record{}, LoadExpired, nil
	}

	return rec, LoadOK, nil
}

// casAttempts bounds how often a record update retries after losing a
// compare-and-swap race before giving up.
const casAttempts = 4

// ErrUpdateConflict is returned when a record update keeps losing the
// compare-and-swap race; callers treat it like any other transient store
// failure.
var ErrUpdateConflict = errors.New("sessionstore: record update conflict")

// swap applies a conditional write through the backend's compare-and-swap
// when it offers one. A backend without the extension (single-process
// deployments with exclusive ownership of its data) degrades to a plain
// write.
func (s *Store) swap(ctx context.Context, key string, old, new []byte) (bool, error) {
	if cas, ok := s.backend.(state.CompareAndSwapper); ok {
		return cas.CompareAndSwap(ctx, key, old, new)
	}
	if new == nil {
		return true, s.backend.Delete(ctx, key)
	}
	return true, s.backend.Save(ctx, key, new)
}

// Touch updates LastSeenAt, durably, before returning. The write is a
// compare-and-swap against the loaded record so a concurrent Rotate or
// flag change is never overwritten; on conflict the touch reloads and
// retries.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	key := s.key(sessionID)
	for attempt := 0; attempt < casAttempts; attempt++ {
		old, err := s.backend.Load(ctx, key)
		if err != nil {
			return err
		}
		var rec Record
		if err := json.Unmarshal(old, &rec); err != nil {
			return err
		}
		rec.LastSeenAt = time.Now()
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		swapped, err := s.swap(ctx, key, old, raw)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
	}
	return ErrUpdateConflict
}

// Rotate issues a new session id for the same principal/fingerprint after a
// privilege change, and revokes the old id. Retiring the old record is a
// conditional delete, so of two racing rotations exactly one wins; the
// loser reloads and observes the id is gone.
func (s *Store) Rotate(ctx context.Context, sessionID string) (string, error) {
	oldKey := s.key(sessionID)
	for attempt := 0; attempt < casAttempts; attempt++ {
		old, err := s.backend.Load(ctx, oldKey)
		if err != nil {
			return "", err
		}
		var rec Record
		if err := json.Unmarshal(old, &rec); err != nil {
			return "", err
		}

		swapped, err := s.swap(ctx, oldKey, old, nil)
		if err != nil {
			return "", err
		}
		if !swapped {
			continue
		}

		newID := newSessionID()
		rec.SessionID = newID
		rec.LastSeenAt = time.Now()
		if err := s.persist(ctx, rec); err != nil {
			return "", err
		}
		s.indexPrincipal(rec.PrincipalID, newID)
		return newID, nil
	}
	return "", ErrUpdateConflict
}

// Revoke deletes a single session.
func (s *Store) Revoke(ctx context.Context, sessionID string) error {
	return s.backend.Delete(ctx, s.key(sessionID))
}

// RevokeAllFor revokes every session created for principalID.
func (s *Store) RevokeAllFor(ctx context.Context, principalID string) error {
	s.mu.Lock()
	ids := s.principalIndex[principalID]
	delete(s.principalIndex, principalID)
	s.mu.Unlock()

	for id := range ids {
		if err := s.Revoke(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
