package sessionstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosuite/platform/internal/sessionstore"
)

func newStore() *sessionstore.Store {
	return sessionstore.New(sessionstore.Config{
		AbsoluteTTL: time.Hour,
		IdleTTL:     15 * time.Minute,
	})
}

func TestStore_CreateAndLoad(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	fp := sessionstore.Fingerprint("ua-1", "10.0.0.1")

	rec, err := s.Create(ctx, "user-1", fp)
	require.NoError(t, err)
	require.NotEmpty(t, rec.SessionID)

	loaded, result, err := s.Load(ctx, rec.SessionID, fp)
	require.NoError(t, err)
	assert.Equal(t, sessionstore.LoadOK, result)
	assert.Equal(t, "user-1", loaded.PrincipalID)
}

func TestStore_FingerprintMismatchRevokes(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	fp := sessionstore.Fingerprint("ua-1", "10.0.0.1")

	rec, err := s.Create(ctx, "user-1", fp)
	require.NoError(t, err)

	_, result, err := s.Load(ctx, rec.SessionID, sessionstore.Fingerprint("ua-2", "10.0.0.2"))
	require.NoError(t, err)
	assert.Equal(t, sessionstore.LoadFingerprintMismatch, result)

	_, result2, err := s.Load(ctx, rec.SessionID, fp)
	require.NoError(t, err)
	assert.Equal(t, sessionstore.LoadUnknown, result2)
}

func TestStore_RotateIssuesNewIDAndRevokesOld(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	fp := sessionstore.Fingerprint("ua-1")

	rec, err := s.Create(ctx, "user-1", fp)
	require.NoError(t, err)

	newID, err := s.Rotate(ctx, rec.SessionID)
	require.NoError(t, err)
	assert.NotEqual(t, rec.SessionID, newID)

	_, result, err := s.Load(ctx, rec.SessionID, fp)
	require.NoError(t, err)
	assert.Equal(t, sessionstore.LoadUnknown, result)

	_, result2, err := s.Load(ctx, newID, fp)
	require.NoError(t, err)
	assert.Equal(t, sessionstore.LoadOK, result2)
}

func TestStore_RevokeAllForPrincipal(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	fp := sessionstore.Fingerprint("ua-1")

	recA, err := s.Create(ctx, "user-1", fp)
	require.NoError(t, err)
	recB, err := s.Create(ctx, "user-1", fp)
	require.NoError(t, err)

	require.NoError(t, s.RevokeAllFor(ctx, "user-1"))

	_, resultA, _ := s.Load(ctx, recA.SessionID, fp)
	_, resultB, _ := s.Load(ctx, recB.SessionID, fp)
	assert.Equal(t, sessionstore.LoadUnknown, resultA)
	assert.Equal(t, sessionstore.LoadUnknown, resultB)
}

func TestStore_IdleExpiryDeniesLoad(t *testing.T) {
	s := sessionstore.New(sessionstore.Config{AbsoluteTTL: time.Hour, IdleTTL: -time.Second})
	ctx := context.Background()
	fp := sessionstore.Fingerprint("ua-1")

	rec, err := s.Create(ctx, "user-1", fp)
	require.NoError(t, err)

	_, result, err := s.Load(ctx, rec.SessionID, fp)
	require.NoError(t, err)
	assert.Equal(t, sessionstore.LoadExpired, result)
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := sessionstore.NewTokenIssuer("test-secret", time.Minute)
	rec := sessionstore.Record{SessionID: "sess-1", PrincipalID: "user-1"}

	token, err := issuer.Issue(rec)
	require.NoError(t, err)

	principal, session, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", principal)
	assert.Equal(t, "sess-1", session)
}

func TestTokenIssuer_RejectsWrongSecret(t *testing.T) {
	token, err := sessionstore.NewTokenIssuer("secret-a", time.Minute).Issue(sessionstore.Record{SessionID: "s", PrincipalID: "p"})
	require.NoError(t, err)

	_, _, err = sessionstore.NewTokenIssuer("secret-b", time.Minute).Verify(token)
	require.Error(t, err)
}

func TestTouch_AfterRotateOldIDFails(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	rec, err := store.Create(ctx, "user-1", "fp")
	require.NoError(t, err)

	_, err = store.Rotate(ctx, rec.SessionID)
	require.NoError(t, err)

	err = store.Touch(ctx, rec.SessionID)
	require.Error(t, err, "the retired id no longer accepts updates")
}

func TestTouch_ConcurrentUpdatesAllLand(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	rec, err := store.Create(ctx, "user-1", "fp")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Touch(ctx, rec.SessionID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err, "racing touches retry on conflict instead of failing")
	}

	_, result, err := store.Load(ctx, rec.SessionID, "fp")
	require.NoError(t, err)
	assert.Equal(t, sessionstore.LoadOK, result)
}

func TestRotate_ConcurrentRotationsSingleWinner(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	rec, err := store.Create(ctx, "user-1", "fp")
	require.NoError(t, err)

	var wg sync.WaitGroup
	ids := make(chan string, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if id, err := store.Rotate(ctx, rec.SessionID); err == nil {
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	var winners []string
	for id := range ids {
		winners = append(winners, id)
	}
	require.Len(t, winners, 1, "exactly one rotation may retire the old id")

	_, result, err := store.Load(ctx, winners[0], "fp")
	require.NoError(t, err)
	assert.Equal(t, sessionstore.LoadOK, result)
}
