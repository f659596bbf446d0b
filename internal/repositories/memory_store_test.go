package repositories

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibe/internal/models"
)

func newUser(t *testing.T, s *MemoryStore, email string) *models.User {
	t.Helper()
	u := &models.User{FirstName: "Ana", LastName: "Lima", Email: email, PasswordHash: "$2a$x"}
	require.NoError(t, s.Create(context.Background(), u))
	return u
}

func TestMemoryStore_CreateDuplicateEmail(t *testing.T) {
	s := NewMemoryStore()
	newUser(t, s, "a@x.com")

	err := s.Create(context.Background(), &models.User{Email: "A@x.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	exists, err := s.EmailExists(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryStore_WithUserLockRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := newUser(t, s, "a@x.com")
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.WithUserLock(ctx, u.ID, func(tx VerificationTx) error {
		return tx.Insert(ctx, &models.EmailVerification{
			UserID: u.ID, Code: "111111", Token: "t1", CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute),
		})
	}))

	boom := errors.New("boom")
	err := s.WithUserLock(ctx, u.ID, func(tx VerificationTx) error {
		n, err := tx.DeleteUnconsumed(ctx, u.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rows := s.Verifications(u.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, "111111", rows[0].Code)
}

func TestMemoryStore_ConsumeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := newUser(t, s, "a@x.com")
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.WithUserLock(ctx, u.ID, func(tx VerificationTx) error {
		return tx.Insert(ctx, &models.EmailVerification{
			UserID: u.ID, Code: "222222", Token: "tok", CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute),
		})
	}))

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ConsumeByCode(ctx, u.ID, "222222", now.Add(time.Second))
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())

	verified, err := s.IsVerified(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, verified)

	_, ok, err := s.ConsumeByToken(ctx, "tok", now.Add(2*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_IsVerifiedUnknownUser(t *testing.T) {
	_, err := NewMemoryStore().IsVerified(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_RecoveryComplete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := newUser(t, s, "a@x.com")
	rec := s.Recoveries()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, rec.Create(ctx, &models.PasswordRecovery{
		UserID: u.ID, Email: u.Email, Code: "333333", Token: "rt",
		CreatedAt: now, ExpiresAt: now.Add(15 * time.Minute),
	}))

	got, err := rec.FindActiveByCode(ctx, "a@x.com", "333333", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "rt", got.Token)

	userID, err := rec.Complete(ctx, "rt", "$2a$new", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, u.ID, userID)

	_, err = rec.Complete(ctx, "rt", "$2a$again", now.Add(3*time.Minute))
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := s.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2a$new", stored.PasswordHash)
}
