package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibe/internal/models"
	"vibe/internal/repositories"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// At выставляет время как смещение от t0.
func (c *fakeClock) At(offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t0.Add(offset)
}

// seqSecrets выдаёт предсказуемые, но уникальные коды и токены.
type seqSecrets struct {
	n       atomic.Int64
	failing bool
}

func (s *seqSecrets) NewCode() (string, error) {
	if s.failing {
		return "", errors.New("entropy exhausted")
	}
	return strconv.FormatInt(100000+s.n.Add(1), 10), nil
}

func (s *seqSecrets) NewToken() (string, error) {
	return fmt.Sprintf("%064x", s.n.Add(1)), nil
}

type ledgerFixture struct {
	store  *repositories.MemoryStore
	clock  *fakeClock
	ledger *VerificationLedger
}

func newLedgerFixture(t *testing.T, policy LedgerPolicy) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{store: repositories.NewMemoryStore(), clock: newFakeClock()}
	f.ledger = NewVerificationLedger(f.store, &seqSecrets{}, f.clock.Now, policy, nil)
	return f
}

func (f *ledgerFixture) user(t *testing.T, email string) *models.User {
	t.Helper()
	u := &models.User{FirstName: "Ana", LastName: "Lima", Email: email}
	require.NoError(t, f.store.Create(context.Background(), u))
	return u
}

func TestLedger_IssueProducesWellFormedChallenge(t *testing.T) {
	store := repositories.NewMemoryStore()
	clock := newFakeClock()
	ledger := NewVerificationLedger(store, RandomSecrets(), clock.Now, DefaultLedgerPolicy(), nil)

	c, err := ledger.Issue(context.Background(), 7, "a@x.com")
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[1-9][0-9]{5}$`), c.Code)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), c.Token)
	assert.Equal(t, t0, c.CreatedAt)
	assert.Equal(t, t0.Add(5*time.Minute), c.ExpiresAt)
	assert.Equal(t, 1, c.Attempts)
	assert.False(t, c.Consumed)
	assert.Equal(t, "a@x.com", c.Email)
}

func TestLedger_SixthIssueInWindowIsRateLimited(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, DefaultLedgerPolicy())

	for i := 0; i < 5; i++ {
		f.clock.At(time.Duration(i) * 61 * time.Second)
		_, err := f.ledger.Issue(ctx, 1, "a@x.com")
		require.NoError(t, err, "issue #%d", i+1)
	}

	f.clock.At(5 * 61 * time.Second)
	_, err := f.ledger.Issue(ctx, 1, "a@x.com")
	assert.ErrorIs(t, err, ErrRateLimited)

	// первая выдача выходит из часового окна
	f.clock.At(time.Hour + time.Second)
	_, err = f.ledger.Issue(ctx, 1, "a@x.com")
	assert.NoError(t, err)
}

func TestLedger_RateLimitSurvivesInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, DefaultLedgerPolicy())

	for i := 0; i < 5; i++ {
		f.clock.At(time.Duration(i) * 2 * time.Minute)
		_, err := f.ledger.Issue(ctx, 1, "a@x.com")
		require.NoError(t, err)
	}
	// в таблице осталась только последняя запись, журнал выдач помнит все пять
	assert.Len(t, f.store.Verifications(1), 1)

	f.clock.At(11 * time.Minute)
	_, err := f.ledger.Issue(ctx, 1, "a@x.com")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestLedger_CooldownScenario(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, DefaultLedgerPolicy())
	u := f.user(t, "one@x.com")

	first, err := f.ledger.Issue(ctx, u.ID, u.Email)
	require.NoError(t, err)

	f.clock.At(30 * time.Second)
	_, err = f.ledger.Issue(ctx, u.ID, u.Email)
	require.ErrorIs(t, err, ErrCooldown)
	var cd *CooldownError
	require.ErrorAs(t, err, &cd)
	assert.Equal(t, 30, cd.RemainingSeconds)

	f.clock.At(61 * time.Second)
	second, err := f.ledger.Issue(ctx, u.ID, u.Email)
	require.NoError(t, err)
	assert.NotEqual(t, first.Code, second.Code)

	assert.ErrorIs(t, f.ledger.ConsumeByCode(ctx, u.ID, first.Code), ErrInvalidChallenge)
	_, err = f.ledger.ConsumeByToken(ctx, first.Token)
	assert.ErrorIs(t, err, ErrInvalidChallenge)
	assert.NoError(t, f.ledger.ConsumeByCode(ctx, u.ID, second.Code))
}

func TestLedger_CooldownRemainingTruncatesElapsed(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, DefaultLedgerPolicy())

	_, err := f.ledger.Issue(ctx, 1, "a@x.com")
	require.NoError(t, err)

	f.clock.At(59*time.Second + 900*time.Millisecond)
	_, err = f.ledger.Issue(ctx, 1, "a@x.com")
	var cd *CooldownError
	require.ErrorAs(t, err, &cd)
	assert.Equal(t, 1, cd.RemainingSeconds)
}

func TestLedger_ConsumeByCodeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, DefaultLedgerPolicy())
	u := &models.User{FirstName: "A", LastName: "B", Email: "a@x.com"}
	require.NoError(t, f.store.Create(ctx, u))

	c1, err := f.ledger.Issue(ctx, u.ID, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(300*time.Second), c1.ExpiresAt)

	verified, err := f.ledger.StatusOf(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, verified)

	f.clock.At(100 * time.Second)
	require.NoError(t, f.ledger.ConsumeByCode(ctx, u.ID, c1.Code))

	verified, err = f.ledger.StatusOf(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, verified)

	f.clock.At(150 * time.Second)
	assert.ErrorIs(t, f.ledger.ConsumeByCode(ctx, u.ID, c1.Code), ErrInvalidChallenge)
	_, err = f.ledger.ConsumeByToken(ctx, c1.Token)
	assert.ErrorIs(t, err, ErrInvalidChallenge)
}

func TestLedger_ConsumeRejectsWrongOwnerOrCode(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, DefaultLedgerPolicy())
	a := f.user(t, "a@x.com")
	b := f.user(t, "b@x.com")

	c, err := f.ledger.Issue(ctx, a.ID, a.Email)
	require.NoError(t, err)

	assert.ErrorIs(t, f.ledger.ConsumeByCode(ctx, b.ID, c.Code), ErrInvalidChallenge)
	assert.ErrorIs(t, f.ledger.ConsumeByCode(ctx, a.ID, "000000"), ErrInvalidChallenge)
	assert.ErrorIs(t, f.ledger.ConsumeByCode(ctx, a.ID, "  "), ErrInvalidChallenge)
	_, err = f.ledger.ConsumeByToken(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidChallenge)

	ok, err := f.ledger.StatusOf(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedger_ConsumeAfterExpiry(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, DefaultLedgerPolicy())
	u := f.user(t, "a@x.com")

	c, err := f.ledger.Issue(ctx, u.ID, u.Email)
	require.NoError(t, err)

	f.clock.At(5*time.Minute + time.Second)
	assert.ErrorIs(t, f.ledger.ConsumeByCode(ctx, u.ID, c.Code), ErrInvalidChallenge)
	_, err = f.ledger.ConsumeByToken(ctx, c.Token)
	assert.ErrorIs(t, err, ErrInvalidChallenge)

	// запись осталась, просто больше не подходит
	rows := f.store.Verifications(u.ID)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Consumed)
}

func TestLedger_ConsumeAtExactExpiryIsInvalid(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, DefaultLedgerPolicy())
	u := f.user(t, "a@x.com")

	c, err := f.ledger.Issue(ctx, u.ID, u.Email)
	require.NoError(t, err)

	f.clock.At(5 * time.Minute)
	assert.ErrorIs(t, f.ledger.ConsumeByCode(ctx, u.ID, c.Code), ErrInvalidChallenge)
}

func TestLedger_ConsumeByTokenReturnsOwner(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, DefaultLedgerPolicy())
	u := f.user(t, "a@x.com")

	c, err := f.ledger.Issue(ctx, u.ID, u.Email)
	require.NoError(t, err)

	f.clock.At(4 * time.Minute)
	owner, err := f.ledger.ConsumeByToken(ctx, c.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, owner)

	verified, err := f.ledger.StatusOf(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, verified)

	// код той же записи тоже больше не работает
	assert.ErrorIs(t, f.ledger.ConsumeByCode(ctx, u.ID, c.Code), ErrInvalidChallenge)
}

func TestLedger_ConsumedChallengeSurvivesReissue(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, DefaultLedgerPolicy())
	u := f.user(t, "a@x.com")

	c, err := f.ledger.Issue(ctx, u.ID, u.Email)
	require.NoError(t, err)
	require.NoError(t, f.ledger.ConsumeByCode(ctx, u.ID, c.Code))

	f.clock.At(2 * time.Minute)
	_, err = f.ledger.Issue(ctx, u.ID, u.Email)
	require.NoError(t, err)

	rows := f.store.Verifications(u.ID)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Consumed)
	assert.NotNil(t, rows[0].ConsumedAt)
	assert.False(t, rows[1].Consumed)
}

func TestLedger_StatusOfUnknownUser(t *testing.T) {
	f := newLedgerFixture(t, DefaultLedgerPolicy())
	_, err := f.ledger.StatusOf(context.Background(), 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLedger_ConcurrentIssueRespectsHourlyLimit(t *testing.T) {
	policy := DefaultLedgerPolicy()
	policy.Cooldown = 0
	f := newLedgerFixture(t, policy)

	const n = 24
	var (
		wg          sync.WaitGroup
		ok, limited atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Issue(context.Background(), 5, "a@x.com")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrRateLimited):
				limited.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, ok.Load())
	assert.EqualValues(t, n-5, limited.Load())
	assert.Len(t, f.store.Verifications(5), 1, "only the latest challenge stays active")
}

func TestLedger_ConcurrentIssueWithCooldownAllowsOne(t *testing.T) {
	f := newLedgerFixture(t, DefaultLedgerPolicy())

	const n = 16
	var (
		wg        sync.WaitGroup
		ok, cooling atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Issue(context.Background(), 9, "a@x.com")
			if err == nil {
				ok.Add(1)
				return
			}
			if errors.Is(err, ErrCooldown) {
				cooling.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, n-1, cooling.Load())
}

func TestLedger_ConcurrentConsumeHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, DefaultLedgerPolicy())
	u := f.user(t, "a@x.com")

	c, err := f.ledger.Issue(ctx, u.ID, u.Email)
	require.NoError(t, err)

	var (
		wg          sync.WaitGroup
		ok, invalid atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(byToken bool) {
			defer wg.Done()
			var err error
			if byToken {
				_, err = f.ledger.ConsumeByToken(ctx, c.Token)
			} else {
				err = f.ledger.ConsumeByCode(ctx, u.ID, c.Code)
			}
			if err == nil {
				ok.Add(1)
			} else if errors.Is(err, ErrInvalidChallenge) {
				invalid.Add(1)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, 19, invalid.Load())
}

// failingInsertStore отдаёт транзакцию, в которой Insert всегда падает.
type failingInsertStore struct {
	*repositories.MemoryStore
}

type failingInsertTx struct {
	repositories.VerificationTx
}

func (failingInsertTx) Insert(ctx context.Context, v *models.EmailVerification) error {
	return errors.New("connection reset")
}

func (s failingInsertStore) WithUserLock(ctx context.Context, userID int, fn func(tx repositories.VerificationTx) error) error {
	return s.MemoryStore.WithUserLock(ctx, userID, func(tx repositories.VerificationTx) error {
		return fn(failingInsertTx{tx})
	})
}

func TestLedger_FailedInsertKeepsPreviousChallenge(t *testing.T) {
	ctx := context.Background()
	store := repositories.NewMemoryStore()
	clock := newFakeClock()
	u := &models.User{FirstName: "A", LastName: "B", Email: "a@x.com"}
	require.NoError(t, store.Create(ctx, u))

	good := NewVerificationLedger(store, &seqSecrets{}, clock.Now, DefaultLedgerPolicy(), nil)
	c, err := good.Issue(ctx, u.ID, u.Email)
	require.NoError(t, err)

	clock.At(2 * time.Minute)
	broken := NewVerificationLedger(failingInsertStore{store}, &seqSecrets{}, clock.Now, DefaultLedgerPolicy(), nil)
	_, err = broken.Issue(ctx, u.ID, u.Email)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.NotErrorIs(t, err, ErrCooldown)

	// удаление откатилось вместе с неудачной вставкой
	assert.NoError(t, good.ConsumeByCode(ctx, u.ID, c.Code))
}

func TestLedger_SecretFailureLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	store := repositories.NewMemoryStore()
	clock := newFakeClock()

	first, err := NewVerificationLedger(store, &seqSecrets{}, clock.Now, DefaultLedgerPolicy(), nil).
		Issue(ctx, 3, "a@x.com")
	require.NoError(t, err)

	clock.At(2 * time.Minute)
	_, err = NewVerificationLedger(store, &seqSecrets{failing: true}, clock.Now, DefaultLedgerPolicy(), nil).
		Issue(ctx, 3, "a@x.com")
	require.Error(t, err)

	rows := store.Verifications(3)
	require.Len(t, rows, 1)
	assert.Equal(t, first.Code, rows[0].Code)
}
