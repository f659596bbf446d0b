package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"vibe/internal/models"
)

// MemoryStore: хранилище в памяти процесса с той же семантикой, что и
// PostgreSQL-репозитории: пользователи, коды подтверждения e-mail и
// восстановление пароля. Все операции сериализуются одним мьютексом.
type MemoryStore struct {
	mu sync.Mutex

	nextUserID      int
	nextChallengeID int64
	nextRecoveryID  int64
	users           map[int]*models.User
	verifications   []models.EmailVerification
	issuances       map[int][]time.Time
	recoveries      []models.PasswordRecovery
}

var (
	_ UserRepository              = (*MemoryStore)(nil)
	_ EmailVerificationRepository = (*MemoryStore)(nil)
	_ PasswordRecoveryRepository  = memoryRecoveries{}
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int]*models.User),
		issuances: make(map[int][]time.Time),
	}
}

// ===== users =====

func (s *MemoryStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrEmailTaken
		}
	}
	s.nextUserID++
	user.ID = s.nextUserID
	user.IsActive = true
	user.IsVerified = false
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.LastSeen = user.CreatedAt

	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id int) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := s.GetByEmail(ctx, email)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *MemoryStore) TouchLastSeen(ctx context.Context, id int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[id]; ok {
		u.LastSeen = at
	}
	return nil
}

// SetActive: для тестов и административных сценариев.
func (s *MemoryStore) SetActive(id int, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[id]; ok {
		u.IsActive = active
	}
}

// ===== email verifications =====

// WithUserLock держит мьютекс хранилища на всё время fn, поэтому fn не должна
// вызывать методы MemoryStore напрямую, только методы tx.
func (s *MemoryStore) WithUserLock(ctx context.Context, userID int, fn func(tx VerificationTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryVerificationTx{
		verifications: append([]models.EmailVerification(nil), s.verifications...),
		issuances:     make(map[int][]time.Time, len(s.issuances)),
		nextID:        s.nextChallengeID,
	}
	for id, ts := range s.issuances {
		tx.issuances[id] = append([]time.Time(nil), ts...)
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.verifications = tx.verifications
	s.issuances = tx.issuances
	s.nextChallengeID = tx.nextID
	return nil
}

type memoryVerificationTx struct {
	verifications []models.EmailVerification
	issuances     map[int][]time.Time
	nextID        int64
}

func (t *memoryVerificationTx) CountIssuedSince(ctx context.Context, userID int, since time.Time) (int, error) {
	n := 0
	for _, at := range t.issuances[userID] {
		if at.After(since) {
			n++
		}
	}
	return n, nil
}

func (t *memoryVerificationTx) LatestIssuedSince(ctx context.Context, userID int, since time.Time) (time.Time, bool, error) {
	var (
		latest time.Time
		found  bool
	)
	for _, at := range t.issuances[userID] {
		if at.After(since) && (!found || at.After(latest)) {
			latest, found = at, true
		}
	}
	return latest, found, nil
}

func (t *memoryVerificationTx) DeleteUnconsumed(ctx context.Context, userID int) (int64, error) {
	kept := t.verifications[:0:0]
	var deleted int64
	for _, v := range t.verifications {
		if v.UserID == userID && !v.Consumed {
			deleted++
			continue
		}
		kept = append(kept, v)
	}
	t.verifications = kept
	return deleted, nil
}

func (t *memoryVerificationTx) Insert(ctx context.Context, v *models.EmailVerification) error {
	t.nextID++
	v.ID = t.nextID
	t.verifications = append(t.verifications, *v)
	t.issuances[v.UserID] = append(t.issuances[v.UserID], v.CreatedAt)
	return nil
}

func (s *MemoryStore) ConsumeByCode(ctx context.Context, userID int, code string, now time.Time) (bool, error) {
	_, ok := s.consume(now, func(v *models.EmailVerification) bool {
		return v.UserID == userID && v.Code == code
	})
	return ok, nil
}

func (s *MemoryStore) ConsumeByToken(ctx context.Context, token string, now time.Time) (int, bool, error) {
	userID, ok := s.consume(now, func(v *models.EmailVerification) bool {
		return v.Token == token
	})
	return userID, ok, nil
}

func (s *MemoryStore) consume(now time.Time, match func(v *models.EmailVerification) bool) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.verifications {
		v := &s.verifications[i]
		if v.Consumed || !v.ExpiresAt.After(now) || !match(v) {
			continue
		}
		if idx < 0 || v.CreatedAt.After(s.verifications[idx].CreatedAt) {
			idx = i
		}
	}
	if idx < 0 {
		return 0, false
	}

	v := &s.verifications[idx]
	at := now
	v.Consumed = true
	v.ConsumedAt = &at

	if u, ok := s.users[v.UserID]; ok {
		u.IsVerified = true
		if u.VerifiedAt == nil {
			u.VerifiedAt = &at
		}
	}
	return v.UserID, true
}

func (s *MemoryStore) IsVerified(ctx context.Context, userID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return false, ErrNotFound
	}
	return u.IsVerified, nil
}

// Verifications возвращает копию всех записей пользователя, от старых к новым.
func (s *MemoryStore) Verifications(userID int) []models.EmailVerification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.EmailVerification
	for _, v := range s.verifications {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ===== password recovery =====

type memoryRecoveries struct {
	s *MemoryStore
}

// Recoveries возвращает PasswordRecoveryRepository поверх того же хранилища.
func (s *MemoryStore) Recoveries() PasswordRecoveryRepository {
	return memoryRecoveries{s: s}
}

func (m memoryRecoveries) CountSince(ctx context.Context, userID int, since time.Time) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	n := 0
	for _, r := range m.s.recoveries {
		if r.UserID == userID && r.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (m memoryRecoveries) LatestCreatedAt(ctx context.Context, userID int) (time.Time, bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var (
		latest time.Time
		found  bool
	)
	for _, r := range m.s.recoveries {
		if r.UserID == userID && (!found || r.CreatedAt.After(latest)) {
			latest, found = r.CreatedAt, true
		}
	}
	return latest, found, nil
}

func (m memoryRecoveries) Create(ctx context.Context, rec *models.PasswordRecovery) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	m.s.nextRecoveryID++
	rec.ID = m.s.nextRecoveryID
	m.s.recoveries = append(m.s.recoveries, *rec)
	return nil
}

func (m memoryRecoveries) FindActiveByCode(ctx context.Context, email, code string, now time.Time) (*models.PasswordRecovery, error) {
	return m.find(now, func(r *models.PasswordRecovery) bool {
		return r.Email == email && r.Code == code
	})
}

func (m memoryRecoveries) FindActiveByToken(ctx context.Context, token string, now time.Time) (*models.PasswordRecovery, error) {
	return m.find(now, func(r *models.PasswordRecovery) bool {
		return r.Token == token
	})
}

func (m memoryRecoveries) find(now time.Time, match func(r *models.PasswordRecovery) bool) (*models.PasswordRecovery, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var best *models.PasswordRecovery
	for i := range m.s.recoveries {
		r := &m.s.recoveries[i]
		if r.Used || !r.ExpiresAt.After(now) || !match(r) {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) {
			best = r
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m memoryRecoveries) Complete(ctx context.Context, token, passwordHash string, now time.Time) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	for i := range m.s.recoveries {
		r := &m.s.recoveries[i]
		if r.Token != token || r.Used || !r.ExpiresAt.After(now) {
			continue
		}
		at := now
		r.Used = true
		r.UsedAt = &at
		if u, ok := m.s.users[r.UserID]; ok {
			u.PasswordHash = passwordHash
		}
		return r.UserID, nil
	}
	return 0, ErrNotFound
}
