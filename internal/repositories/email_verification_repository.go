package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vibe/internal/models"
)

// VerificationTx: операции над записями одного пользователя внутри
// транзакции, взятой через WithUserLock.
type VerificationTx interface {
	// CountIssuedSince: сколько выдач было строго после since.
	CountIssuedSince(ctx context.Context, userID int, since time.Time) (int, error)
	// LatestIssuedSince: время последней выдачи строго после since.
	LatestIssuedSince(ctx context.Context, userID int, since time.Time) (time.Time, bool, error)
	// DeleteUnconsumed удаляет все неподтверждённые записи пользователя.
	DeleteUnconsumed(ctx context.Context, userID int) (int64, error)
	// Insert сохраняет запись и фиксирует факт выдачи в журнале.
	Insert(ctx context.Context, v *models.EmailVerification) error
}

type EmailVerificationRepository interface {
	// WithUserLock выполняет fn атомарно и последовательно относительно
	// других вызовов для того же userID. Ошибка fn откатывает все изменения.
	WithUserLock(ctx context.Context, userID int, fn func(tx VerificationTx) error) error
	// ConsumeByCode помечает запись подтверждённой (compare-and-set) и
	// выставляет users.is_verified. false: подходящей записи нет.
	ConsumeByCode(ctx context.Context, userID int, code string, now time.Time) (bool, error)
	ConsumeByToken(ctx context.Context, token string, now time.Time) (userID int, ok bool, err error)
	// IsVerified читает users.is_verified; ErrNotFound если пользователя нет.
	IsVerified(ctx context.Context, userID int) (bool, error)
}

// класс advisory-локов для выдачи кодов подтверждения e-mail
const verificationLockClass = 7301

type emailVerificationRepository struct {
	DB *sql.DB
}

func NewEmailVerificationRepository(db *sql.DB) EmailVerificationRepository {
	return &emailVerificationRepository{DB: db}
}

func (r *emailVerificationRepository) WithUserLock(ctx context.Context, userID int, fn func(tx VerificationTx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("email_verification begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock($1::int, $2::int)`, verificationLockClass, userID,
	); err != nil {
		return fmt.Errorf("email_verification lock: %w", err)
	}
	if err := fn(&verificationTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("email_verification commit: %w", err)
	}
	return nil
}

type verificationTx struct {
	tx *sql.Tx
}

func (t *verificationTx) CountIssuedSince(ctx context.Context, userID int, since time.Time) (int, error) {
	const q = `
		SELECT COUNT(*)
		FROM email_verification_issuances
		WHERE user_id = $1 AND issued_at > $2
	`
	var n int
	if err := t.tx.QueryRowContext(ctx, q, userID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("email_verification count: %w", err)
	}
	return n, nil
}

func (t *verificationTx) LatestIssuedSince(ctx context.Context, userID int, since time.Time) (time.Time, bool, error) {
	const q = `
		SELECT issued_at
		FROM email_verification_issuances
		WHERE user_id = $1 AND issued_at > $2
		ORDER BY issued_at DESC
		LIMIT 1
	`
	var at time.Time
	err := t.tx.QueryRowContext(ctx, q, userID, since).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("email_verification latest: %w", err)
	}
	return at, true, nil
}

func (t *verificationTx) DeleteUnconsumed(ctx context.Context, userID int) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM email_verifications WHERE user_id = $1 AND consumed = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("email_verification delete: %w", err)
	}
	return res.RowsAffected()
}

func (t *verificationTx) Insert(ctx context.Context, v *models.EmailVerification) error {
	const q = `
		INSERT INTO email_verifications (
			user_id, email, code, token, created_at, expires_at, consumed, attempts
		)
		VALUES ($1,$2,$3,$4,$5,$6,FALSE,$7)
		RETURNING id
	`
	if err := t.tx.QueryRowContext(ctx, q,
		v.UserID, v.Email, v.Code, v.Token, v.CreatedAt, v.ExpiresAt, v.Attempts,
	).Scan(&v.ID); err != nil {
		return fmt.Errorf("email_verification insert: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO email_verification_issuances (user_id, issued_at) VALUES ($1, $2)`,
		v.UserID, v.CreatedAt,
	); err != nil {
		return fmt.Errorf("email_verification issuance log: %w", err)
	}
	return nil
}

func (r *emailVerificationRepository) ConsumeByCode(ctx context.Context, userID int, code string, now time.Time) (bool, error) {
	const q = `
		UPDATE email_verifications
		SET consumed = TRUE, consumed_at = $3
		WHERE id = (
			SELECT id FROM email_verifications
			WHERE user_id = $1 AND code = $2 AND consumed = FALSE AND expires_at > $3
			ORDER BY created_at DESC
			LIMIT 1
			FOR UPDATE
		) AND consumed = FALSE
		RETURNING user_id
	`
	_, ok, err := r.consume(ctx, q, userID, code, now)
	return ok, err
}

func (r *emailVerificationRepository) ConsumeByToken(ctx context.Context, token string, now time.Time) (int, bool, error) {
	const q = `
		UPDATE email_verifications
		SET consumed = TRUE, consumed_at = $2
		WHERE id = (
			SELECT id FROM email_verifications
			WHERE token = $1 AND consumed = FALSE AND expires_at > $2
			LIMIT 1
			FOR UPDATE
		) AND consumed = FALSE
		RETURNING user_id
	`
	return r.consume(ctx, q, token, now)
}

// consume выполняет CAS-обновление q (последний аргумент: now) и в той же
// транзакции отмечает владельца записи подтверждённым.
func (r *emailVerificationRepository) consume(ctx context.Context, q string, args ...any) (int, bool, error) {
	now := args[len(args)-1]

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("email_verification begin: %w", err)
	}
	defer tx.Rollback()

	var userID int
	err = tx.QueryRowContext(ctx, q, args...).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("email_verification consume: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users
		SET is_verified = TRUE, verified_at = COALESCE(verified_at, $2)
		WHERE id = $1
	`, userID, now); err != nil {
		return 0, false, fmt.Errorf("email_verification mark user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("email_verification commit: %w", err)
	}
	return userID, true, nil
}

func (r *emailVerificationRepository) IsVerified(ctx context.Context, userID int) (bool, error) {
	var verified bool
	err := r.DB.QueryRowContext(ctx, `SELECT is_verified FROM users WHERE id = $1`, userID).Scan(&verified)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("email_verification status: %w", err)
	}
	return verified, nil
}
