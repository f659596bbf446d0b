package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vibe/internal/models"
)

type PasswordRecoveryRepository interface {
	CountSince(ctx context.Context, userID int, since time.Time) (int, error)
	LatestCreatedAt(ctx context.Context, userID int) (time.Time, bool, error)
	Create(ctx context.Context, rec *models.PasswordRecovery) error
	// FindActiveByCode / FindActiveByToken возвращают только неиспользованные
	// и не истёкшие записи, иначе ErrNotFound.
	FindActiveByCode(ctx context.Context, email, code string, now time.Time) (*models.PasswordRecovery, error)
	FindActiveByToken(ctx context.Context, token string, now time.Time) (*models.PasswordRecovery, error)
	// Complete помечает запись использованной и меняет пароль владельца
	// в одной транзакции. ErrNotFound: токен не действителен.
	Complete(ctx context.Context, token, passwordHash string, now time.Time) (userID int, err error)
}

type passwordRecoveryRepository struct {
	DB *sql.DB
}

func NewPasswordRecoveryRepository(db *sql.DB) PasswordRecoveryRepository {
	return &passwordRecoveryRepository{DB: db}
}

func (r *passwordRecoveryRepository) CountSince(ctx context.Context, userID int, since time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM password_recoveries WHERE user_id = $1 AND created_at > $2`,
		userID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("password_recovery count: %w", err)
	}
	return n, nil
}

func (r *passwordRecoveryRepository) LatestCreatedAt(ctx context.Context, userID int) (time.Time, bool, error) {
	var at time.Time
	err := r.DB.QueryRowContext(ctx,
		`SELECT created_at FROM password_recoveries WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`,
		userID,
	).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("password_recovery latest: %w", err)
	}
	return at, true, nil
}

func (r *passwordRecoveryRepository) Create(ctx context.Context, rec *models.PasswordRecovery) error {
	const q = `
		INSERT INTO password_recoveries (user_id, email, code, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	if err := r.DB.QueryRowContext(ctx, q,
		rec.UserID, rec.Email, rec.Code, rec.Token, rec.ExpiresAt, rec.CreatedAt,
	).Scan(&rec.ID); err != nil {
		return fmt.Errorf("password_recovery create: %w", err)
	}
	return nil
}

const recoveryColumns = `id, user_id, email, code, token, expires_at, used, used_at, created_at`

func (r *passwordRecoveryRepository) FindActiveByCode(ctx context.Context, email, code string, now time.Time) (*models.PasswordRecovery, error) {
	q := `SELECT ` + recoveryColumns + `
		FROM password_recoveries
		WHERE email = $1 AND code = $2 AND used = FALSE AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1`
	return scanRecovery(r.DB.QueryRowContext(ctx, q, email, code, now))
}

func (r *passwordRecoveryRepository) FindActiveByToken(ctx context.Context, token string, now time.Time) (*models.PasswordRecovery, error) {
	q := `SELECT ` + recoveryColumns + `
		FROM password_recoveries
		WHERE token = $1 AND used = FALSE AND expires_at > $2
		LIMIT 1`
	return scanRecovery(r.DB.QueryRowContext(ctx, q, token, now))
}

func scanRecovery(row *sql.Row) (*models.PasswordRecovery, error) {
	rec := &models.PasswordRecovery{}
	var usedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Email, &rec.Code, &rec.Token,
		&rec.ExpiresAt, &rec.Used, &usedAt, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("password_recovery get: %w", err)
	}
	if usedAt.Valid {
		rec.UsedAt = &usedAt.Time
	}
	return rec, nil
}

func (r *passwordRecoveryRepository) Complete(ctx context.Context, token, passwordHash string, now time.Time) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("password_recovery begin: %w", err)
	}
	defer tx.Rollback()

	var userID int
	err = tx.QueryRowContext(ctx, `
		UPDATE password_recoveries
		SET used = TRUE, used_at = $2
		WHERE token = $1 AND used = FALSE AND expires_at > $2
		RETURNING user_id
	`, token, now).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("password_recovery mark used: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, userID,
	); err != nil {
		return 0, fmt.Errorf("password_recovery update password: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("password_recovery commit: %w", err)
	}
	return userID, nil
}
