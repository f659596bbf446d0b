package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vibe/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	TouchLastSeen(ctx context.Context, id int, at time.Time) error
}

type userRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{DB: db}
}

const userColumns = `
	id, first_name, last_name, email, password_hash, phone,
	is_active, is_verified, verified_at, created_at, last_seen`

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	const q = `
		INSERT INTO users (
			first_name, last_name, email, password_hash, phone,
			is_active, is_verified, created_at, last_seen
		)
		VALUES ($1,$2,$3,$4,$5,TRUE,FALSE,$6,$6)
		RETURNING id, is_active, is_verified
	`
	now := user.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	err := r.DB.QueryRowContext(ctx, q,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordHash,
		nullString(user.Phone),
		now,
	).Scan(&user.ID, &user.IsActive, &user.IsVerified)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("user create: %w", err)
	}
	user.CreatedAt = now
	user.LastSeen = now
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *userRepository) getOne(ctx context.Context, q string, arg any) (*models.User, error) {
	u := &models.User{}
	var (
		phone      sql.NullString
		verifiedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, q, arg).Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &phone,
		&u.IsActive, &u.IsVerified, &verifiedAt, &u.CreatedAt, &u.LastSeen,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user get: %w", err)
	}
	if phone.Valid {
		u.Phone = phone.String
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		u.VerifiedAt = &t
	}
	return u, nil
}

func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user email exists: %w", err)
	}
	return exists, nil
}

func (r *userRepository) TouchLastSeen(ctx context.Context, id int, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE users SET last_seen = $1 WHERE id = $2`, at, id)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
