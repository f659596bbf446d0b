package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"vibe/internal/models"
	"vibe/internal/repositories"
	"vibe/internal/utils"
)

var (
	ErrRateLimited      = errors.New("too many codes requested, try again later")
	ErrCooldown         = errors.New("code requested too recently")
	ErrInvalidChallenge = errors.New("code invalid or expired")
)

// CooldownError: повторный запрос раньше, чем истёк интервал между выдачами.
// errors.Is(err, ErrCooldown) == true.
type CooldownError struct {
	RemainingSeconds int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: retry in %ds", ErrCooldown.Error(), e.RemainingSeconds)
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldown
}

// Clock возвращает текущее время; подменяется в тестах.
type Clock func() time.Time

// SecretGenerator выдаёт код для ручного ввода и токен для ссылки.
type SecretGenerator interface {
	NewCode() (string, error)
	NewToken() (string, error)
}

type randomSecrets struct{}

// RandomSecrets: коды в [100000, 999999] и 32-байтовые hex-токены из crypto/rand.
func RandomSecrets() SecretGenerator { return randomSecrets{} }

func (randomSecrets) NewCode() (string, error)  { return utils.NewNumericCode() }
func (randomSecrets) NewToken() (string, error) { return utils.NewToken(32) }

type LedgerPolicy struct {
	TTL          time.Duration
	Cooldown     time.Duration
	Window       time.Duration
	MaxPerWindow int
}

func DefaultLedgerPolicy() LedgerPolicy {
	return LedgerPolicy{
		TTL:          5 * time.Minute,
		Cooldown:     time.Minute,
		Window:       time.Hour,
		MaxPerWindow: 5,
	}
}

// VerificationLedger выдаёт и погашает одноразовые коды подтверждения e-mail.
// Собственного изменяемого состояния не хранит: всё лежит в store.
type VerificationLedger struct {
	store   repositories.EmailVerificationRepository
	secrets SecretGenerator
	now     Clock
	policy  LedgerPolicy
	log     *zap.Logger
}

func NewVerificationLedger(
	store repositories.EmailVerificationRepository,
	secrets SecretGenerator,
	clock Clock,
	policy LedgerPolicy,
	log *zap.Logger,
) *VerificationLedger {
	if secrets == nil {
		secrets = RandomSecrets()
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &VerificationLedger{
		store:   store,
		secrets: secrets,
		now:     clock,
		policy:  policy,
		log:     log,
	}
}

func (l *VerificationLedger) Policy() LedgerPolicy { return l.policy }

// Issue выдаёт новый код пользователю. Вызывающий обязан заранее убедиться,
// что пользователь существует, и доставить код и токен сразу: повторно их
// получить нельзя. Все предыдущие неподтверждённые коды пользователя удаляются.
func (l *VerificationLedger) Issue(ctx context.Context, userID int, email string) (*models.EmailVerification, error) {
	now := l.now()

	var issued *models.EmailVerification
	err := l.store.WithUserLock(ctx, userID, func(tx repositories.VerificationTx) error {
		n, err := tx.CountIssuedSince(ctx, userID, now.Add(-l.policy.Window))
		if err != nil {
			return err
		}
		if n >= l.policy.MaxPerWindow {
			return ErrRateLimited
		}

		last, ok, err := tx.LatestIssuedSince(ctx, userID, now.Add(-l.policy.Cooldown))
		if err != nil {
			return err
		}
		if ok {
			remaining := int(l.policy.Cooldown.Seconds()) - int(now.Sub(last).Seconds())
			if remaining > 0 {
				return &CooldownError{RemainingSeconds: remaining}
			}
		}

		code, err := l.secrets.NewCode()
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		token, err := l.secrets.NewToken()
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}

		deleted, err := tx.DeleteUnconsumed(ctx, userID)
		if err != nil {
			return err
		}

		v := &models.EmailVerification{
			UserID:    userID,
			Email:     email,
			Code:      code,
			Token:     token,
			CreatedAt: now,
			ExpiresAt: now.Add(l.policy.TTL),
			Attempts:  1,
		}
		if err := tx.Insert(ctx, v); err != nil {
			return err
		}

		l.log.Debug("[verification][issue] stored",
			zap.Int("user_id", userID),
			zap.Int64("challenge_id", v.ID),
			zap.Int64("superseded", deleted),
			zap.Int("issued_in_window", n+1),
		)
		issued = v
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrCooldown) {
			return nil, err
		}
		return nil, fmt.Errorf("issue verification: %w", err)
	}
	return issued, nil
}

// ConsumeByCode погашает код пользователя. Неверный, истёкший и уже
// использованный код неразличимы: все дают ErrInvalidChallenge.
func (l *VerificationLedger) ConsumeByCode(ctx context.Context, userID int, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrInvalidChallenge
	}
	ok, err := l.store.ConsumeByCode(ctx, userID, code, l.now())
	if err != nil {
		return fmt.Errorf("consume verification code: %w", err)
	}
	if !ok {
		return ErrInvalidChallenge
	}
	return nil
}

// ConsumeByToken: то же по токену из ссылки; возвращает владельца.
func (l *VerificationLedger) ConsumeByToken(ctx context.Context, token string) (int, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, ErrInvalidChallenge
	}
	userID, ok, err := l.store.ConsumeByToken(ctx, token, l.now())
	if err != nil {
		return 0, fmt.Errorf("consume verification token: %w", err)
	}
	if !ok {
		return 0, ErrInvalidChallenge
	}
	return userID, nil
}

func (l *VerificationLedger) StatusOf(ctx context.Context, userID int) (bool, error) {
	verified, err := l.store.IsVerified(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return false, ErrUserNotFound
	}
	if err != nil {
		return false, fmt.Errorf("verification status: %w", err)
	}
	return verified, nil
}
