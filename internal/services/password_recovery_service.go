package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"vibe/internal/metrics"
	"vibe/internal/models"
	"vibe/internal/repositories"
)

type PasswordRecoveryService interface {
	// RequestRecovery отправляет код на e-mail. Для неизвестного адреса
	// молча возвращает nil, чтобы не раскрывать наличие аккаунта.
	RequestRecovery(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code string) (*models.PasswordRecovery, error)
	VerifyToken(ctx context.Context, token string) (*models.PasswordRecovery, error)
	Complete(ctx context.Context, token, newPassword string) (userID int, err error)
}

type passwordRecoveryService struct {
	userRepo repositories.UserRepository
	repo     repositories.PasswordRecoveryRepository
	emails   EmailService
	auth     AuthService
	secrets  SecretGenerator
	policy   LedgerPolicy
	metrics  *metrics.Metrics
	now      Clock
	log      *zap.Logger
}

func NewPasswordRecoveryService(
	userRepo repositories.UserRepository,
	repo repositories.PasswordRecoveryRepository,
	emails EmailService,
	auth AuthService,
	secrets SecretGenerator,
	clock Clock,
	policy LedgerPolicy,
	m *metrics.Metrics,
	log *zap.Logger,
) PasswordRecoveryService {
	if secrets == nil {
		secrets = RandomSecrets()
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &passwordRecoveryService{
		userRepo: userRepo,
		repo:     repo,
		emails:   emails,
		auth:     auth,
		secrets:  secrets,
		policy:   policy,
		metrics:  m,
		now:      clock,
		log:      log,
	}
}

func (s *passwordRecoveryService) RequestRecovery(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.metrics.RecoveryEvents.WithLabelValues("request", "unknown_email").Inc()
			return nil
		}
		return err
	}

	now := s.now()
	n, err := s.repo.CountSince(ctx, user.ID, now.Add(-s.policy.Window))
	if err != nil {
		return err
	}
	if n >= s.policy.MaxPerWindow {
		s.metrics.RecoveryEvents.WithLabelValues("request", "rate_limited").Inc()
		return ErrRateLimited
	}

	last, ok, err := s.repo.LatestCreatedAt(ctx, user.ID)
	if err != nil {
		return err
	}
	if ok {
		if left := s.policy.Cooldown - now.Sub(last); left > 0 {
			s.metrics.RecoveryEvents.WithLabelValues("request", "cooldown").Inc()
			return &CooldownError{RemainingSeconds: int(math.Ceil(left.Seconds()))}
		}
	}

	code, err := s.secrets.NewCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	token, err := s.secrets.NewToken()
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	rec := &models.PasswordRecovery{
		UserID:    user.ID,
		Email:     user.Email,
		Code:      code,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(s.policy.TTL),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return err
	}
	s.metrics.RecoveryEvents.WithLabelValues("request", "issued").Inc()

	if s.emails != nil {
		if err := s.emails.SendPasswordRecoveryEmail(user.Email, user.FirstName, code, token, s.policy.TTL); err != nil {
			s.log.Warn("[password-recovery] failed to send email",
				zap.Int("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *passwordRecoveryService) VerifyCode(ctx context.Context, email, code string) (*models.PasswordRecovery, error) {
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, ErrInvalidChallenge
	}
	rec, err := s.repo.FindActiveByCode(ctx, email, code, s.now())
	return s.found("verify_code", rec, err)
}

func (s *passwordRecoveryService) VerifyToken(ctx context.Context, token string) (*models.PasswordRecovery, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidChallenge
	}
	rec, err := s.repo.FindActiveByToken(ctx, token, s.now())
	return s.found("verify_token", rec, err)
}

func (s *passwordRecoveryService) found(action string, rec *models.PasswordRecovery, err error) (*models.PasswordRecovery, error) {
	if errors.Is(err, repositories.ErrNotFound) {
		s.metrics.RecoveryEvents.WithLabelValues(action, "invalid").Inc()
		return nil, ErrInvalidChallenge
	}
	if err != nil {
		return nil, err
	}
	s.metrics.RecoveryEvents.WithLabelValues(action, "ok").Inc()
	return rec, nil
}

func (s *passwordRecoveryService) Complete(ctx context.Context, token, newPassword string) (int, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, ErrInvalidChallenge
	}
	if err := validatePassword(newPassword); err != nil {
		return 0, err
	}

	hash, err := s.auth.HashPassword(newPassword)
	if err != nil {
		return 0, err
	}
	userID, err := s.repo.Complete(ctx, token, hash, s.now())
	if errors.Is(err, repositories.ErrNotFound) {
		s.metrics.RecoveryEvents.WithLabelValues("complete", "invalid").Inc()
		return 0, ErrInvalidChallenge
	}
	if err != nil {
		return 0, err
	}
	s.metrics.RecoveryEvents.WithLabelValues("complete", "ok").Inc()
	s.log.Info("[password-recovery] password reset", zap.Int("user_id", userID))
	return userID, nil
}
