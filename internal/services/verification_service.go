package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"vibe/internal/metrics"
	"vibe/internal/repositories"
)

var (
	ErrEmailMismatch   = errors.New("email does not match the account")
	ErrAlreadyVerified = errors.New("email already verified")
)

// VerificationDispatch: что сообщить клиенту после отправки кода.
type VerificationDispatch struct {
	ExpiresIn time.Duration
	Cooldown  time.Duration
}

type VerificationSender interface {
	SendVerification(ctx context.Context, userID int, email string) (*VerificationDispatch, error)
}

// VerifiedNotifier получает user_id после успешного подтверждения e-mail.
type VerifiedNotifier interface {
	NotifyVerified(userID int)
}

type VerificationService interface {
	VerificationSender
	VerifyCode(ctx context.Context, userID int, code string) error
	VerifyToken(ctx context.Context, token string) (int, error)
	Status(ctx context.Context, userID int) (bool, error)
}

type verificationService struct {
	ledger    *VerificationLedger
	users     repositories.UserRepository
	emails    EmailService
	metrics   *metrics.Metrics
	notifiers []VerifiedNotifier
	log       *zap.Logger
}

func NewVerificationService(
	ledger *VerificationLedger,
	users repositories.UserRepository,
	emails EmailService,
	m *metrics.Metrics,
	log *zap.Logger,
	notifiers ...VerifiedNotifier,
) VerificationService {
	return &verificationService{
		ledger:    ledger,
		users:     users,
		emails:    emails,
		metrics:   m,
		notifiers: notifiers,
		log:       log,
	}
}

// SendVerification выдаёт код и отправляет его на адрес из аккаунта.
// email из запроса необязателен; если указан, должен совпадать с аккаунтом.
func (s *verificationService) SendVerification(ctx context.Context, userID int, email string) (*VerificationDispatch, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if email = strings.TrimSpace(email); email != "" && !strings.EqualFold(email, user.Email) {
		return nil, ErrEmailMismatch
	}
	if user.IsVerified {
		return nil, ErrAlreadyVerified
	}

	challenge, err := s.ledger.Issue(ctx, user.ID, user.Email)
	if err != nil {
		var cd *CooldownError
		switch {
		case errors.Is(err, ErrRateLimited):
			s.metrics.VerificationIssued.WithLabelValues("rate_limited").Inc()
			s.log.Info("[verification][send] rate limited", zap.Int("user_id", userID))
		case errors.As(err, &cd):
			s.metrics.VerificationIssued.WithLabelValues("cooldown").Inc()
			s.log.Info("[verification][send] cooldown",
				zap.Int("user_id", userID), zap.Int("remaining_s", cd.RemainingSeconds))
		default:
			s.metrics.VerificationIssued.WithLabelValues("error").Inc()
			s.log.Error("[verification][send] issue failed", zap.Int("user_id", userID), zap.Error(err))
		}
		return nil, err
	}
	s.metrics.VerificationIssued.WithLabelValues("issued").Inc()

	policy := s.ledger.Policy()
	if s.emails != nil {
		if err := s.emails.SendVerificationEmail(user.Email, user.FirstName, challenge.Code, challenge.Token, policy.TTL); err != nil {
			// код уже выдан; пользователь может запросить новый после cooldown
			s.log.Warn("[verification][send] email delivery failed",
				zap.Int("user_id", userID), zap.Error(err))
		}
	}
	s.log.Info("[verification][send] code issued",
		zap.Int("user_id", userID), zap.Time("expires_at", challenge.ExpiresAt))

	return &VerificationDispatch{ExpiresIn: policy.TTL, Cooldown: policy.Cooldown}, nil
}

func (s *verificationService) VerifyCode(ctx context.Context, userID int, code string) error {
	err := s.ledger.ConsumeByCode(ctx, userID, code)
	s.observeConsume("code", err)
	if err == nil {
		s.log.Info("[verification][code] email verified", zap.Int("user_id", userID))
		s.notify(userID)
	}
	return err
}

func (s *verificationService) VerifyToken(ctx context.Context, token string) (int, error) {
	userID, err := s.ledger.ConsumeByToken(ctx, token)
	s.observeConsume("token", err)
	if err == nil {
		s.log.Info("[verification][token] email verified", zap.Int("user_id", userID))
		s.notify(userID)
	}
	return userID, err
}

func (s *verificationService) notify(userID int) {
	for _, n := range s.notifiers {
		n.NotifyVerified(userID)
	}
}

func (s *verificationService) observeConsume(method string, err error) {
	switch {
	case err == nil:
		s.metrics.VerificationConsumed.WithLabelValues(method, "ok").Inc()
	case errors.Is(err, ErrInvalidChallenge):
		s.metrics.VerificationConsumed.WithLabelValues(method, "invalid").Inc()
	default:
		s.metrics.VerificationConsumed.WithLabelValues(method, "error").Inc()
		s.log.Error("[verification][consume] store failure", zap.String("method", method), zap.Error(err))
	}
}

func (s *verificationService) Status(ctx context.Context, userID int) (bool, error) {
	return s.ledger.StatusOf(ctx, userID)
}
