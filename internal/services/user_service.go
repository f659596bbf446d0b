package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"vibe/internal/metrics"
	"vibe/internal/models"
	"vibe/internal/repositories"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInactiveUser       = errors.New("inactive user")
	// ErrValidation оборачивает ошибки входных данных; текст ошибки
	// можно отдавать клиенту.
	ErrValidation = errors.New("validation failed")
)

const minPasswordLen = 6

type UserService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

type userService struct {
	repo          repositories.UserRepository
	authService   AuthService
	verifications VerificationSender
	metrics       *metrics.Metrics
	now           Clock
	log           *zap.Logger
}

func NewUserService(
	repo repositories.UserRepository,
	authService AuthService,
	verifications VerificationSender,
	m *metrics.Metrics,
	log *zap.Logger,
) UserService {
	return &userService{
		repo:          repo,
		authService:   authService,
		verifications: verifications,
		metrics:       m,
		now:           func() time.Time { return time.Now().UTC() },
		log:           log,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func validateEmail(email string) error {
	if email == "" {
		return validationErr("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return validationErr("email is invalid")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return validationErr(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	return nil
}

// Register создаёт пользователя и отправляет ему код подтверждения e-mail.
// Ошибка отправки кода регистрацию не отменяет.
func (s *userService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	user := &models.User{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     NormalizeEmail(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: s.now(),
	}
	switch {
	case user.FirstName == "":
		return nil, s.failRegistration(validationErr("first name is required"))
	case user.LastName == "":
		return nil, s.failRegistration(validationErr("last name is required"))
	}
	if err := validateEmail(user.Email); err != nil {
		return nil, s.failRegistration(err)
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, s.failRegistration(err)
	}

	hash, err := s.authService.HashPassword(req.Password)
	if err != nil {
		return nil, s.failRegistration(err)
	}
	user.PasswordHash = hash

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrEmailTaken) {
			return nil, s.failRegistration(ErrEmailTaken)
		}
		return nil, s.failRegistration(err)
	}
	s.metrics.RegistrationAttempts.WithLabelValues("created").Inc()
	s.log.Info("[auth][register] user created", zap.Int("user_id", user.ID))

	if s.verifications != nil {
		if _, err := s.verifications.SendVerification(ctx, user.ID, user.Email); err != nil {
			s.log.Warn("[auth][register] verification not sent",
				zap.Int("user_id", user.ID), zap.Error(err))
		}
	}
	return user, nil
}

func (s *userService) failRegistration(err error) error {
	result := "error"
	switch {
	case errors.Is(err, ErrValidation):
		result = "invalid"
	case errors.Is(err, ErrEmailTaken):
		result = "duplicate"
	}
	s.metrics.RegistrationAttempts.WithLabelValues(result).Inc()
	return err
}

func (s *userService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.metrics.LoginAttempts.WithLabelValues("invalid").Inc()
			return nil, ErrInvalidCredentials
		}
		s.metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, err
	}
	if !s.authService.CheckPassword(user.PasswordHash, password) {
		s.metrics.LoginAttempts.WithLabelValues("invalid").Inc()
		s.log.Info("[auth][login] password mismatch", zap.Int("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.metrics.LoginAttempts.WithLabelValues("inactive").Inc()
		return nil, ErrInactiveUser
	}

	now := s.now()
	if err := s.repo.TouchLastSeen(ctx, user.ID, now); err != nil {
		s.log.Warn("[auth][login] last_seen not updated", zap.Int("user_id", user.ID), zap.Error(err))
	} else {
		user.LastSeen = now
	}
	s.metrics.LoginAttempts.WithLabelValues("ok").Inc()
	return user, nil
}

func (s *userService) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *userService) EmailExists(ctx context.Context, email string) (bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return false, validationErr("email is required")
	}
	return s.repo.EmailExists(ctx, email)
}
