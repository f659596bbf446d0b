package services

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vibe/internal/metrics"
	"vibe/internal/models"
	"vibe/internal/repositories"
)

type userFixture struct {
	store   *repositories.MemoryStore
	emails  *mockEmailService
	metrics *metrics.Metrics
	svc     UserService
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()
	f := &userFixture{
		store:   repositories.NewMemoryStore(),
		emails:  new(mockEmailService),
		metrics: metrics.New(),
	}
	ledger := NewVerificationLedger(f.store, &seqSecrets{}, nil, DefaultLedgerPolicy(), zap.NewNop())
	verifications := NewVerificationService(ledger, f.store, f.emails, f.metrics, zap.NewNop())
	f.svc = NewUserService(f.store, NewAuthService("test-secret", 0), verifications, f.metrics, zap.NewNop())
	return f
}

func validRegistration() models.RegisterRequest {
	return models.RegisterRequest{
		FirstName: " Ana ",
		LastName:  "Lima",
		Email:     " Ana@Vibe.IO ",
		Password:  "s3cret!",
	}
}

func TestUserService_RegisterSendsVerification(t *testing.T) {
	f := newUserFixture(t)
	f.emails.On("SendVerificationEmail", "ana@vibe.io", "Ana", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	u, err := f.svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	assert.Equal(t, "ana@vibe.io", u.Email)
	assert.Equal(t, "Ana", u.FirstName)
	assert.True(t, u.IsActive)
	assert.False(t, u.IsVerified)
	assert.NotEqual(t, "s3cret!", u.PasswordHash)

	f.emails.AssertExpectations(t)
	assert.Len(t, f.store.Verifications(u.ID), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RegistrationAttempts.WithLabelValues("created")))
}

func TestUserService_RegisterDuplicateEmail(t *testing.T) {
	f := newUserFixture(t)
	f.emails.On("SendVerificationEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	req := validRegistration()
	req.Email = "ana@vibe.io"
	_, err = f.svc.Register(context.Background(), req)
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RegistrationAttempts.WithLabelValues("duplicate")))
}

func TestUserService_RegisterValidation(t *testing.T) {
	cases := map[string]func(r *models.RegisterRequest){
		"missing first name": func(r *models.RegisterRequest) { r.FirstName = "  " },
		"missing last name":  func(r *models.RegisterRequest) { r.LastName = "" },
		"bad email":          func(r *models.RegisterRequest) { r.Email = "not-an-email" },
		"email without tld":  func(r *models.RegisterRequest) { r.Email = "ana@localhost" },
		"short password":     func(r *models.RegisterRequest) { r.Password = "12345" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newUserFixture(t)
			req := validRegistration()
			mutate(&req)

			_, err := f.svc.Register(context.Background(), req)
			assert.ErrorIs(t, err, ErrValidation)
			f.emails.AssertNumberOfCalls(t, "SendVerificationEmail", 0)
		})
	}
}

func TestUserService_Authenticate(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture(t)
	f.emails.On("SendVerificationEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	created, err := f.svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	u, err := f.svc.Authenticate(ctx, "ANA@vibe.io", "s3cret!")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)

	_, err = f.svc.Authenticate(ctx, "ana@vibe.io", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Authenticate(ctx, "ghost@vibe.io", "s3cret!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	f.store.SetActive(created.ID, false)
	_, err = f.svc.Authenticate(ctx, "ana@vibe.io", "s3cret!")
	assert.ErrorIs(t, err, ErrInactiveUser)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LoginAttempts.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.LoginAttempts.WithLabelValues("invalid")))
}

func TestUserService_GetUserByIDAndEmailExists(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture(t)
	f.emails.On("SendVerificationEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	created, err := f.svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	u, err := f.svc.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@vibe.io", u.Email)

	_, err = f.svc.GetUserByID(ctx, created.ID+1)
	assert.ErrorIs(t, err, ErrUserNotFound)

	exists, err := f.svc.EmailExists(ctx, " ANA@VIBE.IO")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = f.svc.EmailExists(ctx, "nobody@vibe.io")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = f.svc.EmailExists(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)
}
