package services

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type mockEmailService struct {
	mock.Mock
}

func (m *mockEmailService) SendVerificationEmail(to, firstName, code, token string, ttl time.Duration) error {
	args := m.Called(to, firstName, code, token, ttl)
	return args.Error(0)
}

func (m *mockEmailService) SendPasswordRecoveryEmail(to, firstName, code, token string, ttl time.Duration) error {
	args := m.Called(to, firstName, code, token, ttl)
	return args.Error(0)
}

// lastCall возвращает аргументы последнего вызова метода.
func (m *mockEmailService) lastCall(method string) mock.Arguments {
	var last mock.Arguments
	for _, c := range m.Calls {
		if c.Method == method {
			last = c.Arguments
		}
	}
	return last
}
