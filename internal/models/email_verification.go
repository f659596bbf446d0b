package models

import "time"

// EmailVerification: одна запись на каждую выдачу кода подтверждения e-mail.
// Code и Token независимо друг от друга подтверждают запись; после Consumed
// запись больше не меняется.
type EmailVerification struct {
	ID         int64      `json:"id"`
	UserID     int        `json:"user_id"`
	Email      string     `json:"email"`
	Code       string     `json:"-"`
	Token      string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Consumed   bool       `json:"consumed"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	// Attempts всегда 1; колонка зарезервирована.
	Attempts int `json:"attempts"`
}

type SendVerificationRequest struct {
	UserID int    `json:"user_id" binding:"required"`
	Email  string `json:"email"`
}

type VerifyCodeRequest struct {
	UserID int    `json:"user_id" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

type VerifyTokenRequest struct {
	Token string `json:"token" binding:"required"`
}
