package models

import "time"

type PasswordRecovery struct {
	ID        int64      `json:"id"`
	UserID    int        `json:"user_id"`
	Email     string     `json:"email"`
	Code      string     `json:"-"`
	Token     string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type RecoveryRequest struct {
	Email string `json:"email" binding:"required"`
}

type RecoveryCodeRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

type RecoveryTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type CompleteRecoveryRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}
