package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenPair is handed to the client after login or refresh. Never stored.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken mirrors an issued refresh token. It exists while the token is redeemable.
type RefreshToken struct {
	ID       uuid.UUID `db:"id" json:"id"`
	UserID   uuid.UUID `db:"user_id" json:"user_id"`
	ExpireAt time.Time `db:"expire_at" json:"expire_at"`
}
