package dto

import (
	"time"

	"task_manager/internal/domain/models"

	"github.com/google/uuid"
)

// UserRegisterInput is the registration payload
type UserRegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Username string `json:"username" validate:"required,max=50"`
	Password string `json:"password" validate:"required,max=72"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id" swaggertype:"string" format:"uuid"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func NewUserResponse(u models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}
