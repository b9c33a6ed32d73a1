package models

import (
	"time"

	"github.com/google/uuid"
)

// User представляет зарегистрированного пользователя системы.
type User struct {
	UID          uuid.UUID `json:"uid"`      // Уникальный идентификатор пользователя
	Username     string    `json:"username"` // Имя пользователя (уникальное)
	Email        string    `json:"email"`    // Электронная почта
	PasswordHash string    `json:"-"`        // Хэш пароля пользователя
	Role         string    `json:"role"`     // Роль пользователя, admin или user
	CreatedAt    time.Time `json:"created_at"`
}
