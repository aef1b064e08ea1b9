package user

import (
	"time"
)

// ContextUserKey is the key under which the authenticated User is stored in the gin context.
const ContextUserKey = "user"

// User is a registered account of the job portal.
// @Description registered user
type User struct {
	ID uint `json:"id" gorm:"primaryKey"`
	// Display name
	Name string `json:"name" gorm:"not null"`
	// Email address (unique)
	Email string `json:"email" gorm:"uniqueIndex;not null"`
	// Password hash (hidden from JSON)
	Password  string    `json:"-" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUser builds an unsaved User from an already hashed password.
func NewUser(name, email, passwordHash string) *User {
	return &User{
		Name:     name,
		Email:    email,
		Password: passwordHash,
	}
}
