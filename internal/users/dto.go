package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
)

// UserDTO is the transport shape of an account.
type UserDTO struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email   string
	Credits int
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:        u.ID,
		Email:     u.Email,
		Credits:   u.Credits,
		CreatedAt: u.CreatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	credits := c.Credits
	if credits < 0 {
		credits = 0
	}
	return &models.User{
		ID:      uuid.New(),
		Email:   NormalizeEmail(c.Email),
		Credits: credits,
	}
}

// NormalizeEmail is the stored form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
