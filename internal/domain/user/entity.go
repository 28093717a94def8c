package user

import (
	"time"

	"github.com/google/uuid"
)

// User represents the users table
type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string     `gorm:"type:text;not null;uniqueIndex:idx_users_email" json:"email"`
	FullName     string     `gorm:"type:text;not null" json:"fullName"`
	PasswordHash string     `gorm:"type:text;not null" json:"-"`
	ProfilePic   string     `gorm:"type:text" json:"profilePic,omitempty"`
	Bio          string     `gorm:"type:text" json:"bio,omitempty"`
	LastSeen     *time.Time `json:"lastSeen,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

// Profile is the public projection of a user.
type Profile struct {
	ID         uuid.UUID  `json:"id"`
	Email      string     `json:"email"`
	FullName   string     `json:"fullName"`
	ProfilePic string     `json:"profilePic,omitempty"`
	Bio        string     `json:"bio,omitempty"`
	LastSeen   *time.Time `json:"lastSeen,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		ProfilePic: u.ProfilePic,
		Bio:        u.Bio,
		LastSeen:   u.LastSeen,
		CreatedAt:  u.CreatedAt,
	}
}
