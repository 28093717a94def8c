package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"duochat/internal/domain/message"
	"duochat/internal/domain/user"
	"duochat/internal/repository"
	duochat_errors "duochat/pkg/errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// SeedConfig holds configuration for seeding the database
type SeedConfig struct {
	Password     string
	Users        []SeedUser
	WithMessages bool
}

type SeedUser struct {
	Email    string
	FullName string
	Bio      string
}

// DefaultSeedConfig returns three demo accounts sharing one password.
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		Password: "password123",
		Users: []SeedUser{
			{Email: "alice@duochat.dev", FullName: "Alice Martin", Bio: "Hey there, I am using duochat"},
			{Email: "bob@duochat.dev", FullName: "Bob Chen", Bio: "Available"},
			{Email: "carol@duochat.dev", FullName: "Carol Diaz", Bio: "Busy"},
		},
		WithMessages: true,
	}
}

// SeedResult holds the result of the seeding operation
type SeedResult struct {
	Users    []user.User
	Skipped  []string
	Messages []message.Message
}

// Seed creates the configured accounts through the repositories, so it works
// against either store. Existing emails are skipped, which makes it safe to
// run twice.
func Seed(ctx context.Context, users repository.UserRepository, messages repository.MessageRepository, cfg *SeedConfig) (*SeedResult, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	result := &SeedResult{}
	base := time.Now().UTC().Add(-time.Hour)
	for i, su := range cfg.Users {
		at := base.Add(time.Duration(i) * time.Second)
		u := &user.User{
			ID:           uuid.New(),
			Email:        su.Email,
			FullName:     su.FullName,
			PasswordHash: string(hash),
			Bio:          su.Bio,
			CreatedAt:    at,
			UpdatedAt:    at,
		}
		err := users.Create(ctx, u)
		if errors.Is(err, duochat_errors.ErrAlreadyExists) {
			result.Skipped = append(result.Skipped, su.Email)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to seed user %s: %w", su.Email, err)
		}
		result.Users = append(result.Users, *u)
	}

	if cfg.WithMessages && len(result.Users) >= 2 {
		msgs, err := seedMessages(ctx, messages, result.Users[0], result.Users[1], base)
		if err != nil {
			return nil, err
		}
		result.Messages = msgs
	}
	return result, nil
}

func seedMessages(ctx context.Context, messages repository.MessageRepository, a, b user.User, base time.Time) ([]message.Message, error) {
	lines := []struct {
		from, to user.User
		text     string
		seen     bool
	}{
		{a, b, "Hi " + b.FullName + "!", true},
		{b, a, "Hello! How are you?", true},
		{a, b, "Great, thanks. Lunch tomorrow?", false},
	}

	out := make([]message.Message, 0, len(lines))
	for i, line := range lines {
		at := base.Add(time.Minute + time.Duration(i)*time.Second)
		m := message.Message{
			ID:          uuid.New(),
			SenderID:    line.from.ID,
			ReceiverID:  line.to.ID,
			Text:        line.text,
			MessageType: message.TypeText,
			Delivered:   true,
			Seen:        line.seen,
			Reactions:   []message.Reaction{},
			CreatedAt:   at,
			UpdatedAt:   at,
		}
		if err := messages.Create(ctx, &m); err != nil {
			return nil, fmt.Errorf("failed to seed message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}
