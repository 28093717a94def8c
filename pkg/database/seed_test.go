package database

import (
	"context"
	"path/filepath"
	"testing"

	"duochat/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSeedIsRepeatable(t *testing.T) {
	store, err := repository.OpenBolt(filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	users := repository.NewBoltUserRepository(store)
	messages := repository.NewBoltMessageRepository(store)

	cfg := DefaultSeedConfig()
	cfg.Users = cfg.Users[:2]

	first, err := Seed(ctx, users, messages, cfg)
	require.NoError(t, err)
	require.Len(t, first.Users, 2)
	assert.Len(t, first.Messages, 3)

	alice, err := users.GetUserByEmail(ctx, "alice@duochat.dev")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(alice.PasswordHash), []byte(cfg.Password)))

	unseen, err := messages.CountUnseen(ctx, first.Users[0].ID, first.Users[1].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unseen)

	second, err := Seed(ctx, users, messages, cfg)
	require.NoError(t, err)
	assert.Empty(t, second.Users)
	assert.ElementsMatch(t, []string{"alice@duochat.dev", "bob@duochat.dev"}, second.Skipped)
	assert.Empty(t, second.Messages)
}
