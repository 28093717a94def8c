package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"duochat/config"
	"duochat/internal/repository"
	duochat_errors "duochat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthService(t *testing.T) (*AuthService, *memBlobs) {
	t.Helper()
	store, err := repository.OpenBolt(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	blobs := &memBlobs{}
	svc := NewAuthService(repository.NewBoltUserRepository(store), blobs, &config.Config{
		JWTSecret:      "test-secret",
		JWTExpiryHours: 1,
	})
	return svc, blobs
}

func TestSignupAndLogin(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	res, err := svc.Signup(ctx, SignupInput{
		Email:    "  Alice@Example.com ",
		FullName: "Alice <b>Liddell</b>",
		Password: "wonderland",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, "Alice Liddell", res.User.FullName)
	assert.NotEqual(t, "wonderland", res.User.PasswordHash)
	assert.NotEmpty(t, res.Token)

	id, err := svc.AuthenticateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, id)

	_, err = svc.Signup(ctx, SignupInput{Email: "alice@example.com", FullName: "Again", Password: "another1"})
	assert.ErrorIs(t, err, duochat_errors.ErrAlreadyExists)

	logged, err := svc.Login(ctx, LoginInput{Email: "ALICE@example.com", Password: "wonderland"})
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, logged.User.ID)

	_, err = svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong-pass"})
	assert.ErrorIs(t, err, duochat_errors.ErrUnauthorized)
	_, err = svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "wonderland"})
	assert.ErrorIs(t, err, duochat_errors.ErrUnauthorized)

	current, err := svc.Check(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", current.Email)
}

func TestSignupValidation(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	cases := map[string]SignupInput{
		"short password": {Email: "a@example.com", FullName: "A", Password: "123"},
		"bad email":      {Email: "not-an-email", FullName: "A", Password: "123456"},
		"no name":        {Email: "a@example.com", FullName: "   ", Password: "123456"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Signup(ctx, in)
			assert.ErrorIs(t, err, duochat_errors.ErrValidation)
		})
	}
}

func TestAccessTokenExpiry(t *testing.T) {
	svc, _ := newAuthService(t)
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	userID := uuid.New()
	token, err := svc.newAccessToken(userID)
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(59 * time.Minute) }
	got, err := svc.AuthenticateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	svc.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = svc.AuthenticateToken(token)
	assert.ErrorIs(t, err, duochat_errors.ErrUnauthorized)
}

func TestAccessTokenRejectsForeignTokens(t *testing.T) {
	svc, _ := newAuthService(t)

	_, err := svc.AuthenticateToken("")
	assert.ErrorIs(t, err, duochat_errors.ErrUnauthorized)
	_, err = svc.AuthenticateToken("not.a.token")
	assert.ErrorIs(t, err, duochat_errors.ErrUnauthorized)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	signed, err := other.SignedString([]byte("someone-else"))
	require.NoError(t, err)
	_, err = svc.AuthenticateToken(signed)
	assert.ErrorIs(t, err, duochat_errors.ErrUnauthorized)

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	signed, err = noSubject.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.AuthenticateToken(signed)
	assert.ErrorIs(t, err, duochat_errors.ErrUnauthorized)
}

func TestUpdateProfile(t *testing.T) {
	svc, blobs := newAuthService(t)
	ctx := context.Background()

	res, err := svc.Signup(ctx, SignupInput{Email: "bob@example.com", FullName: "Bob", Password: "builder", Bio: "fixes things"})
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(ctx, res.User.ID, ProfileInput{ProfilePic: pngDataURI()})
	require.NoError(t, err)
	assert.Contains(t, updated.ProfilePic, "https://blobs.test/avatars/")
	assert.Equal(t, "Bob", updated.FullName)
	assert.Equal(t, "fixes things", updated.Bio)
	assert.Len(t, blobs.objects, 1)

	updated, err = svc.UpdateProfile(ctx, res.User.ID, ProfileInput{FullName: "Bob B.", Bio: "can we fix it"})
	require.NoError(t, err)
	assert.Equal(t, "Bob B.", updated.FullName)
	assert.Equal(t, "can we fix it", updated.Bio)

	stored, err := svc.Check(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.FullName, stored.FullName)
	assert.Equal(t, updated.ProfilePic, stored.ProfilePic)

	_, err = svc.UpdateProfile(ctx, res.User.ID, ProfileInput{ProfilePic: "data:audio/mpeg;base64,SUQzBAAAAAAAAAAA"})
	assert.ErrorIs(t, err, duochat_errors.ErrValidation)

	blobs.fail = true
	_, err = svc.UpdateProfile(ctx, res.User.ID, ProfileInput{ProfilePic: pngDataURI()})
	assert.ErrorIs(t, err, duochat_errors.ErrUpstream)

	_, err = svc.UpdateProfile(ctx, uuid.New(), ProfileInput{FullName: "ghost"})
	assert.ErrorIs(t, err, duochat_errors.ErrNotFound)
}

func TestUserContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	id := uuid.New()
	got, ok := UserIDFromContext(WithUserContext(context.Background(), id))
	assert.True(t, ok)
	assert.Equal(t, id, got)
}
