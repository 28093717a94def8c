package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"duochat/config"
	"duochat/internal/content"
	"duochat/internal/domain/user"
	"duochat/internal/repository"
	"duochat/internal/storage"
	duochat_errors "duochat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	userRepo  repository.UserRepository
	blobs     storage.BlobStore
	jwtSecret []byte
	accessTTL time.Duration
	now       func() time.Time
}

func NewAuthService(userRepo repository.UserRepository, blobs storage.BlobStore, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		blobs:     blobs,
		jwtSecret: []byte(cfg.JWTSecret),
		accessTTL: time.Duration(cfg.JWTExpiryHours) * time.Hour,
		now:       time.Now,
	}
}

type SignupInput struct {
	Email    string `validate:"required,email,max=254"`
	FullName string `validate:"required,max=100"`
	Password string `validate:"required,min=6,max=72"`
	Bio      string `validate:"max=500"`
}

type LoginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// ProfileInput changes only the non-empty fields. ProfilePic is a data URI.
type ProfileInput struct {
	FullName   string `validate:"max=100"`
	Bio        string `validate:"max=500"`
	ProfilePic string
}

type AuthResult struct {
	User  user.User
	Token string
}

type AccessClaims struct {
	jwt.RegisteredClaims
}

func (s *AuthService) Signup(ctx context.Context, in SignupInput) (AuthResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = content.PlainText(in.FullName)
	in.Bio = content.PlainText(in.Bio)
	if err := validateStruct(in); err != nil {
		return AuthResult{}, err
	}

	if _, err := s.userRepo.GetUserByEmail(ctx, in.Email); err == nil {
		return AuthResult{}, fmt.Errorf("%w: account already exists", duochat_errors.ErrAlreadyExists)
	} else if !errors.Is(err, duochat_errors.ErrNotFound) {
		return AuthResult{}, err
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return AuthResult{}, err
	}

	now := s.now()
	newUser := &user.User{
		ID:           uuid.New(),
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: hash,
		Bio:          in.Bio,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		return AuthResult{}, err
	}

	token, err := s.newAccessToken(newUser.ID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: *newUser, Token: token}, nil
}

// Login never reveals whether the email exists.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateStruct(in); err != nil {
		return AuthResult{}, err
	}

	u, err := s.userRepo.GetUserByEmail(ctx, in.Email)
	if errors.Is(err, duochat_errors.ErrNotFound) {
		return AuthResult{}, fmt.Errorf("%w: invalid credentials", duochat_errors.ErrUnauthorized)
	}
	if err != nil {
		return AuthResult{}, err
	}
	if err := comparePassword(u.PasswordHash, in.Password); err != nil {
		return AuthResult{}, fmt.Errorf("%w: invalid credentials", duochat_errors.ErrUnauthorized)
	}

	token, err := s.newAccessToken(u.ID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: u, Token: token}, nil
}

// Check returns the current account.
func (s *AuthService) Check(ctx context.Context, userID uuid.UUID) (user.User, error) {
	return s.userRepo.GetUserByID(ctx, userID)
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileInput) (user.User, error) {
	in.FullName = content.PlainText(in.FullName)
	in.Bio = content.PlainText(in.Bio)
	if err := validateStruct(in); err != nil {
		return user.User{}, err
	}

	u, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return user.User{}, err
	}

	if in.ProfilePic != "" {
		blob, err := storage.DecodeDataURI(in.ProfilePic)
		if err != nil {
			return user.User{}, err
		}
		if !blob.IsImage() {
			return user.User{}, invalid("profile picture must be an image")
		}
		if s.blobs == nil {
			return user.User{}, fmt.Errorf("%w: no blob store configured", duochat_errors.ErrUpstream)
		}
		url, err := s.blobs.Put(ctx, blob.Key("avatars"), blob.Data, blob.MIME)
		if err != nil {
			return user.User{}, fmt.Errorf("%w: upload failed", duochat_errors.ErrUpstream)
		}
		u.ProfilePic = url
	}
	if in.FullName != "" {
		u.FullName = in.FullName
	}
	if in.Bio != "" {
		u.Bio = in.Bio
	}
	u.UpdatedAt = s.now()

	if err := s.userRepo.UpdateUser(ctx, u); err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, duochat_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, duochat_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return AccessClaims{}, duochat_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, duochat_errors.ErrUnauthorized
	}

	return *claims, nil
}

// AuthenticateToken resolves an access token to the user it was issued for.
func (s *AuthService) AuthenticateToken(tokenString string) (uuid.UUID, error) {
	claims, err := s.ParseAccessToken(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, duochat_errors.ErrUnauthorized
	}
	return userID, nil
}

func (s *AuthService) newAccessToken(userID uuid.UUID) (string, error) {
	now := s.now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func comparePassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

type ctxKey string

var userIDKey ctxKey = "user_id"

func WithUserContext(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	value := ctx.Value(userIDKey)
	if value == nil {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok
}
