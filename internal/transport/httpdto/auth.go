package httpdto

import "duochat/internal/domain/user"

// SignupRequest is used for POST /api/auth/signup
type SignupRequest struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

// LoginRequest is used for POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned after signup and login
type AuthResponse struct {
	Envelope
	UserData user.Profile `json:"userData"`
	Token    string       `json:"token"`
}

// UpdateProfileRequest is used for PUT /api/auth/update-profile. ProfilePic
// is a data URI.
type UpdateProfileRequest struct {
	FullName   string `json:"fullName"`
	Bio        string `json:"bio"`
	ProfilePic string `json:"profilePic"`
}

type UserResponse struct {
	Envelope
	User user.Profile `json:"user"`
}
