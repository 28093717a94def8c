package handler

import (
	"net/http"

	"duochat/internal/services"
	"duochat/internal/transport/httpdto"
	"duochat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication HTTP endpoints.
type AuthHandler struct {
	service *services.AuthService
	logger  *logger.Logger
}

func NewAuthHandler(service *services.AuthService, l *logger.Logger) *AuthHandler {
	return &AuthHandler{service: service, logger: orNop(l)}
}

// Signup handles account creation.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req httpdto.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	res, err := h.service.Signup(c.Request.Context(), services.SignupInput{
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
		Bio:      req.Bio,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.AuthResponse{
		Envelope: httpdto.Envelope{Success: true, Message: "Account created successfully"},
		UserData: res.User.Profile(),
		Token:    res.Token,
	})
}

// Login handles user authentication.
func (h *AuthHandler) Login(c *gin.Context) {
	var req httpdto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	res, err := h.service.Login(c.Request.Context(), services.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.AuthResponse{
		Envelope: httpdto.Envelope{Success: true, Message: "Login successful"},
		UserData: res.User.Profile(),
		Token:    res.Token,
	})
}

// Check returns the authenticated account.
func (h *AuthHandler) Check(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	u, err := h.service.Check(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.UserResponse{Envelope: httpdto.OK(), User: u.Profile()})
}

func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req httpdto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	u, err := h.service.UpdateProfile(c.Request.Context(), userID, services.ProfileInput{
		FullName:   req.FullName,
		Bio:        req.Bio,
		ProfilePic: req.ProfilePic,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.UserResponse{Envelope: httpdto.OK(), User: u.Profile()})
}
