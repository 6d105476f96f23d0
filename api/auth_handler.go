package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/tryonix/tryonix-server/apperr"
	"github.com/tryonix/tryonix-server/config"
	"github.com/tryonix/tryonix-server/models"
)

// UserDirectory is the slice of the user store the auth handlers need.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// SignupRequest represents the payload for user registration.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the payload for user login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// AuthHandler issues JWT sessions. The try-on endpoints only consume the
// verified user id; they never touch credentials.
type AuthHandler struct {
	cfg    *config.Config
	users  UserDirectory
	logger *slog.Logger
}

func NewAuthHandler(cfg *config.Config, users UserDirectory, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, users: users, logger: logger}
}

// Signup handles POST /auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, apperr.Validation("Invalid request body"))
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		h.respondError(w, apperr.Validation("Name, Email and Password are required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	_, err := h.users.FindByEmail(ctx, req.Email)
	if err == nil {
		h.respondError(w, apperr.Validation("User with this email already exists"))
		return
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		h.respondError(w, apperr.Internal(err))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.respondError(w, apperr.Internal(err))
		return
	}

	user := &models.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hashed),
	}
	if err := h.users.Create(ctx, user); err != nil {
		h.respondError(w, apperr.Internal(err))
		return
	}

	token, err := GenerateToken(user.ID.Hex(), h.cfg.JWTSecret, h.cfg.JWTExpiry)
	if err != nil {
		h.respondError(w, apperr.Internal(err))
		return
	}

	RespondJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, apperr.Validation("Invalid request body"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	user, err := h.users.FindByEmail(ctx, req.Email)
	if err != nil {
		h.respondError(w, apperr.Authentication("Invalid email or password", nil))
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		h.respondError(w, apperr.Authentication("Invalid email or password", nil))
		return
	}

	token, err := GenerateToken(user.ID.Hex(), h.cfg.JWTSecret, h.cfg.JWTExpiry)
	if err != nil {
		h.respondError(w, apperr.Internal(err))
		return
	}

	RespondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *AuthHandler) respondError(w http.ResponseWriter, err error) {
	RespondError(w, h.logger, err, !h.cfg.IsProduction())
}
