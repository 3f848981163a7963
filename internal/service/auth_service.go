package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/cashflow/internal/auth"
	"github.com/mmynk/cashflow/internal/models"
	"github.com/mmynk/cashflow/internal/storage"
)

// UserRecord is an account as sent over the wire. It never carries the
// password hash.
type UserRecord struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

type RegisterRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Password    string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User  UserRecord `json:"user"`
	Token string     `json:"token"`
}

type GetCurrentUserRequest struct{}

type UserResponse struct {
	User UserRecord `json:"user"`
}

// AuthService implements the AuthService RPC interface.
type AuthService struct {
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
	users         storage.UserStore
	logger        *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(authenticator auth.Authenticator, jwtManager *auth.JWTManager, users storage.UserStore, logger *slog.Logger) *AuthService {
	return &AuthService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
		users:         users,
		logger:        logger,
	}
}

// Handler returns the path prefix and handler serving the service.
func (s *AuthService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	return serviceHandler(AuthServiceName, map[string]*connect.Handler{
		AuthServiceRegisterProcedure:       unary(AuthServiceRegisterProcedure, s.Register, opts...),
		AuthServiceLoginProcedure:          unary(AuthServiceLoginProcedure, s.Login, opts...),
		AuthServiceGetCurrentUserProcedure: unary(AuthServiceGetCurrentUserProcedure, s.GetCurrentUser, opts...),
	})
}

// Register creates a new user account and signs it in.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	s.logger.Info("Register request", "email", req.Email)

	if req.Email == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, auth.ErrInvalidEmail)
	}

	user, err := s.authenticator.Register(ctx, req.Email, req.DisplayName, req.Password)
	if err != nil {
		s.logger.Error("Registration failed", "email", req.Email, "error", err)
		switch {
		case errors.Is(err, auth.ErrEmailExists):
			return nil, connect.NewError(connect.CodeAlreadyExists, err)
		case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidEmail):
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp, err := s.signIn(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User registered successfully", "user_id", user.ID, "email", user.Email)
	return resp, nil
}

// Login authenticates a user and returns a JWT token.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	s.logger.Info("Login request", "email", req.Email)

	if req.Email == "" || req.Password == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, auth.ErrInvalidCredentials)
	}

	user, err := s.authenticator.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		s.logger.Warn("Login failed", "email", req.Email, "error", err)
		return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidCredentials)
	}

	resp, err := s.signIn(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User logged in successfully", "user_id", user.ID, "email", user.Email)
	return resp, nil
}

// GetCurrentUser returns the currently authenticated user's information.
func (s *AuthService) GetCurrentUser(ctx context.Context, _ *GetCurrentUserRequest) (*UserResponse, error) {
	userID, err := requireUser(ctx, AuthServiceGetCurrentUserProcedure)
	if err != nil {
		return nil, err
	}

	s.logger.Info("GetCurrentUser request", "user_id", userID)

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Warn("GetCurrentUser failed", "user_id", userID, "error", err)
		if errors.Is(err, storage.ErrNotFound) {
			// Token outlived its account.
			return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
		}
		return nil, toConnectError(err)
	}

	return &UserResponse{User: toUserRecord(user)}, nil
}

func (s *AuthService) signIn(user *models.User) (*AuthResponse, error) {
	token, err := s.jwtManager.Generate(user)
	if err != nil {
		s.logger.Error("Failed to generate token", "user_id", user.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return &AuthResponse{User: toUserRecord(user), Token: token}, nil
}

func toUserRecord(user *models.User) UserRecord {
	return UserRecord{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		CreatedAt:   time.Unix(user.CreatedAt, 0).UTC().Format(time.RFC3339),
	}
}
