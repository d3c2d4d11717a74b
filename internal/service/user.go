// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the storage layer.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campushub/campus-events/internal/apperr"
	"github.com/campushub/campus-events/internal/auth"
	"github.com/campushub/campus-events/internal/model"
	"github.com/campushub/campus-events/internal/store"
)

// UserService handles account creation and login.
type UserService struct {
	users  store.UserStore
	tokens *auth.TokenIssuer
	now    func() time.Time
	newID  func() string
}

// NewUserService constructs a UserService.
func NewUserService(users store.UserStore, tokens *auth.TokenIssuer) *UserService {
	return &UserService{
		users:  users,
		tokens: tokens,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// SignUp creates an account and returns a signed token. A duplicate email is
// a Conflict. Role defaults to participant.
func (s *UserService) SignUp(ctx context.Context, req model.SignupRequest) (*model.AuthResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Name == "" {
		return nil, apperr.New(apperr.Validation, "name is required")
	}
	if !isValidEmail(req.Email) {
		return nil, apperr.New(apperr.Validation, "a valid email is required")
	}
	if req.Password == "" {
		return nil, apperr.New(apperr.Validation, "password is required")
	}
	role := req.Role
	if role == "" {
		role = model.RoleParticipant
	}
	if !role.Valid() {
		return nil, apperr.Newf(apperr.Validation, "unknown role %q", role)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "hash password", err)
	}

	user := &model.User{
		ID:           s.newID(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	// Uniqueness is enforced by the store so two simultaneous signups with
	// the same email cannot both succeed.
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "issue token", err)
	}
	return &model.AuthResponse{
		Message: "User registered successfully",
		Token:   token,
		User:    user.View(),
	}, nil
}

// Login verifies credentials and returns a signed token. The error message
// is identical whether the email is unknown or the password is wrong.
func (s *UserService) Login(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		return nil, apperr.New(apperr.Validation, "invalid credentials")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if apperr.IsKind(err, apperr.NotFound) {
			return nil, apperr.New(apperr.Validation, "invalid credentials")
		}
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return nil, apperr.New(apperr.Validation, "invalid credentials")
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "issue token", err)
	}
	return &model.AuthResponse{
		Message: "Login successful",
		Token:   token,
		User:    user.View(),
	}, nil
}

// isValidEmail does a basic structural check (no external deps).
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
