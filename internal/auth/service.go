package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/storage"
)

// ErrInvalidCredentials is returned by Login for an unknown username or a
// wrong password.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrInvalidInput is returned when a username or password is missing or too
// long.
var ErrInvalidInput = errors.New("invalid user data")

const maxUsernameLen = 32

// Service registers and logs in players.
type Service struct {
	users  storage.UserStore
	issuer *Issuer
	logger *zap.Logger
}

// NewService creates a Service.
//
// Precondition: users, issuer and logger must be non-nil.
func NewService(users storage.UserStore, issuer *Issuer, logger *zap.Logger) *Service {
	return &Service{users: users, issuer: issuer, logger: logger}
}

// Register creates a player with a hashed password.
//
// Postcondition: Returns ErrInvalidInput for an empty or oversized username or
// an empty password, storage.ErrUserExists if the name is taken.
func (s *Service) Register(ctx context.Context, username, password string) (storage.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > maxUsernameLen || password == "" {
		return storage.User{}, ErrInvalidInput
	}
	hash, err := HashPassword(password)
	if err != nil {
		return storage.User{}, fmt.Errorf("hashing password: %w", err)
	}
	u, err := s.users.CreateUser(ctx, storage.Credentials{Username: username, PasswordHash: hash})
	if err != nil {
		return storage.User{}, err
	}
	s.logger.Info("user registered", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	return u, nil
}

// Login checks credentials and issues an identity token.
//
// Postcondition: Returns ErrInvalidInput when either field is empty and
// ErrInvalidCredentials when they do not match a user.
func (s *Service) Login(ctx context.Context, username, password string) (storage.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return storage.User{}, "", ErrInvalidInput
	}
	u, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, storage.ErrUserNotFound) {
		return storage.User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return storage.User{}, "", fmt.Errorf("looking up user: %w", err)
	}
	if !CheckPassword(password, u.PasswordHash) {
		s.logger.Debug("login rejected", zap.String("username", username))
		return storage.User{}, "", ErrInvalidCredentials
	}
	token, err := s.issuer.Issue(u)
	if err != nil {
		return storage.User{}, "", err
	}
	return u, token, nil
}
