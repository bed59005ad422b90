package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atinyakov/DocLedger/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthRepository defines the persistence operations
// required by the authentication service.
type AuthRepository interface {
	// UserExists returns true if a user with the given username exists.
	UserExists(ctx context.Context, username string) (bool, error)
	// RegisterUser stores a new user. It returns models.ErrUserExists
	// if the username is taken.
	RegisterUser(ctx context.Context, user models.User) error
	// GetUserByUsername returns models.ErrUserNotFound if absent.
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	// GetUserByID returns models.ErrUserNotFound if absent.
	GetUserByID(ctx context.Context, id string) (models.User, error)
}

// LoginGuard tracks failed logins per username.
type LoginGuard interface {
	// Check returns models.ErrLockedOut while username is locked.
	Check(ctx context.Context, username string) error
	// Fail records a failed attempt.
	Fail(ctx context.Context, username string) error
	// Reset clears the failure count after a successful login.
	Reset(ctx context.Context, username string) error
}

// NopLoginGuard never locks anyone out.
type NopLoginGuard struct{}

func (NopLoginGuard) Check(context.Context, string) error { return nil }
func (NopLoginGuard) Fail(context.Context, string) error  { return nil }
func (NopLoginGuard) Reset(context.Context, string) error { return nil }

// AuthService implements registration, login and credential resolution.
type AuthService struct {
	repo     AuthRepository
	tokens   *TokenIssuer
	guard    LoginGuard
	recorder Recorder
	log      *zap.Logger
	cost     int
}

// NewAuthService constructs an AuthService. guard may be nil.
func NewAuthService(repo AuthRepository, tokens *TokenIssuer, guard LoginGuard, log *zap.Logger) *AuthService {
	if guard == nil {
		guard = NopLoginGuard{}
	}
	return &AuthService{
		repo:     repo,
		tokens:   tokens,
		guard:    guard,
		recorder: nopRecorder{},
		log:      log.With(zap.String("component", "auth")),
		cost:     bcrypt.DefaultCost,
	}
}

// SetRecorder reports login and register outcomes to rec.
func (s *AuthService) SetRecorder(rec Recorder) {
	s.recorder = rec
}

// UserExists checks whether a user with the specified username exists.
func (s *AuthService) UserExists(ctx context.Context, username string) (bool, error) {
	return s.repo.UserExists(ctx, username)
}

// Register creates a regular user and returns a credential for it.
func (s *AuthService) Register(ctx context.Context, username, password string) (token string, err error) {
	defer func() { s.recorder.ObserveOperation("register", err) }()

	user, err := s.createUser(ctx, username, password, models.RoleUser)
	if err != nil {
		return "", err
	}
	return s.tokens.Issue(user.ID)
}

// Login exchanges a username and password for a credential.
func (s *AuthService) Login(ctx context.Context, username, password string) (token string, err error) {
	defer func() { s.recorder.ObserveOperation("login", err) }()

	username = strings.TrimSpace(username)
	if err := s.guard.Check(ctx, username); err != nil {
		return "", err
	}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, models.ErrUserNotFound) {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if err != nil || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		if ferr := s.guard.Fail(ctx, username); ferr != nil {
			s.log.Warn("failed to record login failure", zap.String("username", username), zap.Error(ferr))
		}
		return "", models.ErrInvalidCredentials
	}

	if err := s.guard.Reset(ctx, username); err != nil {
		s.log.Warn("failed to reset login failures", zap.String("username", username), zap.Error(err))
	}
	return s.tokens.Issue(user.ID)
}

// Authenticate resolves a credential to the acting identity. The role is
// read from the identity store, never from the credential.
func (s *AuthService) Authenticate(ctx context.Context, token string) (models.Identity, error) {
	userID, err := s.tokens.Parse(token)
	if err != nil {
		return models.Identity{}, err
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return models.Identity{}, fmt.Errorf("%w: user not found", models.ErrUnauthenticated)
		}
		return models.Identity{}, fmt.Errorf("lookup user: %w", err)
	}
	return models.Identity{
		ID:       user.ID,
		Username: user.Username,
		IsAdmin:  user.Role == models.RoleAdmin,
	}, nil
}

// ResolveOwner maps a user ID or username to a user ID.
func (s *AuthService) ResolveOwner(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: owner is required", models.ErrInvalidInput)
	}
	user, err := s.repo.GetUserByID(ctx, ref)
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return "", err
	}
	user, err = s.repo.GetUserByUsername(ctx, ref)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// SeedAdmin creates the admin account if no user with that name exists.
// It reports whether a user was created.
func (s *AuthService) SeedAdmin(ctx context.Context, username, password string) (bool, error) {
	exists, err := s.repo.UserExists(ctx, username)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if _, err := s.createUser(ctx, username, password, models.RoleAdmin); err != nil {
		if errors.Is(err, models.ErrUserExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *AuthService) createUser(ctx context.Context, username, password string, role models.Role) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return models.User{}, fmt.Errorf("%w: username and password are required", models.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return models.User{}, fmt.Errorf("%w: password is too long", models.ErrInvalidInput)
		}
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.RegisterUser(ctx, user); err != nil {
		return models.User{}, err
	}
	s.log.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(role)))
	return user, nil
}
