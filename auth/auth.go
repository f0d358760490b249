// Package auth provides user registration, password authentication,
// and JWT issuance for the mail service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rbaliyan/gamemail/store"
)

// Sentinel errors for the auth package.
var (
	// ErrInvalidCredentials is returned for a bad username or password.
	// The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInactiveUser is returned when a deactivated user authenticates.
	ErrInactiveUser = errors.New("auth: user is not active")

	// ErrUserExists is returned when the username or email is taken.
	ErrUserExists = errors.New("auth: username or email already registered")

	// ErrInvalidToken is returned for expired or malformed tokens.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrSecretRequired is returned when no signing secret is configured.
	ErrSecretRequired = errors.New("auth: signing secret is required")
)

// Default configuration values.
const (
	DefaultTokenTTL   = 24 * time.Hour
	DefaultBcryptCost = bcrypt.DefaultCost

	MinUsernameLength = 3
	MaxUsernameLength = 32
	MinPasswordLength = 8

	maxPasswordBytes = 72
)

// options holds auth service configuration.
type options struct {
	tokenTTL   time.Duration
	bcryptCost int
	logger     *slog.Logger
}

// Option configures the auth service.
type Option func(*options)

// WithTokenTTL sets how long issued tokens stay valid.
// Default is 24 hours.
func WithTokenTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.tokenTTL = d
		}
	}
}

// WithBcryptCost sets the bcrypt hashing cost.
// Lower it in tests to keep them fast.
func WithBcryptCost(cost int) Option {
	return func(o *options) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			o.bcryptCost = cost
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Service handles registration, login, and token verification.
type Service struct {
	users  store.UserStore
	secret []byte
	opts   *options
	logger *slog.Logger
}

// New creates an auth service backed by the given user store.
// The secret signs issued JWTs and must not be empty.
func New(users store.UserStore, secret []byte, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, ErrSecretRequired
	}

	o := &options{
		tokenTTL:   DefaultTokenTTL,
		bcryptCost: DefaultBcryptCost,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Service{
		users:  users,
		secret: secret,
		opts:   o,
		logger: o.logger,
	}, nil
}

// Register creates a new active user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, email, password string) (*store.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if err := validateRegistration(username, email, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, &store.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Active:       true,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEntry) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Authenticate checks a username/password pair and returns the user.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*store.User, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrInactiveUser
	}

	return user, nil
}

// Login authenticates and issues a token in one step.
func (s *Service) Login(ctx context.Context, username, password string) (*store.User, string, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, "", err
	}
	token, err := s.Token(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func validateRegistration(username, email, password string) error {
	if n := len(username); n < MinUsernameLength || n > MaxUsernameLength {
		return fmt.Errorf("auth: username must be %d-%d characters", MinUsernameLength, MaxUsernameLength)
	}
	if !strings.Contains(email, "@") {
		return errors.New("auth: invalid email address")
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("auth: password must be at least %d characters", MinPasswordLength)
	}
	// bcrypt only hashes the first 72 bytes and rejects longer input.
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("auth: password must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}
