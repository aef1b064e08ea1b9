package user

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrHashingPasswordFailed = errors.New("hashing password failed")
	ErrInvalidEmailFormat    = errors.New("invalid email format")
	ErrMissingFields         = errors.New("all fields required")
)

type UserService interface {
	Register(ctx context.Context, name, email, password string) (*User, error)
	ReadUserByEmail(ctx context.Context, email string) (*User, error)
	ReadUserByID(ctx context.Context, id uint) (*User, error)
}

type userService struct {
	repo       UserRepository
	logger     *zap.Logger
	bcryptCost int
}

// Option customizes a UserService.
type Option func(*userService)

// WithBcryptCost overrides bcrypt.DefaultCost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *userService) { s.bcryptCost = cost }
}

func NewUserService(repo UserRepository, logger *zap.Logger, opts ...Option) UserService {
	s := &userService{
		repo:       repo,
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *userService) Register(ctx context.Context, name, email, password string) (*User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))

	if err := s.validate(name, email, password); err != nil {
		s.logger.Warn("registration rejected", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		s.logger.Error("failed to hash password", zap.Error(err))
		return nil, ErrHashingPasswordFailed
	}

	u := NewUser(name, email, string(hashed))
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailAlreadyExists) {
			s.logger.Warn("duplicate registration", zap.String("email", email))
		} else {
			s.logger.Error("failed to create user in repository", zap.Error(err))
		}
		return nil, err
	}
	return u, nil
}

func (s *userService) validate(name, email, password string) error {
	if name == "" || email == "" || password == "" {
		return ErrMissingFields
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmailFormat
	}
	return CheckPassword(password)
}

func (s *userService) ReadUserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.repo.ReadByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			s.logger.Error("failed to get user by email", zap.String("email", email), zap.Error(err))
		}
		return nil, err
	}
	return u, nil
}

func (s *userService) ReadUserByID(ctx context.Context, id uint) (*User, error) {
	u, err := s.repo.ReadByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			s.logger.Error("failed to get user by ID", zap.Uint("id", id), zap.Error(err))
		}
		return nil, err
	}
	return u, nil
}
