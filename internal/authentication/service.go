package authentication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/br-cmd/MerNproject/internal/user"
)

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrLoginFailed         = errors.New("login failed")
	ErrNoRefreshToken      = errors.New("no refresh token provided")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrStaleRefreshToken means the token verified but is not the one currently stored
	// for its user (rotated out, logged out or forged with a leaked secret).
	ErrStaleRefreshToken  = errors.New("refresh token is not current")
	ErrInvalidAccessToken = errors.New("invalid access token")
)

type AuthenticationService interface {
	Register(ctx context.Context, name, email, password string) (*user.User, TokenPair, error)
	Login(ctx context.Context, email, password string) (*user.User, TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Authenticate(ctx context.Context, accessToken string) (*user.User, error)
	// RefreshTTL is the lifetime of refresh tokens issued by this service.
	RefreshTTL() time.Duration
}

type authenticationService struct {
	userService user.UserService
	recordRepo  RecordRepository
	issuer      *TokenIssuer
	logger      *zap.Logger
	now         func() time.Time
}

func NewAuthenticationService(
	userService user.UserService,
	recordRepo RecordRepository,
	issuer *TokenIssuer,
	logger *zap.Logger,
) AuthenticationService {
	return &authenticationService{
		userService: userService,
		recordRepo:  recordRepo,
		issuer:      issuer,
		logger:      logger,
		now:         time.Now,
	}
}

func (a *authenticationService) RefreshTTL() time.Duration {
	return a.issuer.RefreshTTL()
}

func (a *authenticationService) Register(ctx context.Context, name, email, password string) (*user.User, TokenPair, error) {
	u, err := a.userService.Register(ctx, name, email, password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := a.issueAndStore(ctx, u)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return u, pair, nil
}

func (a *authenticationService) Login(ctx context.Context, email, password string) (*user.User, TokenPair, error) {
	u, err := a.userService.ReadUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := a.issueAndStore(ctx, u)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return u, pair, nil
}

func (a *authenticationService) issueAndStore(ctx context.Context, u *user.User) (TokenPair, error) {
	pair, err := a.issuer.Issue(u.ID, u.Email)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	if err := a.recordRepo.Store(ctx, u.ID, HashToken(pair.RefreshToken), pair.RefreshExpiresAt); err != nil {
		return TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}
	return pair, nil
}

// Refresh verifies the presented refresh token, matches it against the stored record,
// rotates it and returns the new pair.
func (a *authenticationService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if refreshToken == "" {
		return TokenPair{}, ErrNoRefreshToken
	}

	claims, err := a.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		a.logger.Warn("refresh token verification failed", zap.Error(err))
		return TokenPair{}, ErrInvalidRefreshToken
	}
	userID, err := SubjectUserID(claims.Subject)
	if err != nil {
		a.logger.Warn("refresh token has bad subject", zap.String("subject", claims.Subject))
		return TokenPair{}, ErrInvalidRefreshToken
	}

	hash := HashToken(refreshToken)
	rec, err := a.recordRepo.Find(ctx, userID, hash)
	if errors.Is(err, ErrRecordNotFound) {
		a.logger.Warn("refresh token not current", zap.Uint("userID", userID))
		return TokenPair{}, ErrStaleRefreshToken
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("find refresh token: %w", err)
	}
	if rec.Expired(a.now()) {
		if err := a.recordRepo.Remove(ctx, hash); err != nil && !errors.Is(err, ErrRecordNotFound) {
			a.logger.Warn("failed to remove expired refresh token", zap.Uint("userID", userID), zap.Error(err))
		}
		return TokenPair{}, ErrStaleRefreshToken
	}

	u, err := a.userService.ReadUserByID(ctx, userID)
	if errors.Is(err, user.ErrUserNotFound) {
		return TokenPair{}, ErrStaleRefreshToken
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("load user: %w", err)
	}

	pair, err := a.issuer.Issue(u.ID, u.Email)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	// Last writer wins when two refreshes for the same user race.
	err = a.recordRepo.Update(ctx, userID, HashToken(pair.RefreshToken), pair.RefreshExpiresAt)
	if errors.Is(err, ErrRecordNotFound) {
		return TokenPair{}, ErrStaleRefreshToken
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	return pair, nil
}

// Logout forgets the refresh token. Unknown tokens are ignored.
func (a *authenticationService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	err := a.recordRepo.Remove(ctx, HashToken(refreshToken))
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return fmt.Errorf("remove refresh token: %w", err)
	}
	return nil
}

func (a *authenticationService) Authenticate(ctx context.Context, accessToken string) (*user.User, error) {
	claims, err := a.issuer.VerifyAccess(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}
	userID, err := SubjectUserID(claims.Subject)
	if err != nil {
		return nil, ErrInvalidAccessToken
	}
	u, err := a.userService.ReadUserByID(ctx, userID)
	if errors.Is(err, user.ErrUserNotFound) {
		return nil, ErrInvalidAccessToken
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
