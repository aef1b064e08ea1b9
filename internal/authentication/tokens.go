package authentication

import (
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/br-cmd/MerNproject/internal/utils"
)

var ErrInvalidSubject = errors.New("token subject is not a user id")

// TokenPair is the result of issuing credentials for a user.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenIssuer signs and verifies the access/refresh token pair with separate HMAC secrets.
type TokenIssuer struct {
	accessSecret  string
	refreshSecret string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenIssuer(accessSecret string, accessTTL time.Duration, refreshSecret string, refreshTTL time.Duration) (*TokenIssuer, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, utils.ErrMissingSecret
	}
	return &TokenIssuer{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

// RefreshTTL is the lifetime of issued refresh tokens, also used as the cookie max age.
func (i *TokenIssuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

func (i *TokenIssuer) Issue(userID uint, email string) (TokenPair, error) {
	subject := strconv.FormatUint(uint64(userID), 10)

	access, err := utils.IssueAccessToken(subject, email, i.accessSecret, i.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}

	// jti keeps two tokens issued within the same second distinct
	refresh, expiresAt, err := utils.IssueRefreshToken(subject, uuid.NewString(), i.refreshSecret, i.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshExpiresAt: expiresAt,
	}, nil
}

func (i *TokenIssuer) VerifyAccess(token string) (*utils.AccessClaims, error) {
	return utils.ParseAccessToken(token, i.accessSecret)
}

func (i *TokenIssuer) VerifyRefresh(token string) (*utils.RefreshClaims, error) {
	return utils.ParseRefreshToken(token, i.refreshSecret)
}

// SubjectUserID converts a token subject back into a user id.
func SubjectUserID(subject string) (uint, error) {
	id, err := strconv.ParseUint(subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidSubject
	}
	return uint(id), nil
}
