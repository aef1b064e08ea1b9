package user

import (
	"errors"
	"fmt"
	"strings"
)

const (
	PasswordMinimumLength = 6
	// bcrypt ignores everything past 72 bytes
	PasswordMaximumLength = 72
)

var (
	ErrPasswordTooShort      = fmt.Errorf("password should be at least %d characters", PasswordMinimumLength)
	ErrPasswordTooLong       = fmt.Errorf("password should be at most %d bytes", PasswordMaximumLength)
	ErrPasswordHasOnlySpaces = errors.New("password must not be blank")
)

func CheckPassword(password string) error {
	if len(password) < PasswordMinimumLength {
		return ErrPasswordTooShort
	}
	if len(password) > PasswordMaximumLength {
		return ErrPasswordTooLong
	}
	if strings.TrimSpace(password) == "" {
		return ErrPasswordHasOnlySpaces
	}
	return nil
}
