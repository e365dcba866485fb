package repository

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUser      = errors.New("user with email or username already exists")
	ErrProjectNotFound    = errors.New("project not found")
	ErrMembershipNotFound = errors.New("project member not found")
	ErrTaskNotFound       = errors.New("task not found")
	ErrSubTaskNotFound    = errors.New("subtask not found")

	// ErrRefreshTokenMismatch is returned when the compare-and-swap rotation
	// loses: the stored refresh token no longer equals the presented one.
	ErrRefreshTokenMismatch = errors.New("stored refresh token mismatch")
)
