package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
	"github.com/ramcharankhv-byte/taskhub/internal/repository"
	"github.com/ramcharankhv-byte/taskhub/internal/security"
)

var (
	ErrUserAlreadyExists     = errors.New("user with email or username already exists")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrEmailNotVerified      = errors.New("email not verified")
	ErrEmailAlreadyVerified  = errors.New("email already verified")
	ErrInvalidOrExpiredToken = errors.New("token is invalid or expired")
	ErrInvalidRefreshToken   = errors.New("refresh token is invalid, expired or superseded")
	ErrWrongPassword         = errors.New("old password is incorrect")
)

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RegisterInput struct {
	Email    string
	Username string
	Password string
}

type AuthConfig struct {
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	OneTimeTokenTTL    time.Duration
	RefreshTokenPepper string
	// PublicBaseURL is the prefix of the links embedded in verification and
	// reset mails.
	PublicBaseURL string
}

type AuthServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.User, TokenPair, error)
	Logout(ctx context.Context, userID uint) error
	Refresh(ctx context.Context, rawRefreshToken string) (TokenPair, error)
	VerifyEmail(ctx context.Context, plainToken string) error
	ResendVerification(ctx context.Context, userID uint) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, plainToken, newPassword string) error
	ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error
	GetUser(ctx context.Context, userID uint) (*domain.User, error)
}

// AuthService orchestrates the session lifecycle: registration, the
// verification and reset token flows, login/logout and refresh rotation.
type AuthService struct {
	users  repository.UserRepository
	jwt    *security.JWTManager
	mailer Mailer
	logger *slog.Logger
	cfg    AuthConfig

	// now is swappable in tests for expiry boundary checks.
	now func() time.Time
}

func NewAuthService(users repository.UserRepository, jwt *security.JWTManager, mailer Mailer, logger *slog.Logger, cfg AuthConfig) *AuthService {
	return &AuthService{
		users:  users,
		jwt:    jwt,
		mailer: mailer,
		logger: logger,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.ToLower(strings.TrimSpace(in.Username))

	if _, err := s.users.FindByEmailOrUsername(email, username); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("lookup existing user: %w", err)
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{Email: email, Username: username, PasswordHash: hash}
	if err := s.users.Create(user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.issueVerificationToken(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks, in order: user existence, password, email verification. The
// three failures stay distinct errors; the transport may unify the message.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, TokenPair, error) {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, TokenPair{}, repository.ErrUserNotFound
		}
		return nil, TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := security.CheckPassword(password, user.PasswordHash); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, fmt.Errorf("check password: %w", err)
	}
	if !user.IsEmailVerified {
		return nil, TokenPair{}, ErrEmailNotVerified
	}

	pair, err := s.issueTokenPair(user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	refreshHash := security.HashRefreshToken(pair.RefreshToken, s.cfg.RefreshTokenPepper)
	if err := s.users.SetRefreshTokenHash(user.ID, &refreshHash); err != nil {
		return nil, TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}
	return user, pair, nil
}

// Logout revokes the server-side refresh token. Outstanding access tokens
// stay valid until their own expiry; that is the stateless trade-off.
func (s *AuthService) Logout(ctx context.Context, userID uint) error {
	if err := s.users.SetRefreshTokenHash(userID, nil); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// Refresh rotates the token pair. The presented token must verify
// cryptographically AND hash-match the stored value; the swap itself is a
// storage-level compare-and-swap, so a superseded token can never win a race.
func (s *AuthService) Refresh(ctx context.Context, rawRefreshToken string) (TokenPair, error) {
	claims, err := s.jwt.ParseRefreshToken(rawRefreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	userID, err := claims.UserID()
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	if _, err := s.users.FindByID(userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}

	pair, err := s.issueTokenPair(userID)
	if err != nil {
		return TokenPair{}, err
	}
	oldHash := security.HashRefreshToken(rawRefreshToken, s.cfg.RefreshTokenPepper)
	newHash := security.HashRefreshToken(pair.RefreshToken, s.cfg.RefreshTokenPepper)
	if err := s.users.RotateRefreshTokenHash(userID, oldHash, newHash); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenMismatch) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	return pair, nil
}

// VerifyEmail consumes the one-time verification token: on success the
// stored hash and expiry are cleared, so a replay fails.
func (s *AuthService) VerifyEmail(ctx context.Context, plainToken string) error {
	now := s.now()
	hash := security.HashOneTimeToken(plainToken)
	user, err := s.users.FindByEmailVerificationHash(hash, now)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("lookup verification token: %w", err)
	}
	if user.EmailVerificationTokenHash == nil || user.EmailVerificationExpiresAt == nil ||
		!security.MatchOneTimeToken(plainToken, *user.EmailVerificationTokenHash, *user.EmailVerificationExpiresAt, now) {
		return ErrInvalidOrExpiredToken
	}
	if err := s.users.MarkEmailVerified(user.ID); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

func (s *AuthService) ResendVerification(ctx context.Context, userID uint) error {
	user, err := s.users.FindByID(userID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user.IsEmailVerified {
		return ErrEmailAlreadyVerified
	}
	// Overwriting the stored hash invalidates any previously emailed token.
	return s.issueVerificationToken(ctx, user)
}

// ForgotPassword responds uniformly whether or not the email exists, so the
// endpoint cannot be used to enumerate accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.logger.InfoContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	tok, err := security.NewOneTimeToken(s.cfg.OneTimeTokenTTL)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.users.SetPasswordResetToken(user.ID, tok.Hash, tok.ExpiresAt); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	resetURL := fmt.Sprintf("%s/api/v1/auth/reset-password/%s", s.cfg.PublicBaseURL, tok.Plain)
	html, text := passwordResetMail(user.Username, resetURL)
	s.sendAsync(user.Email, "Reset your password", html, text)
	return nil
}

// ResetPassword replaces the credential and revokes the live refresh token,
// so sessions minted under the old password cannot outlive it.
func (s *AuthService) ResetPassword(ctx context.Context, plainToken, newPassword string) error {
	now := s.now()
	hash := security.HashOneTimeToken(plainToken)
	user, err := s.users.FindByPasswordResetHash(hash, now)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}
	if user.PasswordResetTokenHash == nil || user.PasswordResetExpiresAt == nil ||
		!security.MatchOneTimeToken(plainToken, *user.PasswordResetTokenHash, *user.PasswordResetExpiresAt, now) {
		return ErrInvalidOrExpiredToken
	}

	newHash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.ResetPassword(user.ID, newHash); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	user, err := s.users.FindByID(userID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if err := security.CheckPassword(oldPassword, user.PasswordHash); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			return ErrWrongPassword
		}
		return fmt.Errorf("check password: %w", err)
	}
	newHash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(userID, newHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *AuthService) GetUser(ctx context.Context, userID uint) (*domain.User, error) {
	return s.users.FindByID(userID)
}

func (s *AuthService) issueTokenPair(userID uint) (TokenPair, error) {
	access, err := s.jwt.SignAccessToken(userID, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.jwt.SignRefreshToken(userID, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) issueVerificationToken(ctx context.Context, user *domain.User) error {
	tok, err := security.NewOneTimeToken(s.cfg.OneTimeTokenTTL)
	if err != nil {
		return fmt.Errorf("generate verification token: %w", err)
	}
	if err := s.users.SetEmailVerificationToken(user.ID, tok.Hash, tok.ExpiresAt); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	verifyURL := fmt.Sprintf("%s/api/v1/auth/verify-email/%s", s.cfg.PublicBaseURL, tok.Plain)
	html, text := verificationMail(user.Username, verifyURL)
	s.sendAsync(user.Email, "Please verify your email", html, text)
	return nil
}

// sendAsync delivers best-effort off the request path. Failures are logged,
// never surfaced to the caller.
func (s *AuthService) sendAsync(to, subject, html, text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.mailer.Send(ctx, MailMessage{To: to, Subject: subject, HTMLBody: html, TextBody: text}); err != nil {
			s.logger.Error("email delivery failed", "to", to, "subject", subject, "error", err.Error())
		}
	}()
}
