package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
	"github.com/ramcharankhv-byte/taskhub/internal/repository"
	"github.com/ramcharankhv-byte/taskhub/internal/security"
)

type stubUserRepository struct {
	createFn                 func(u *domain.User) error
	findByIDFn               func(id uint) (*domain.User, error)
	findByEmailFn            func(email string) (*domain.User, error)
	findByEmailOrUsernameFn  func(email, username string) (*domain.User, error)
	findByVerificationHashFn func(hash string, now time.Time) (*domain.User, error)
	findByResetHashFn        func(hash string, now time.Time) (*domain.User, error)
	setVerificationTokenFn   func(userID uint, hash string, expiresAt time.Time) error
	markEmailVerifiedFn      func(userID uint) error
	setResetTokenFn          func(userID uint, hash string, expiresAt time.Time) error
	resetPasswordFn          func(userID uint, passwordHash string) error
	updatePasswordFn         func(userID uint, passwordHash string) error
	setRefreshTokenHashFn    func(userID uint, hash *string) error
	rotateRefreshTokenFn     func(userID uint, oldHash, newHash string) error
}

func (s *stubUserRepository) Create(u *domain.User) error { return s.createFn(u) }
func (s *stubUserRepository) FindByID(id uint) (*domain.User, error) {
	return s.findByIDFn(id)
}
func (s *stubUserRepository) FindByEmail(email string) (*domain.User, error) {
	return s.findByEmailFn(email)
}
func (s *stubUserRepository) FindByEmailOrUsername(email, username string) (*domain.User, error) {
	return s.findByEmailOrUsernameFn(email, username)
}
func (s *stubUserRepository) FindByEmailVerificationHash(hash string, now time.Time) (*domain.User, error) {
	return s.findByVerificationHashFn(hash, now)
}
func (s *stubUserRepository) FindByPasswordResetHash(hash string, now time.Time) (*domain.User, error) {
	return s.findByResetHashFn(hash, now)
}
func (s *stubUserRepository) SetEmailVerificationToken(userID uint, hash string, expiresAt time.Time) error {
	return s.setVerificationTokenFn(userID, hash, expiresAt)
}
func (s *stubUserRepository) MarkEmailVerified(userID uint) error {
	return s.markEmailVerifiedFn(userID)
}
func (s *stubUserRepository) SetPasswordResetToken(userID uint, hash string, expiresAt time.Time) error {
	return s.setResetTokenFn(userID, hash, expiresAt)
}
func (s *stubUserRepository) ResetPassword(userID uint, passwordHash string) error {
	return s.resetPasswordFn(userID, passwordHash)
}
func (s *stubUserRepository) UpdatePassword(userID uint, passwordHash string) error {
	return s.updatePasswordFn(userID, passwordHash)
}
func (s *stubUserRepository) SetRefreshTokenHash(userID uint, hash *string) error {
	return s.setRefreshTokenHashFn(userID, hash)
}
func (s *stubUserRepository) RotateRefreshTokenHash(userID uint, oldHash, newHash string) error {
	return s.rotateRefreshTokenFn(userID, oldHash, newHash)
}

// capturingMailer records sends on a channel so tests can wait for the
// fire-and-forget delivery goroutine.
type capturingMailer struct {
	sent chan MailMessage
}

func newCapturingMailer() *capturingMailer {
	return &capturingMailer{sent: make(chan MailMessage, 4)}
}

func (m *capturingMailer) Send(_ context.Context, msg MailMessage) error {
	m.sent <- msg
	return nil
}

func (m *capturingMailer) waitForMail(t *testing.T) MailMessage {
	t.Helper()
	select {
	case msg := <-m.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound mail")
		return MailMessage{}
	}
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    168 * time.Hour,
		OneTimeTokenTTL:    20 * time.Minute,
		RefreshTokenPepper: "test-pepper",
		PublicBaseURL:      "http://localhost:8080",
	}
}

func newTestAuthService(users repository.UserRepository, mailer Mailer) *AuthService {
	jwt := security.NewJWTManager("taskhub-test", "taskhub-clients", "access-secret", "refresh-secret")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuthService(users, jwt, mailer, logger, testAuthConfig())
}

func TestAuthServiceRegister(t *testing.T) {
	t.Run("creates user and mails verification link", func(t *testing.T) {
		mailer := newCapturingMailer()
		var storedHash string
		users := &stubUserRepository{
			findByEmailOrUsernameFn: func(email, username string) (*domain.User, error) {
				return nil, repository.ErrUserNotFound
			},
			createFn: func(u *domain.User) error {
				u.ID = 7
				return nil
			},
			setVerificationTokenFn: func(userID uint, hash string, expiresAt time.Time) error {
				if userID != 7 {
					t.Errorf("unexpected user id %d", userID)
				}
				storedHash = hash
				return nil
			},
		}
		svc := newTestAuthService(users, mailer)

		u, err := svc.Register(context.Background(), RegisterInput{
			Email:    " New.User@Example.COM ",
			Username: "NewUser",
			Password: "s3cret-pass",
		})
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		if u.Email != "new.user@example.com" || u.Username != "newuser" {
			t.Fatalf("expected normalized identity, got %q / %q", u.Email, u.Username)
		}
		if u.PasswordHash == "s3cret-pass" || u.PasswordHash == "" {
			t.Fatal("expected password stored hashed")
		}

		msg := mailer.waitForMail(t)
		if msg.To != "new.user@example.com" {
			t.Fatalf("mail sent to %q", msg.To)
		}
		// The emailed link carries the plain token whose hash was stored.
		idx := strings.LastIndex(msg.TextBody, "/verify-email/")
		if idx < 0 {
			t.Fatalf("no verification link in mail body: %q", msg.TextBody)
		}
		plain := strings.TrimSpace(msg.TextBody[idx+len("/verify-email/"):])
		plain = strings.Fields(plain)[0]
		if security.HashOneTimeToken(plain) != storedHash {
			t.Fatal("stored hash does not match emailed token")
		}
	})

	t.Run("rejects duplicate identity", func(t *testing.T) {
		users := &stubUserRepository{
			findByEmailOrUsernameFn: func(email, username string) (*domain.User, error) {
				return &domain.User{ID: 1}, nil
			},
		}
		svc := newTestAuthService(users, newCapturingMailer())
		if _, err := svc.Register(context.Background(), RegisterInput{Email: "a@b.c", Username: "abc", Password: "x"}); !errors.Is(err, ErrUserAlreadyExists) {
			t.Fatalf("expected ErrUserAlreadyExists, got %v", err)
		}
	})
}

func TestAuthServiceLoginOrdering(t *testing.T) {
	passwordHash, err := security.HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hash fixture password: %v", err)
	}

	t.Run("unknown user", func(t *testing.T) {
		users := &stubUserRepository{
			findByEmailFn: func(email string) (*domain.User, error) { return nil, repository.ErrUserNotFound },
		}
		svc := newTestAuthService(users, newCapturingMailer())
		if _, _, err := svc.Login(context.Background(), "ghost@example.com", "whatever"); !errors.Is(err, repository.ErrUserNotFound) {
			t.Fatalf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("wrong password checked before verification state", func(t *testing.T) {
		users := &stubUserRepository{
			findByEmailFn: func(email string) (*domain.User, error) {
				// Unverified AND wrong password: the password failure wins.
				return &domain.User{ID: 2, PasswordHash: passwordHash, IsEmailVerified: false}, nil
			},
		}
		svc := newTestAuthService(users, newCapturingMailer())
		if _, _, err := svc.Login(context.Background(), "u@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unverified email", func(t *testing.T) {
		users := &stubUserRepository{
			findByEmailFn: func(email string) (*domain.User, error) {
				return &domain.User{ID: 2, PasswordHash: passwordHash, IsEmailVerified: false}, nil
			},
		}
		svc := newTestAuthService(users, newCapturingMailer())
		if _, _, err := svc.Login(context.Background(), "u@example.com", "correct-horse"); !errors.Is(err, ErrEmailNotVerified) {
			t.Fatalf("expected ErrEmailNotVerified, got %v", err)
		}
	})

	t.Run("success persists hashed refresh token", func(t *testing.T) {
		var persisted *string
		users := &stubUserRepository{
			findByEmailFn: func(email string) (*domain.User, error) {
				return &domain.User{ID: 2, PasswordHash: passwordHash, IsEmailVerified: true}, nil
			},
			setRefreshTokenHashFn: func(userID uint, hash *string) error {
				persisted = hash
				return nil
			},
		}
		svc := newTestAuthService(users, newCapturingMailer())
		_, pair, err := svc.Login(context.Background(), "u@example.com", "correct-horse")
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		if pair.AccessToken == "" || pair.RefreshToken == "" {
			t.Fatal("expected both tokens issued")
		}
		if persisted == nil {
			t.Fatal("expected refresh token hash persisted")
		}
		want := security.HashRefreshToken(pair.RefreshToken, testAuthConfig().RefreshTokenPepper)
		if *persisted != want {
			t.Fatal("stored refresh hash does not match issued token")
		}
		if *persisted == pair.RefreshToken {
			t.Fatal("refresh token must not be stored in the clear")
		}
	})
}

func TestAuthServiceRefresh(t *testing.T) {
	t.Run("rotates via compare and swap", func(t *testing.T) {
		jwt := security.NewJWTManager("taskhub-test", "taskhub-clients", "access-secret", "refresh-secret")
		raw, err := jwt.SignRefreshToken(9, time.Hour)
		if err != nil {
			t.Fatalf("sign fixture token: %v", err)
		}
		oldHash := security.HashRefreshToken(raw, "test-pepper")

		var rotatedOld, rotatedNew string
		users := &stubUserRepository{
			findByIDFn: func(id uint) (*domain.User, error) { return &domain.User{ID: id}, nil },
			rotateRefreshTokenFn: func(userID uint, o, n string) error {
				if userID != 9 {
					t.Errorf("unexpected user id %d", userID)
				}
				rotatedOld, rotatedNew = o, n
				return nil
			},
		}
		svc := newTestAuthService(users, newCapturingMailer())
		pair, err := svc.Refresh(context.Background(), raw)
		if err != nil {
			t.Fatalf("refresh: %v", err)
		}
		if rotatedOld != oldHash {
			t.Fatal("rotation did not present the hash of the incoming token")
		}
		if rotatedNew != security.HashRefreshToken(pair.RefreshToken, "test-pepper") {
			t.Fatal("rotation did not install the hash of the new token")
		}
	})

	t.Run("superseded token is rejected", func(t *testing.T) {
		jwt := security.NewJWTManager("taskhub-test", "taskhub-clients", "access-secret", "refresh-secret")
		raw, err := jwt.SignRefreshToken(9, time.Hour)
		if err != nil {
			t.Fatalf("sign fixture token: %v", err)
		}
		users := &stubUserRepository{
			findByIDFn: func(id uint) (*domain.User, error) { return &domain.User{ID: id}, nil },
			rotateRefreshTokenFn: func(userID uint, o, n string) error {
				return repository.ErrRefreshTokenMismatch
			},
		}
		svc := newTestAuthService(users, newCapturingMailer())
		if _, err := svc.Refresh(context.Background(), raw); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
		}
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		jwt := security.NewJWTManager("taskhub-test", "taskhub-clients", "access-secret", "refresh-secret")
		access, err := jwt.SignAccessToken(9, time.Hour)
		if err != nil {
			t.Fatalf("sign fixture token: %v", err)
		}
		svc := newTestAuthService(&stubUserRepository{}, newCapturingMailer())
		if _, err := svc.Refresh(context.Background(), access); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
		}
	})
}

func TestAuthServiceVerifyEmail(t *testing.T) {
	ttl := 20 * time.Minute
	tok, err := security.NewOneTimeToken(ttl)
	if err != nil {
		t.Fatalf("generate fixture token: %v", err)
	}

	t.Run("valid token marks user verified", func(t *testing.T) {
		marked := false
		users := &stubUserRepository{
			findByVerificationHashFn: func(hash string, now time.Time) (*domain.User, error) {
				if hash != tok.Hash {
					return nil, repository.ErrUserNotFound
				}
				return &domain.User{ID: 3, EmailVerificationTokenHash: &tok.Hash, EmailVerificationExpiresAt: &tok.ExpiresAt}, nil
			},
			markEmailVerifiedFn: func(userID uint) error {
				marked = userID == 3
				return nil
			},
		}
		svc := newTestAuthService(users, newCapturingMailer())
		if err := svc.VerifyEmail(context.Background(), tok.Plain); err != nil {
			t.Fatalf("verify email: %v", err)
		}
		if !marked {
			t.Fatal("expected MarkEmailVerified called")
		}
	})

	t.Run("unknown or expired token", func(t *testing.T) {
		users := &stubUserRepository{
			findByVerificationHashFn: func(hash string, now time.Time) (*domain.User, error) {
				return nil, repository.ErrUserNotFound
			},
		}
		svc := newTestAuthService(users, newCapturingMailer())
		if err := svc.VerifyEmail(context.Background(), "bogus"); !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
		}
	})

	t.Run("token at exact expiry instant fails", func(t *testing.T) {
		users := &stubUserRepository{
			findByVerificationHashFn: func(hash string, now time.Time) (*domain.User, error) {
				return &domain.User{ID: 3, EmailVerificationTokenHash: &tok.Hash, EmailVerificationExpiresAt: &tok.ExpiresAt}, nil
			},
		}
		svc := newTestAuthService(users, newCapturingMailer())
		svc.now = func() time.Time { return tok.ExpiresAt }
		if err := svc.VerifyEmail(context.Background(), tok.Plain); !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Fatalf("expected boundary expiry to fail, got %v", err)
		}
	})
}

func TestAuthServiceResendVerification(t *testing.T) {
	t.Run("already verified", func(t *testing.T) {
		users := &stubUserRepository{
			findByIDFn: func(id uint) (*domain.User, error) {
				return &domain.User{ID: id, IsEmailVerified: true}, nil
			},
		}
		svc := newTestAuthService(users, newCapturingMailer())
		if err := svc.ResendVerification(context.Background(), 4); !errors.Is(err, ErrEmailAlreadyVerified) {
			t.Fatalf("expected ErrEmailAlreadyVerified, got %v", err)
		}
	})

	t.Run("replaces pending token", func(t *testing.T) {
		mailer := newCapturingMailer()
		replaced := false
		users := &stubUserRepository{
			findByIDFn: func(id uint) (*domain.User, error) {
				return &domain.User{ID: id, Email: "u@example.com", Username: "u"}, nil
			},
			setVerificationTokenFn: func(userID uint, hash string, expiresAt time.Time) error {
				replaced = true
				return nil
			},
		}
		svc := newTestAuthService(users, mailer)
		if err := svc.ResendVerification(context.Background(), 4); err != nil {
			t.Fatalf("resend: %v", err)
		}
		if !replaced {
			t.Fatal("expected verification token overwritten")
		}
		mailer.waitForMail(t)
	})
}

func TestAuthServiceForgotPassword(t *testing.T) {
	t.Run("unknown email succeeds silently", func(t *testing.T) {
		mailer := newCapturingMailer()
		users := &stubUserRepository{
			findByEmailFn: func(email string) (*domain.User, error) { return nil, repository.ErrUserNotFound },
		}
		svc := newTestAuthService(users, mailer)
		if err := svc.ForgotPassword(context.Background(), "ghost@example.com"); err != nil {
			t.Fatalf("expected uniform success, got %v", err)
		}
		select {
		case msg := <-mailer.sent:
			t.Fatalf("no mail expected for unknown email, got %+v", msg)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("known email gets reset link", func(t *testing.T) {
		mailer := newCapturingMailer()
		var storedHash string
		users := &stubUserRepository{
			findByEmailFn: func(email string) (*domain.User, error) {
				return &domain.User{ID: 5, Email: "u@example.com", Username: "u"}, nil
			},
			setResetTokenFn: func(userID uint, hash string, expiresAt time.Time) error {
				storedHash = hash
				return nil
			},
		}
		svc := newTestAuthService(users, mailer)
		if err := svc.ForgotPassword(context.Background(), "u@example.com"); err != nil {
			t.Fatalf("forgot password: %v", err)
		}
		msg := mailer.waitForMail(t)
		idx := strings.LastIndex(msg.TextBody, "/reset-password/")
		if idx < 0 {
			t.Fatalf("no reset link in mail body: %q", msg.TextBody)
		}
		plain := strings.Fields(msg.TextBody[idx+len("/reset-password/"):])[0]
		if security.HashOneTimeToken(plain) != storedHash {
			t.Fatal("stored hash does not match emailed token")
		}
	})
}

func TestAuthServiceResetPassword(t *testing.T) {
	tok, err := security.NewOneTimeToken(20 * time.Minute)
	if err != nil {
		t.Fatalf("generate fixture token: %v", err)
	}

	t.Run("valid token replaces credential", func(t *testing.T) {
		var newHash string
		users := &stubUserRepository{
			findByResetHashFn: func(hash string, now time.Time) (*domain.User, error) {
				return &domain.User{ID: 6, PasswordResetTokenHash: &tok.Hash, PasswordResetExpiresAt: &tok.ExpiresAt}, nil
			},
			resetPasswordFn: func(userID uint, passwordHash string) error {
				newHash = passwordHash
				return nil
			},
		}
		svc := newTestAuthService(users, newCapturingMailer())
		if err := svc.ResetPassword(context.Background(), tok.Plain, "brand-new-pass"); err != nil {
			t.Fatalf("reset password: %v", err)
		}
		if newHash == "" || newHash == "brand-new-pass" {
			t.Fatal("expected new password stored hashed")
		}
		if err := security.CheckPassword("brand-new-pass", newHash); err != nil {
			t.Fatalf("stored hash does not match new password: %v", err)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		users := &stubUserRepository{
			findByResetHashFn: func(hash string, now time.Time) (*domain.User, error) {
				return nil, repository.ErrUserNotFound
			},
		}
		svc := newTestAuthService(users, newCapturingMailer())
		if err := svc.ResetPassword(context.Background(), "bogus", "pw"); !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
		}
	})
}

func TestAuthServiceChangePassword(t *testing.T) {
	currentHash, err := security.HashPassword("current-pass")
	if err != nil {
		t.Fatalf("hash fixture password: %v", err)
	}

	t.Run("wrong old password", func(t *testing.T) {
		users := &stubUserRepository{
			findByIDFn: func(id uint) (*domain.User, error) {
				return &domain.User{ID: id, PasswordHash: currentHash}, nil
			},
		}
		svc := newTestAuthService(users, newCapturingMailer())
		if err := svc.ChangePassword(context.Background(), 8, "nope", "next-pass"); !errors.Is(err, ErrWrongPassword) {
			t.Fatalf("expected ErrWrongPassword, got %v", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		var updatedHash string
		users := &stubUserRepository{
			findByIDFn: func(id uint) (*domain.User, error) {
				return &domain.User{ID: id, PasswordHash: currentHash}, nil
			},
			updatePasswordFn: func(userID uint, passwordHash string) error {
				updatedHash = passwordHash
				return nil
			},
		}
		svc := newTestAuthService(users, newCapturingMailer())
		if err := svc.ChangePassword(context.Background(), 8, "current-pass", "next-pass"); err != nil {
			t.Fatalf("change password: %v", err)
		}
		if err := security.CheckPassword("next-pass", updatedHash); err != nil {
			t.Fatalf("stored hash does not match new password: %v", err)
		}
	})
}
