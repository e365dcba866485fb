package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ramcharankhv-byte/taskhub/internal/database"
	"github.com/ramcharankhv-byte/taskhub/internal/http/handler"
	"github.com/ramcharankhv-byte/taskhub/internal/http/middleware"
	"github.com/ramcharankhv-byte/taskhub/internal/http/router"
	"github.com/ramcharankhv-byte/taskhub/internal/repository"
	"github.com/ramcharankhv-byte/taskhub/internal/security"
	"github.com/ramcharankhv-byte/taskhub/internal/service"
)

// mailbox captures outbound mail so tests can pull one-time tokens out of
// the links users would click.
type mailbox struct {
	ch chan service.MailMessage
}

func newMailbox() *mailbox {
	return &mailbox{ch: make(chan service.MailMessage, 32)}
}

func (m *mailbox) Send(_ context.Context, msg service.MailMessage) error {
	m.ch <- msg
	return nil
}

func (m *mailbox) waitForMail(t *testing.T) service.MailMessage {
	t.Helper()
	select {
	case msg := <-m.ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mail")
		return service.MailMessage{}
	}
}

// noopStorage satisfies the storage interface for tests that never upload.
type noopStorage struct{}

func (noopStorage) UploadAttachment(context.Context, uint, io.Reader, int64, string) (string, error) {
	return "attachments/task-0/noop", nil
}
func (noopStorage) DeleteAttachment(context.Context, uint, string) error { return nil }
func (noopStorage) GenerateAttachmentURL(_ context.Context, key string) (string, error) {
	return "http://storage.test/" + key, nil
}

type serverOptions struct {
	authRPM int
	apiRPM  int
}

func newTestServer(t *testing.T) (*httptest.Server, *mailbox) {
	return newTestServerWith(t, serverOptions{authRPM: 1000, apiRPM: 1000})
}

func newTestServerWith(t *testing.T, opts serverOptions) (*httptest.Server, *mailbox) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := repository.NewUserRepository(db)
	projects := repository.NewProjectRepository(db)
	memberships := repository.NewMembershipRepository(db)
	tasks := repository.NewTaskRepository(db)

	jwtMgr := security.NewJWTManager("taskhub-test", "taskhub-test-api",
		strings.Repeat("a", 32), strings.Repeat("b", 32))
	cookies := security.NewCookieManager("", false, "lax")
	mbox := newMailbox()

	authSvc := service.NewAuthService(users, jwtMgr, mbox, discard, service.AuthConfig{
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
		OneTimeTokenTTL:    10 * time.Minute,
		RefreshTokenPepper: "integration-pepper",
		PublicBaseURL:      "http://api.test",
	})
	projectSvc := service.NewProjectService(projects, memberships, users, discard)
	taskSvc := service.NewTaskService(tasks, memberships, discard)

	mux := router.New(router.Dependencies{
		Logger:           discard,
		AuthHandler:      handler.NewAuthHandler(authSvc, cookies, time.Minute, time.Hour),
		ProjectHandler:   handler.NewProjectHandler(projectSvc),
		TaskHandler:      handler.NewTaskHandler(taskSvc, tasks, noopStorage{}),
		JWTManager:       jwtMgr,
		Users:            users,
		Memberships:      memberships,
		AuthLimiter:      middleware.NewLocalFixedWindowLimiter(),
		APILimiter:       middleware.NewLocalFixedWindowLimiter(),
		AuthRateLimitRPM: opts.authRPM,
		APIRateLimitRPM:  opts.apiRPM,
		CORSOrigins:      []string{"http://localhost:3000"},
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mbox
}

func newCookieClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, apiEnvelope) {
	t.Helper()
	resp, raw := doRaw(t, client, method, url, body, headers)
	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode envelope: %v body=%q", err, raw)
	}
	return resp, env
}

func doRaw(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

// tokenFromMail pulls the one-time token out of the link in the text body.
func tokenFromMail(t *testing.T, msg service.MailMessage, marker string) string {
	t.Helper()
	idx := strings.Index(msg.TextBody, marker)
	if idx < 0 {
		t.Fatalf("no %q link in mail body: %q", marker, msg.TextBody)
	}
	rest := msg.TextBody[idx+len(marker):]
	if end := strings.IndexAny(rest, " \n\r"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// registerVerifyLogin walks a fresh user through the whole signup flow and
// returns an authenticated cookie client.
func registerVerifyLogin(t *testing.T, srv *httptest.Server, mbox *mailbox, email, username string) *http.Client {
	t.Helper()
	client := newCookieClient(t)

	resp, _ := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/register", map[string]string{
		"email":    email,
		"username": username,
		"password": "super-secret-pw",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d", email, resp.StatusCode)
	}

	verifyToken := tokenFromMail(t, mbox.waitForMail(t), "/verify-email/")
	resp, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/auth/verify-email/"+verifyToken, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify %s: status %d", email, resp.StatusCode)
	}

	resp, _ = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": "super-secret-pw",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", email, resp.StatusCode)
	}
	return client
}
