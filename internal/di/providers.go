package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ramcharankhv-byte/taskhub/internal/app"
	"github.com/ramcharankhv-byte/taskhub/internal/config"
	"github.com/ramcharankhv-byte/taskhub/internal/database"
	"github.com/ramcharankhv-byte/taskhub/internal/http/handler"
	"github.com/ramcharankhv-byte/taskhub/internal/http/middleware"
	"github.com/ramcharankhv-byte/taskhub/internal/http/router"
	"github.com/ramcharankhv-byte/taskhub/internal/observability"
	"github.com/ramcharankhv-byte/taskhub/internal/repository"
	"github.com/ramcharankhv-byte/taskhub/internal/security"
	"github.com/ramcharankhv-byte/taskhub/internal/service"
)

var (
	ConfigSet        = wire.NewSet(config.Load)
	ObservabilitySet = wire.NewSet(provideLogger, provideRuntime)
	RuntimeInfraSet  = wire.NewSet(provideOpenDB, provideLimiters, provideMailer, provideStorageService)
	SecuritySet      = wire.NewSet(provideJWTManager, provideCookieManager)
	RepositorySet    = wire.NewSet(
		repository.NewUserRepository,
		repository.NewProjectRepository,
		repository.NewMembershipRepository,
		repository.NewTaskRepository,
	)
	ServiceSet = wire.NewSet(provideAuthService, provideProjectService, provideTaskService)
	HTTPSet    = wire.NewSet(
		provideAuthHandler,
		provideProjectHandler,
		provideTaskHandler,
		provideRouterDependencies,
		router.New,
		provideHTTPServer,
	)
	AppSet = wire.NewSet(app.New)
)

// Limiters groups the two rate-limit backends so wire can tell them apart.
type Limiters struct {
	Auth middleware.Limiter
	API  middleware.Limiter
}

func provideLogger(cfg *config.Config) *slog.Logger {
	logger := observability.NewLogger(cfg)
	slog.SetDefault(logger)
	return logger
}

func provideRuntime(cfg *config.Config, logger *slog.Logger) (*observability.Runtime, error) {
	return observability.InitRuntime(context.Background(), cfg, logger)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

// provideLimiters uses the redis fixed-window backend when an address is
// configured; a single in-process fallback otherwise.
func provideLimiters(cfg *config.Config) Limiters {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		rl := middleware.NewRedisFixedWindowLimiter(client, "taskhub:ratelimit")
		return Limiters{Auth: rl, API: rl}
	}
	local := middleware.NewLocalFixedWindowLimiter()
	return Limiters{Auth: local, API: local}
}

func provideMailer(cfg *config.Config, logger *slog.Logger) service.Mailer {
	if cfg.SMTPHost == "" {
		return service.NewDevMailer(logger)
	}
	return service.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
}

func provideStorageService(cfg *config.Config) (service.StorageService, error) {
	return service.NewMinIOStorageService(
		cfg.MinIOEndpoint,
		cfg.MinIOAccessKey,
		cfg.MinIOSecretKey,
		cfg.MinIOBucket,
		cfg.MinIOUseSSL,
	)
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
}

func provideCookieManager(cfg *config.Config) *security.CookieManager {
	return security.NewCookieManager(cfg.CookieDomain, cfg.CookieSecure, cfg.CookieSameSite)
}

func provideAuthService(
	users repository.UserRepository,
	jwtMgr *security.JWTManager,
	mailer service.Mailer,
	logger *slog.Logger,
	cfg *config.Config,
) service.AuthServiceInterface {
	return service.NewAuthService(users, jwtMgr, mailer, logger, service.AuthConfig{
		AccessTokenTTL:     cfg.JWTAccessTTL,
		RefreshTokenTTL:    cfg.JWTRefreshTTL,
		OneTimeTokenTTL:    cfg.OneTimeTokenTTL,
		RefreshTokenPepper: cfg.RefreshTokenPepper,
		PublicBaseURL:      cfg.ServerBaseURL,
	})
}

func provideProjectService(
	projects repository.ProjectRepository,
	memberships repository.MembershipRepository,
	users repository.UserRepository,
	logger *slog.Logger,
) service.ProjectServiceInterface {
	return service.NewProjectService(projects, memberships, users, logger)
}

func provideTaskService(
	tasks repository.TaskRepository,
	memberships repository.MembershipRepository,
	logger *slog.Logger,
) service.TaskServiceInterface {
	return service.NewTaskService(tasks, memberships, logger)
}

func provideAuthHandler(authSvc service.AuthServiceInterface, cookies *security.CookieManager, cfg *config.Config) *handler.AuthHandler {
	return handler.NewAuthHandler(authSvc, cookies, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
}

func provideProjectHandler(projectSvc service.ProjectServiceInterface) *handler.ProjectHandler {
	return handler.NewProjectHandler(projectSvc)
}

func provideTaskHandler(taskSvc service.TaskServiceInterface, tasks repository.TaskRepository, storageSvc service.StorageService) *handler.TaskHandler {
	return handler.NewTaskHandler(taskSvc, tasks, storageSvc)
}

func provideRouterDependencies(
	logger *slog.Logger,
	authH *handler.AuthHandler,
	projectH *handler.ProjectHandler,
	taskH *handler.TaskHandler,
	jwtMgr *security.JWTManager,
	users repository.UserRepository,
	memberships repository.MembershipRepository,
	limiters Limiters,
	db *gorm.DB,
	cfg *config.Config,
) router.Dependencies {
	dep := router.Dependencies{
		Logger:           logger,
		AuthHandler:      authH,
		ProjectHandler:   projectH,
		TaskHandler:      taskH,
		JWTManager:       jwtMgr,
		Users:            users,
		Memberships:      memberships,
		AuthLimiter:      limiters.Auth,
		APILimiter:       limiters.API,
		AuthRateLimitRPM: cfg.AuthRateLimitPerMin,
		APIRateLimitRPM:  cfg.APIRateLimitPerMin,
		CORSOrigins:      cfg.CORSAllowedOrigins,
	}
	if db != nil {
		dep.ReadyCheck = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	return dep
}

func provideHTTPServer(cfg *config.Config, mux http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// MigrationRunner applies the schema outside the HTTP process, for deploy
// hooks and local bootstrap.
type MigrationRunner struct {
	db *gorm.DB
}

func NewMigrationRunner(db *gorm.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

func (m *MigrationRunner) Run() error {
	return database.Migrate(m.db)
}
