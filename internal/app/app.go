package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/ginx"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/staffdesk/internal/config"
	"github.com/simp-lee/staffdesk/internal/domain"
	"github.com/simp-lee/staffdesk/internal/middleware"
	"github.com/simp-lee/staffdesk/internal/module/user"
	"github.com/simp-lee/staffdesk/internal/pkg"
	"github.com/simp-lee/staffdesk/web"
)

const (
	shutdownTimeout  = 5 * time.Second
	minCSRFSecretLen = 32
)

var (
	// htmx sends its own request headers; preflights must allow them.
	corsAllowHeaders = []string{
		"Origin", "Content-Type", "Accept", "X-Requested-With",
		middleware.CSRFHeaderName, middleware.RequestIDHeader,
		"HX-Request", "HX-Current-URL", "HX-Target", "HX-Trigger", "HX-Trigger-Name", "HX-Boosted",
	}
	corsExposeHeaders = []string{middleware.RequestIDHeader, "HX-Trigger", "HX-Redirect", "HX-Reswap"}
)

// App holds the wired engine and the resources Run releases on exit.
type App struct {
	engine *gin.Engine
	db     *gorm.DB
	logger *logger.Logger
	cfg    *config.Config
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var newHTTPServer = func(addr string, handler http.Handler) httpServer {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New wires the application from cfg: logger, database, the user module
// for employees and clients, middleware, templates and routes.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}

	success := false

	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	defer func() {
		if !success {
			closeLogger(log)
		}
	}()

	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 exposes debug behavior and permissive CORS")
	}

	db, err := config.SetupDatabase(&cfg.Database, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if !success {
			closeDatabase(db, log.Logger)
		}
	}()

	// Schema changes in release mode go through a reviewed migration.
	if cfg.Server.Mode == gin.DebugMode {
		if err := config.Migrate(db, &domain.User{}); err != nil {
			return nil, err
		}
		log.Info("auto migration completed")
	}

	csrfSecret, err := resolveCSRFSecret(cfg.Server.Mode, cfg.Server.CSRFSecret)
	if err != nil {
		return nil, err
	}
	if csrfSecret != cfg.Server.CSRFSecret {
		log.Warn("no csrf_secret configured, using a random secret (forms break on restart)")
	}

	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	engine.Use(buildMiddleware(cfg, log.Logger)...)

	renderer, err := newRenderer(cfg.Server.Mode)
	if err != nil {
		return nil, fmt.Errorf("setup template renderer: %w", err)
	}
	engine.HTMLRender = renderer

	if err := RegisterRoutes(engine, &RouteDeps{
		Modules:    []Module{newUserModule(db, &cfg.Users)},
		DB:         db,
		Mode:       cfg.Server.Mode,
		CSRFSecret: csrfSecret,
	}); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	success = true
	return &App{
		engine: engine,
		db:     db,
		logger: log,
		cfg:    cfg,
	}, nil
}

// newUserModule wires repository → service → handlers.
func newUserModule(db *gorm.DB, cfg *config.UsersConfig) *user.UserModule {
	repo := user.NewUserRepository(db)
	svc := user.NewUserService(repo, cfg.EffectiveBcryptCost())
	return user.NewModule(
		user.NewUserHandler(svc, cfg.PageSize),
		user.NewUserPageHandler(svc, cfg.PageSize),
	)
}

// buildMiddleware returns the global chain. Recovery comes first so it
// also covers panics in the other middleware. CORS and the request timeout
// run as one ginx chain whose error answers use the pkg.Response envelope.
func buildMiddleware(cfg *config.Config, log *slog.Logger) []gin.HandlerFunc {
	chain := ginx.NewChain().
		WithErrorFormat(pkg.MiddlewareError).
		Use(ginx.CORS(resolveCORSOptions(cfg.Server.Mode, cfg.Server.CORS)...))
	if d := parseDuration(cfg.Server.Timeout); d > 0 {
		chain.Use(ginx.Timeout(ginx.WithTimeout(d)))
	}

	return []gin.HandlerFunc{
		middleware.Recovery(log),
		middleware.RequestID(middleware.RequestIDConfig{}),
		middleware.Logger(log),
		chain.Build(),
	}
}

// resolveCORSOptions allows any origin in debug/test mode and none in
// release mode unless an allowlist is configured. The wildcard default is
// skipped when credentials are allowed, since ginx rejects that pairing.
func resolveCORSOptions(mode string, cfg config.CORSConfig) []ginx.Option[ginx.CORSConfig] {
	opts := []ginx.Option[ginx.CORSConfig]{
		ginx.WithExposeHeaders(corsExposeHeaders...),
		ginx.WithAllowCredentials(cfg.AllowCredentials),
	}

	switch {
	case len(cfg.AllowOrigins) > 0:
		opts = append(opts, ginx.WithAllowOrigins(cfg.AllowOrigins...))
	case mode != gin.ReleaseMode && !cfg.AllowCredentials:
		opts = append(opts, ginx.WithAllowOrigins("*"))
	}
	if len(cfg.AllowMethods) > 0 {
		opts = append(opts, ginx.WithAllowMethods(cfg.AllowMethods...))
	}
	if len(cfg.AllowHeaders) > 0 {
		opts = append(opts, ginx.WithAllowHeaders(cfg.AllowHeaders...))
	} else {
		opts = append(opts, ginx.WithAllowHeaders(corsAllowHeaders...))
	}
	if d := parseDuration(cfg.MaxAge); d > 0 {
		opts = append(opts, ginx.WithMaxAge(d))
	}
	return opts
}

// parseDuration returns 0 for empty or invalid values; config.Validate has
// already rejected invalid ones.
func parseDuration(v string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return d
}

// resolveCSRFSecret returns the configured secret, or a random one outside
// release mode. Release mode requires a strong configured secret.
func resolveCSRFSecret(mode, secret string) (string, error) {
	if !isPlaceholderCSRFSecret(secret) {
		if mode == gin.ReleaseMode {
			if err := checkCSRFSecretStrength(secret); err != nil {
				return "", err
			}
		}
		return secret, nil
	}
	if mode == gin.ReleaseMode {
		return "", errors.New("csrf_secret must be a non-placeholder value in release mode")
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate csrf secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func checkCSRFSecretStrength(secret string) error {
	if len(secret) < minCSRFSecretLen {
		return fmt.Errorf("csrf_secret must be at least %d characters in release mode", minCSRFSecretLen)
	}

	var lower, upper, digit, other bool
	for _, r := range secret {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			other = true
		}
	}
	classes := 0
	for _, ok := range []bool{lower, upper, digit, other} {
		if ok {
			classes++
		}
	}
	if classes < 3 {
		return errors.New("csrf_secret must include at least 3 character classes in release mode")
	}
	return nil
}

func isPlaceholderCSRFSecret(secret string) bool {
	switch strings.ToLower(strings.TrimSpace(secret)) {
	case "", "change-me-to-a-random-secret", "change-me-in-env":
		return true
	default:
		return false
	}
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

// newRenderer hot-reloads templates from disk in debug mode and serves the
// embedded set otherwise.
func newRenderer(mode string) (*TemplateRenderer, error) {
	if mode != gin.DebugMode {
		return NewTemplateRenderer(web.EmbeddedFS, false)
	}
	fsys, err := resolveDebugWebFS()
	if err != nil {
		return nil, fmt.Errorf("resolve debug template fs: %w", err)
	}
	return NewTemplateRenderer(fsys, true)
}

func resolveDebugWebFS() (fs.FS, error) {
	if _, file, _, ok := runtime.Caller(0); ok {
		webDir := filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", "web"))
		if stat, err := os.Stat(webDir); err == nil && stat.IsDir() {
			return os.DirFS(webDir), nil
		}
	}

	if exePath, err := os.Executable(); err == nil {
		webDir := filepath.Join(filepath.Dir(exePath), "web")
		if stat, err := os.Stat(webDir); err == nil && stat.IsDir() {
			return os.DirFS(webDir), nil
		}
	}

	return nil, errors.New("debug web directory not found")
}

// Run serves HTTP until SIGINT/SIGTERM or a listen error, then shuts down
// gracefully and releases the database and logger.
func (a *App) Run() error {
	if a == nil || a.cfg == nil || a.engine == nil {
		return errors.New("app is not initialized")
	}
	log := a.log()

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := newHTTPServer(addr, a.engine)

	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", slog.Any("error", err))
		}
		cancel()
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	if a.db != nil && closeDatabase(a.db, log) {
		log.Info("database connection closed")
	}

	log.Info("server stopped")
	if a.logger != nil {
		closeLogger(a.logger)
	}
	return runErr
}

func (a *App) log() *slog.Logger {
	if a.logger != nil {
		return a.logger.Logger
	}
	return slog.Default()
}

// closeDatabase closes the pool behind db and reports whether it succeeded.
func closeDatabase(db *gorm.DB, log *slog.Logger) bool {
	sqlDB, err := db.DB()
	if err != nil {
		return false
	}
	if err := sqlDB.Close(); err != nil {
		log.Error("database close error", slog.Any("error", err))
		return false
	}
	return true
}

func closeLogger(log *logger.Logger) {
	if err := log.Close(); err != nil {
		slog.Error("logger close error", slog.Any("error", err))
	}
}
