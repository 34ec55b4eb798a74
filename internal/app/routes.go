package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/simp-lee/staffdesk/internal/domain"
	"github.com/simp-lee/staffdesk/internal/middleware"
	"github.com/simp-lee/staffdesk/internal/pkg"
	"github.com/simp-lee/staffdesk/web"
)

const (
	apiPrefix          = "/api/v1"
	healthTimeout      = time.Second
	staticCacheControl = "public, max-age=86400"
)

// RouteDeps holds all dependencies needed to register routes.
type RouteDeps struct {
	Modules    []Module
	DB         *gorm.DB
	Mode       string
	CSRFSecret string
}

// homeSection is one entry of the home page menu.
type homeSection struct {
	Title string
	URL   string
}

// RegisterRoutes registers static assets, health, home and every module's
// routes. Module API routes live under /api/v1 without CSRF; page routes
// live at the root behind CSRF.
func RegisterRoutes(r *gin.Engine, deps *RouteDeps) error {
	if r == nil {
		return errors.New("router is nil")
	}
	if deps == nil {
		return errors.New("route dependencies are nil")
	}
	if len(deps.Modules) == 0 {
		return errors.New("at least one module is required")
	}
	if strings.TrimSpace(deps.CSRFSecret) == "" {
		return errors.New("csrf secret is required")
	}

	if err := registerStaticRoutes(r, deps.Mode); err != nil {
		return fmt.Errorf("register static routes: %w", err)
	}

	r.GET("/health", healthHandler(deps.DB))

	api := r.Group(apiPrefix)
	pages := r.Group("/")
	pages.Use(middleware.CSRF(deps.CSRFSecret))
	pages.GET("", homeHandler())

	for i, m := range deps.Modules {
		if m == nil {
			return fmt.Errorf("module at index %d is nil", i)
		}
		m.RegisterRoutes(api, pages)
	}

	r.NoRoute(noRouteHandler())
	return nil
}

func homeHandler() gin.HandlerFunc {
	sections := []homeSection{
		{Title: domain.RoleEmployee.Title() + "s", URL: "/" + domain.RoleEmployee.Plural()},
		{Title: domain.RoleClient.Title() + "s", URL: "/" + domain.RoleClient.Plural()},
	}
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "home.html", gin.H{
			"Title":     "Staff Desk",
			"Sections":  sections,
			"CSRFToken": middleware.GetCSRFToken(c),
		})
	}
}

// healthHandler pings the database with a short deadline derived from the
// request context.
func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := pingDatabase(c.Request.Context(), db); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "degraded",
				"components": gin.H{"database": "error"},
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"components": gin.H{"database": "ok"},
		})
	}
}

func pingDatabase(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("database is nil")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// noRouteHandler answers JSON under /api and content-negotiates elsewhere.
func noRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAPIPath(c.Request.URL.Path) {
			c.JSON(http.StatusNotFound, pkg.Response{Code: http.StatusNotFound, Message: "not found"})
			return
		}
		renderError(c, http.StatusNotFound, "not found")
	}
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

// registerStaticRoutes serves web/static from disk in debug mode and from the
// embedded filesystem with a cache header otherwise.
func registerStaticRoutes(r *gin.Engine, mode string) error {
	var (
		staticFS fs.FS
		err      error
	)
	if mode == gin.DebugMode {
		staticFS, err = resolveDebugStaticFS()
	} else {
		staticFS, err = fs.Sub(web.EmbeddedFS, "static")
	}
	if err != nil {
		return err
	}

	cache := mode != gin.DebugMode
	r.GET("/static/*filepath", staticHandler(http.FS(staticFS), cache))
	return nil
}

func resolveDebugStaticFS() (fs.FS, error) {
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		return nil, errors.New("resolve current file path")
	}

	staticDir := filepath.Clean(filepath.Join(filepath.Dir(currentFile), "..", "..", "web", "static"))
	if _, err := os.Stat(staticDir); err != nil {
		return nil, fmt.Errorf("stat static directory %q: %w", staticDir, err)
	}
	return os.DirFS(staticDir), nil
}

func staticHandler(fsys http.FileSystem, cache bool) gin.HandlerFunc {
	fileServer := http.StripPrefix("/static", http.FileServer(fsys))
	return func(c *gin.Context) {
		if cache {
			c.Header("Cache-Control", staticCacheControl)
		}
		fileServer.ServeHTTP(c.Writer, c.Request)
	}
}
