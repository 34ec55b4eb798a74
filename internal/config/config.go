package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"golang.org/x/crypto/bcrypt"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Users    UsersConfig    `koanf:"users"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host       string     `koanf:"host"`
	Port       int        `koanf:"port"`
	Mode       string     `koanf:"mode"`
	CSRFSecret string     `koanf:"csrf_secret"`
	Timeout    string     `koanf:"timeout"`
	CORS       CORSConfig `koanf:"cors"`
}

// CORSConfig holds CORS middleware settings.
type CORSConfig struct {
	AllowOrigins     []string `koanf:"allow_origins"`
	AllowMethods     []string `koanf:"allow_methods"`
	AllowHeaders     []string `koanf:"allow_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           string   `koanf:"max_age"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `koanf:"driver"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
	Pool     PoolConfig     `koanf:"pool"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// UsersConfig holds settings of the employee/client user module.
type UsersConfig struct {
	// BcryptCost is the cost used to hash passwords. Zero means bcrypt.DefaultCost.
	BcryptCost int `koanf:"bcrypt_cost"`
	// PageSize is the default list page size. Zero means the package default.
	PageSize int `koanf:"page_size"`
}

// EffectiveBcryptCost returns BcryptCost, or bcrypt.DefaultCost when unset.
func (u UsersConfig) EffectiveBcryptCost() int {
	if u.BcryptCost == 0 {
		return bcrypt.DefaultCost
	}
	return u.BcryptCost
}

// Load reads configuration from a YAML file and overlays environment variables.
// Environment variables use the prefix "APP__" and double-underscore as the
// hierarchy separator. Single underscores are preserved as part of the key name.
// For example, APP__SERVER__PORT=9090 overrides server.port and
// APP__USERS__BCRYPT_COST=12 overrides users.bcrypt_cost.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}

	if err := k.Load(env.Provider("APP__", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envKey maps APP__DATABASE__POOL__MAX_IDLE_CONNS to database.pool.max_idle_conns.
func envKey(s string) string {
	key := strings.TrimPrefix(s, "APP__")
	key = strings.ToLower(key)
	return strings.ReplaceAll(key, "__", ".")
}

var (
	ginModes       = []string{gin.DebugMode, gin.ReleaseMode, gin.TestMode}
	dbDrivers      = []string{"sqlite", "postgres"}
	sslModes       = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	secureSSLModes = []string{"require", "verify-ca", "verify-full"}
	logLevelNames  = []string{"debug", "info", "warn", "error"}
	logFormatNames = []string{"text", "json"}
)

// Validate normalizes c in place (trimming, lower-casing) and reports the
// first unsupported value.
func (c *Config) Validate() error {
	for _, check := range []func() error{c.validateServer, c.validateDatabase, c.validateUsers, c.validateLog} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	s := &c.Server
	s.Timeout = strings.TrimSpace(s.Timeout)
	s.CORS.MaxAge = strings.TrimSpace(s.CORS.MaxAge)

	return firstError(
		oneOf("server.mode", &s.Mode, false, ginModes),
		checkPort("server.port", s.Port),
		required("server.host", &s.Host, ""),
		checkOptionalDuration("server.timeout", s.Timeout),
		checkOptionalDuration("server.cors.max_age", s.CORS.MaxAge),
		checkCORSCredentials(s.CORS),
	)
}

// checkCORSCredentials rejects a wildcard origin paired with credentials,
// which the CORS middleware refuses to build.
func checkCORSCredentials(cors CORSConfig) error {
	if cors.AllowCredentials && slices.Contains(cors.AllowOrigins, "*") {
		return errors.New(`server.cors.allow_origins must not contain "*" when allow_credentials is true`)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	db := &c.Database
	if err := oneOf("database.driver", &db.Driver, false, dbDrivers); err != nil {
		return err
	}

	var err error
	if db.Driver == "sqlite" {
		err = required("database.sqlite.path", &db.SQLite.Path, "sqlite")
	} else {
		err = c.validatePostgres()
	}
	if err != nil {
		return err
	}

	db.Pool.ConnMaxLifetime = strings.TrimSpace(db.Pool.ConnMaxLifetime)
	return checkOptionalDuration("database.pool.conn_max_lifetime", db.Pool.ConnMaxLifetime)
}

func (c *Config) validatePostgres() error {
	pg := &c.Database.Postgres
	if err := firstError(
		required("database.postgres.host", &pg.Host, "postgres"),
		checkPort("database.postgres.port", pg.Port),
		required("database.postgres.user", &pg.User, "postgres"),
		required("database.postgres.dbname", &pg.DBName, "postgres"),
		oneOf("database.postgres.sslmode", &pg.SSLMode, false, sslModes),
	); err != nil {
		return err
	}
	if c.Server.Mode == gin.ReleaseMode && !slices.Contains(secureSSLModes, pg.SSLMode) {
		return fmt.Errorf("invalid database.postgres.sslmode %q for server.mode %q: must be one of %s",
			pg.SSLMode, gin.ReleaseMode, quoteList(secureSSLModes))
	}
	return nil
}

func (c *Config) validateUsers() error {
	u := c.Users
	if u.BcryptCost != 0 && (u.BcryptCost < bcrypt.MinCost || u.BcryptCost > bcrypt.MaxCost) {
		return fmt.Errorf("invalid users.bcrypt_cost %d: must be between %d and %d", u.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if u.PageSize < 0 || u.PageSize > 100 {
		return fmt.Errorf("invalid users.page_size %d: must be between 0 and 100", u.PageSize)
	}
	return nil
}

func (c *Config) validateLog() error {
	return firstError(
		oneOf("log.level", &c.Log.Level, true, logLevelNames),
		oneOf("log.format", &c.Log.Format, true, logFormatNames),
	)
}

// firstError returns the first non-nil error. Every check has already run,
// so the ones that normalize still do.
func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// oneOf trims *v (lower-casing it when fold is set) and requires it to be
// one of allowed.
func oneOf(name string, v *string, fold bool, allowed []string) error {
	got := strings.TrimSpace(*v)
	if fold {
		got = strings.ToLower(got)
	}
	if !slices.Contains(allowed, got) {
		return fmt.Errorf("invalid %s %q: must be one of %s", name, *v, quoteList(allowed))
	}
	*v = got
	return nil
}

// required trims *v and rejects it when empty. driver names the
// database driver the setting belongs to, if any.
func required(name string, v *string, driver string) error {
	*v = strings.TrimSpace(*v)
	if *v != "" {
		return nil
	}
	if driver != "" {
		return fmt.Errorf("%s is required when driver is %s", name, driver)
	}
	return fmt.Errorf("%s is required", name)
}

func checkPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid %s %d: must be between 1 and 65535", name, port)
	}
	return nil
}

func quoteList(vs []string) string {
	quoted := make([]string, len(vs))
	for i, v := range vs {
		quoted[i] = strconv.Quote(v)
	}
	return strings.Join(quoted, ", ")
}

// checkOptionalDuration accepts an empty value or a positive Go duration.
func checkOptionalDuration(name, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s %q: must be greater than 0", name, v)
	}
	return nil
}
