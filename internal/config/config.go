// Package config provides functionality for managing configuration options
// for the application using command-line flags, a JSON config file, a .env file
// and environment variables (applied in that order).
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Ledger backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Content store backends.
const (
	ContentLocal = "local"
	ContentMinIO = "minio"
)

// Mint policies.
const (
	MintPolicyAdmin       = "admin"
	MintPolicySelfService = "self-service"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"server_address" envconfig:"SERVER_ADDRESS"`

	// DatabaseDSN holds the database connection string for the postgres backend.
	DatabaseDSN string `json:"database_dsn" envconfig:"DATABASE_DSN"`

	// Config is the path to the Config file.
	Config string `json:"-" envconfig:"CONFIG"`

	// Backend selects the ledger implementation: "file" or "postgres".
	Backend    string `json:"ledger_backend" envconfig:"LEDGER_BACKEND"`
	LedgerFile string `json:"ledger_file" envconfig:"LEDGER_FILE"`
	UsersFile  string `json:"users_file" envconfig:"USERS_FILE"`

	JWTSecret string        `json:"jwt_secret" envconfig:"JWT_SECRET"`
	JWTIssuer string        `json:"jwt_issuer" envconfig:"JWT_ISSUER"`
	TokenTTL  time.Duration `json:"token_ttl" envconfig:"TOKEN_TTL"`

	// MintPolicy is "admin" (only admins mint) or "self-service".
	MintPolicy string `json:"mint_policy" envconfig:"MINT_POLICY"`

	AdminUsername string `json:"admin_username" envconfig:"ADMIN_USERNAME"`
	AdminPassword string `json:"admin_password" envconfig:"ADMIN_PASSWORD"`

	// RedisAddr enables failed-login lockout when set.
	RedisAddr        string        `json:"redis_addr" envconfig:"REDIS_ADDR"`
	LoginMaxAttempts int           `json:"login_max_attempts" envconfig:"LOGIN_MAX_ATTEMPTS"`
	LoginLockout     time.Duration `json:"login_lockout" envconfig:"LOGIN_LOCKOUT"`

	SMTPHost   string  `json:"smtp_host" envconfig:"SMTP_HOST"`
	SMTPPort   int     `json:"smtp_port" envconfig:"SMTP_PORT"`
	SMTPUser   string  `json:"smtp_user" envconfig:"SMTP_USER"`
	SMTPPass   string  `json:"smtp_pass" envconfig:"SMTP_PASS"`
	SMTPFrom   string  `json:"smtp_from" envconfig:"SMTP_FROM"`
	NotifyRate float64 `json:"notify_rate" envconfig:"NOTIFY_RATE"`

	ContentBackend string `json:"content_backend" envconfig:"CONTENT_BACKEND"`
	ContentDir     string `json:"content_dir" envconfig:"CONTENT_DIR"`
	MinIOEndpoint  string `json:"minio_endpoint" envconfig:"MINIO_ENDPOINT"`
	MinIOAccessKey string `json:"minio_access_key" envconfig:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `json:"minio_secret_key" envconfig:"MINIO_SECRET_KEY"`
	MinIOBucket    string `json:"minio_bucket" envconfig:"MINIO_BUCKET"`
	MinIOUseSSL    bool   `json:"minio_use_ssl" envconfig:"MINIO_USE_SSL"`

	// TLSCert and TLSKey switch the server to HTTPS when both are set.
	TLSCert string `json:"tls_cert" envconfig:"TLS_CERT"`
	TLSKey  string `json:"tls_key" envconfig:"TLS_KEY"`

	LogLevel      string        `json:"log_level" envconfig:"LOG_LEVEL"`
	StatsInterval time.Duration `json:"stats_interval" envconfig:"STATS_INTERVAL"`
}

// newFlagSet registers command-line flags with their default values on opts.
func newFlagSet(opts *Options) *flag.FlagSet {
	fs := flag.NewFlagSet("docledger", flag.ContinueOnError)
	fs.StringVar(&opts.Port, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&opts.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&opts.Config, "config", "config.json", "path to config file")
	fs.StringVar(&opts.Config, "c", "config.json", "path to config file (shorthand)")
	fs.StringVar(&opts.Backend, "backend", BackendFile, "ledger backend: file | postgres")
	fs.StringVar(&opts.LedgerFile, "ledger", "ledger.json", "ledger file for the file backend")
	fs.StringVar(&opts.UsersFile, "users", "users.json", "identity file for the file backend")
	fs.StringVar(&opts.JWTSecret, "jwt-secret", "", "secret used to sign credentials")
	fs.StringVar(&opts.JWTIssuer, "jwt-issuer", "docledger", "credential issuer")
	fs.DurationVar(&opts.TokenTTL, "token-ttl", time.Hour, "credential lifetime")
	fs.StringVar(&opts.MintPolicy, "mint-policy", MintPolicySelfService, "mint policy: admin | self-service")
	fs.StringVar(&opts.AdminUsername, "admin-user", "admin", "seeded admin username")
	fs.StringVar(&opts.AdminPassword, "admin-password", "Password123", "seeded admin password")
	fs.StringVar(&opts.RedisAddr, "redis", "", "redis address for login lockout")
	fs.IntVar(&opts.LoginMaxAttempts, "login-max-attempts", 5, "failed logins before lockout")
	fs.DurationVar(&opts.LoginLockout, "login-lockout", 15*time.Minute, "lockout window")
	fs.StringVar(&opts.SMTPHost, "smtp-host", "", "SMTP host for mint notifications")
	fs.IntVar(&opts.SMTPPort, "smtp-port", 587, "SMTP port")
	fs.StringVar(&opts.SMTPFrom, "smtp-from", "", "notification sender address")
	fs.Float64Var(&opts.NotifyRate, "notify-rate", 1, "max notifications per second")
	fs.StringVar(&opts.ContentBackend, "content", ContentLocal, "content store: local | minio")
	fs.StringVar(&opts.ContentDir, "content-dir", "content", "directory for the local content store")
	fs.StringVar(&opts.MinIOBucket, "minio-bucket", "docledger", "MinIO bucket")
	fs.StringVar(&opts.TLSCert, "tls-cert", "", "TLS certificate file")
	fs.StringVar(&opts.TLSKey, "tls-key", "", "TLS key file")
	fs.StringVar(&opts.LogLevel, "log-level", "info", "log level")
	fs.DurationVar(&opts.StatsInterval, "stats-interval", time.Minute, "ledger stats refresh interval")
	return fs
}

// Load builds Options from args, the optional JSON config file, a .env file
// in the working directory and the process environment.
func Load(args []string) (*Options, error) {
	opts := &Options{}
	if err := newFlagSet(opts).Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if configPath := os.Getenv("CONFIG"); configPath != "" {
		opts.Config = configPath
	}

	if opts.Config != "" {
		if _, err := os.Stat(opts.Config); err == nil {
			data, err := os.ReadFile(opts.Config)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if err := json.Unmarshal(data, opts); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := envconfig.Process("", opts); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Validate checks option combinations that cannot work at runtime.
func (o *Options) Validate() error {
	if o.JWTSecret == "" {
		return errors.New("jwt secret is required")
	}
	switch o.Backend {
	case BackendFile:
	case BackendPostgres:
		if o.DatabaseDSN == "" {
			return errors.New("postgres backend requires a database dsn")
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", o.Backend)
	}
	switch o.MintPolicy {
	case MintPolicyAdmin, MintPolicySelfService:
	default:
		return fmt.Errorf("unknown mint policy %q", o.MintPolicy)
	}
	switch o.ContentBackend {
	case ContentLocal:
	case ContentMinIO:
		if o.MinIOEndpoint == "" {
			return errors.New("minio content store requires an endpoint")
		}
	default:
		return fmt.Errorf("unknown content backend %q", o.ContentBackend)
	}
	if o.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if o.Backend == BackendPostgres && o.StatsInterval <= 0 {
		return errors.New("stats interval must be positive")
	}
	if o.RedisAddr != "" && (o.LoginMaxAttempts <= 0 || o.LoginLockout <= 0) {
		return errors.New("login lockout needs positive max attempts and window")
	}
	if (o.TLSCert == "") != (o.TLSKey == "") {
		return errors.New("tls cert and key must be set together")
	}
	return nil
}

// Parse reads the configuration from the command line and environment,
// exiting the process if it is invalid.
func Parse() *Options {
	opts, err := Load(os.Args[1:])
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return opts
}
