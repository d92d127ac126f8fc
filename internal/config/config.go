package config // package config loads application configuration from environment variables

import (
	"fmt"     // fmt formats configuration errors
	"os"      // os provides access to environment variables
	"strings" // strings normalizes driver names
	"time"    // time parses durations
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  A .env file, when present, is loaded by the
// command before Load runs so that local runs need no exported variables.
type Config struct {
	Env          string        // application environment (e.g. "dev", "prod")
	Port         string        // HTTP port to listen on
	DB           DBConfig      // database selection and credentials
	JWTSecret    string        // secret used to verify (and mint) JWTs
	AuthDisabled bool          // skip JWT verification, for local runs only
	AccessTTLMin int           // lifetime of tokens minted by the CLI
	AMQPURL      string        // RabbitMQ URL; empty disables audit events
	AuditQueue   string        // queue audit events are published to
	AuditLogPath string        // file the audit consumer appends to
	EventTimeout time.Duration // upper bound for publishing one event
	LogLevel     string        // zap level: debug, info, warn, error
	LogFormat    string        // "json" or "console"
}

// DBConfig selects the storage backend.  Driver is one of mysql, sqlite or
// memory; the remaining fields are only read for the driver that needs them.
type DBConfig struct {
	Driver     string
	User       string
	Pass       string
	Host       string
	Port       string
	Name       string
	SQLitePath string
}

// Supported values of DB_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must(); the first missing or
// malformed value is reported as an error.
func Load() (Config, error) {
	var l loader
	cfg := Config{
		Env:          l.must("APP_ENV"),
		Port:         l.must("APP_PORT"),
		AuthDisabled: envBool("AUTH_DISABLED", false),
		AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 60),
		AMQPURL:      amqpURL(),
		AuditQueue:   envStr("AUDIT_QUEUE", "continuity.audit"),
		AuditLogPath: envStr("AUDIT_LOG_PATH", "logs/continuity_audit.log"),
		EventTimeout: envDur("EVENT_PUBLISH_TIMEOUT", 5*time.Second),
		LogLevel:     envStr("LOG_LEVEL", "info"),
		LogFormat:    envStr("LOG_FORMAT", "json"),
	}
	if !cfg.AuthDisabled {
		cfg.JWTSecret = l.must("JWT_SECRET")
	} else {
		cfg.JWTSecret = os.Getenv("JWT_SECRET")
	}

	cfg.DB.Driver = strings.ToLower(envStr("DB_DRIVER", DriverMySQL))
	switch cfg.DB.Driver {
	case DriverMySQL:
		cfg.DB.User = l.must("DB_USER")
		cfg.DB.Pass = os.Getenv("DB_PASS") // empty allowed
		cfg.DB.Host = l.must("DB_HOST")
		cfg.DB.Port = l.must("DB_PORT")
		cfg.DB.Name = l.must("DB_NAME")
	case DriverSQLite:
		cfg.DB.SQLitePath = envStr("SQLITE_PATH", "data/continuity.db")
	case DriverMemory:
	default:
		l.fail(fmt.Errorf("unsupported DB_DRIVER %q (want mysql, sqlite or memory)", cfg.DB.Driver))
	}

	if cfg.AccessTTLMin <= 0 {
		l.fail(fmt.Errorf("invalid int for ACCESS_TOKEN_TTL_MIN: %d", cfg.AccessTTLMin))
	}
	if l.err != nil {
		return Config{}, l.err
	}
	return cfg, nil
}

// amqpURL honours both RABBITMQ_URL and the older AMQP_URL.
func amqpURL() string {
	if u := os.Getenv("RABBITMQ_URL"); u != "" {
		return u
	}
	return os.Getenv("AMQP_URL")
}

// loader remembers the first configuration error.
type loader struct {
	err error
}

func (l *loader) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty the loader records an error.
func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		l.fail(fmt.Errorf("missing required env var: %s", key))
	}
	return v
}
