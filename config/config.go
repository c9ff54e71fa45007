// Package config loads server configuration from flags with environment
// fallbacks. Flags win over environment variables, which win over defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Config holds the server configuration.
type Config struct {
	Port           int
	DBPath         string
	LogLevel       string
	AllowedOrigins []string
	SessionTTL     time.Duration
}

// Defaults used when neither a flag nor an environment variable is set.
const (
	DefaultPort       = 8080
	DefaultDBPath     = "conditions.db"
	DefaultLogLevel   = "info"
	DefaultSessionTTL = 30 * time.Minute
)

var defaultOrigins = "http://localhost:5173,http://localhost:8080"

// Load parses args (without the program name). getenv supplies the
// environment, usually os.Getenv.
func Load(args []string, getenv func(string) string) (*Config, error) {
	env := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	var problems []string
	port, err := strconv.Atoi(env("PORT", strconv.Itoa(DefaultPort)))
	if err != nil {
		problems = append(problems, fmt.Sprintf("PORT %q is not a number", getenv("PORT")))
		port = DefaultPort
	}
	ttl, err := time.ParseDuration(env("SESSION_TTL", DefaultSessionTTL.String()))
	if err != nil {
		problems = append(problems, fmt.Sprintf("SESSION_TTL %q is not a duration", getenv("SESSION_TTL")))
		ttl = DefaultSessionTTL
	}

	cfg := &Config{}
	var origins string
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", port, "HTTP listen port (PORT)")
	fs.StringVar(&cfg.DBPath, "db", env("DB_PATH", DefaultDBPath), "SQLite database path, or :memory: (DB_PATH)")
	fs.StringVar(&cfg.LogLevel, "log-level", env("LOG_LEVEL", DefaultLogLevel), "debug, info, warn or error (LOG_LEVEL)")
	fs.StringVar(&origins, "origins", env("ALLOWED_ORIGINS", defaultOrigins), "comma-separated CORS origins (ALLOWED_ORIGINS)")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", ttl, "idle editor sessions are evicted after this; 0 disables (SESSION_TTL)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.AllowedOrigins = splitList(origins)

	if len(problems) > 0 {
		return nil, errors.New("invalid environment: " + strings.Join(problems, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable, listing every problem.
func (c *Config) Validate() error {
	var problems []string

	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range 1-65535", c.Port))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		problems = append(problems, "db path is required")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if c.SessionTTL < 0 {
		problems = append(problems, "session ttl must not be negative")
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// Addr is the listen address for the configured port.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Level is the parsed log level. Validate guarantees it parses.
func (c *Config) Level() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
