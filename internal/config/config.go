// internal/config/config.go
//
// Environment configuration for the server and CLI.
// Values come from the process environment; a `.env` file in the working
// directory is loaded first (development convenience, missing file ignored).

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds every tunable of the service.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string // "json" (default) or "pretty"

	StoreDriver  string // memory | sqlite | postgres
	DatabasePath string // sqlite file
	DatabaseURL  string // postgres URL

	WordLength     int
	MaxGuesses     int
	CandidatesFile string
	AllowedFile    string
	DictionaryURL  string
	DailySalt      string

	AdminCode        string
	AdminCodeHash    string
	AdminTokenSecret string
	AdminTokenTTL    time.Duration

	VerifyLimit  int
	VerifyWindow time.Duration
	RedisURL     string

	KafkaBrokers []string
	KafkaTopic   string

	ClientOrigins  []string
	RequestTimeout time.Duration
	ScoresLimit    int
	TrustProxy     bool // honour X-Forwarded-For / X-Real-IP
}

// Load reads `.env` (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not read .env")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	c := &Config{
		Port:      getEnv("PORT", "5175"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		StoreDriver:  strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
		DatabasePath: getEnv("DB_PATH", "./data/wordly.db"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),

		WordLength:     getEnvInt("WORD_LENGTH", 5),
		MaxGuesses:     getEnvInt("MAX_GUESSES", 6),
		CandidatesFile: os.Getenv("WORDS_CANDIDATES_FILE"),
		AllowedFile:    os.Getenv("WORDS_ALLOWED_FILE"),
		DictionaryURL:  os.Getenv("WORDS_DICTIONARY_URL"),
		DailySalt:      os.Getenv("DAILY_SALT"),

		AdminCode:        os.Getenv("ADMIN_CODE"),
		AdminCodeHash:    os.Getenv("ADMIN_CODE_HASH"),
		AdminTokenSecret: getEnv("ADMIN_TOKEN_SECRET", getEnv("JWT_SECRET", "")),
		AdminTokenTTL:    getEnvDuration("ADMIN_TOKEN_TTL", 15*time.Minute),

		VerifyLimit:  getEnvInt("ADMIN_VERIFY_LIMIT", 5),
		VerifyWindow: getEnvDuration("ADMIN_VERIFY_WINDOW", time.Minute),
		RedisURL:     os.Getenv("REDIS_URL"),

		KafkaBrokers: getEnvList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "wordly-events"),

		ClientOrigins:  getEnvList("CLIENT_ORIGIN"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		ScoresLimit:    getEnvInt("SCORES_LIMIT", 0),
		TrustProxy:     getEnvBool("TRUST_PROXY", false),
	}

	if path := os.Getenv("ADMIN_CODE_FILE"); path != "" && c.AdminCode == "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read ADMIN_CODE_FILE: %w", err)
		}
		c.AdminCode = strings.TrimSpace(string(b))
	}
	if len(c.ClientOrigins) == 0 {
		c.ClientOrigins = []string{"http://localhost:5173"}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks value ranges and driver-specific requirements.
func (c *Config) Validate() error {
	if c.WordLength <= 0 || c.WordLength > 32 {
		return fmt.Errorf("WORD_LENGTH must be between 1 and 32, got %d", c.WordLength)
	}
	if c.MaxGuesses <= 0 {
		return fmt.Errorf("MAX_GUESSES must be positive, got %d", c.MaxGuesses)
	}
	switch c.StoreDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.VerifyLimit <= 0 {
		return fmt.Errorf("ADMIN_VERIFY_LIMIT must be positive, got %d", c.VerifyLimit)
	}
	return nil
}

// DSN returns the connection string for the configured SQL driver.
func (c *Config) DSN() string {
	if c.StoreDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.DatabasePath
}

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-integer env value")
	}
	return def
}

func getEnvBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-boolean env value")
	}
	return def
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	log.Warn().Str("key", k).Str("value", v).Msg("ignoring bad duration env value")
	return def
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(k string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(k), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
