package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port string

	// DBType is "memory", "sqlite", "sqlite3", "postgres" or "mysql".
	DBType string
	DBPath string
	// DatabaseURL is the DSN for postgres and mysql.
	DatabaseURL string

	DefaultProvider string
	DefaultModel    string
	OpenAIKey       string
	OpenAIBaseURL   string
	OllamaHost      string

	JWTSecret    string
	TokenTTL     time.Duration
	AMQPURL      string
	AMQPExchange string

	MaxRounds     int
	ExportEnabled bool
	ExportFile    string
	FetchTimeout  time.Duration
	AITimeout     time.Duration
}

// Load reads a .env file if one exists, then the environment.
func Load(files ...string) Config {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}
	return FromEnv()
}

func FromEnv() Config {
	c := Config{}
	c.Port = getenv("PORT", "8080")
	c.DBType = strings.ToLower(getenv("DB_TYPE", "sqlite"))
	c.DBPath = getenv("DB_PATH", "./royale.db")
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.DefaultProvider = getenv("DEFAULT_PROVIDER", "openai")
	c.DefaultModel = getenv("DEFAULT_MODEL", "gpt-4o-mini")
	c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	c.OllamaHost = getenv("OLLAMA_HOST", "http://localhost:11434")
	c.JWTSecret = os.Getenv("JWT_SECRET")
	c.TokenTTL = getduration("TOKEN_TTL", 24*time.Hour)
	c.AMQPURL = os.Getenv("AMQP_URL")
	c.AMQPExchange = getenv("AMQP_EXCHANGE", "royale.events")
	c.MaxRounds = getint("MAX_ROUNDS", 3)
	c.ExportEnabled = getenv("EXPORT_ENABLED", "false") == "true"
	c.ExportFile = getenv("EXPORT_FILE", "./royale-results.txt")
	c.FetchTimeout = getduration("FETCH_TIMEOUT", 10*time.Second)
	c.AITimeout = getduration("AI_TIMEOUT", 60*time.Second)
	return c
}

// DSN is the data source for the configured database type.
func (c Config) DSN() string {
	switch c.DBType {
	case "postgres", "postgresql", "mysql":
		return c.DatabaseURL
	}
	return c.DBPath
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
		return def
	}
	return n
}

func getduration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", k).Str("value", v).Msg("not a duration, using default")
		return def
	}
	return d
}
