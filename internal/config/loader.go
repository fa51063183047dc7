package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/facility-booking/internal/application"
	"github.com/example/facility-booking/internal/scheduler"
)

const envFileKey = "BOOKING_ENV_FILE"

// Config captures environment driven configuration values for the booking service.
type Config struct {
	HTTPPort       int
	SQLiteDSN      string
	TokenSecret    string
	Policy         application.Policy
	ExpiryInterval time.Duration
	Redis          RedisConfig
	AMQP           AMQPConfig
}

// RedisConfig is optional; an empty Addr keeps locking and the change feed in-process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis server was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// AMQPConfig is optional; an empty URL disables outbound event publishing.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// Enabled reports whether a broker was configured.
func (c AMQPConfig) Enabled() bool {
	return c.URL != ""
}

// Load parses configuration values from the current process environment.
//
// Values from BOOKING_ENV_FILE, or from a .env file in the working directory, fill in keys the
// environment leaves unset. The process environment is never modified.
func Load() (Config, error) {
	path := strings.TrimSpace(os.Getenv(envFileKey))
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	fileValues, err := godotenv.Read(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("環境ファイルを読み込めません: %s: %w", path, err)
		}
		fileValues = nil
	}

	return Parse(func(key string) string {
		if value, ok := os.LookupEnv(key); ok {
			return value
		}
		return fileValues[key]
	})
}

// Parse builds a Config from lookup, applying defaults for optional keys and reporting every
// missing or invalid key in a single error.
func Parse(lookup func(key string) string) (Config, error) {
	defaults := application.DefaultPolicy()
	cfg := Config{
		HTTPPort:       8080,
		SQLiteDSN:      "booking.db",
		Policy:         defaults,
		ExpiryInterval: time.Minute,
		AMQP:           AMQPConfig{Exchange: "booking.events"},
	}

	p := parser{lookup: lookup}

	cfg.HTTPPort = p.positiveInt("BOOKING_HTTP_PORT", cfg.HTTPPort)
	cfg.SQLiteDSN = p.string("BOOKING_SQLITE_DSN", cfg.SQLiteDSN)
	cfg.TokenSecret = p.required("BOOKING_TOKEN_SECRET")

	cfg.Policy.Civil = p.civil(defaults.Civil)
	cfg.Policy.EarlyStart = p.duration("BOOKING_EARLY_START", defaults.EarlyStart)
	cfg.Policy.StartGrace = p.duration("BOOKING_START_GRACE", defaults.StartGrace)
	cfg.Policy.VisibilityWindow = p.duration("BOOKING_VISIBILITY_WINDOW", defaults.VisibilityWindow)
	cfg.Policy.MaxGroupSize = p.positiveInt("BOOKING_MAX_GROUP_SIZE", defaults.MaxGroupSize)
	cfg.Policy.MaxExtension = p.optionalDuration("BOOKING_MAX_EXTENSION", defaults.MaxExtension)
	cfg.Policy.AllowExtensionRetry = p.bool("BOOKING_ALLOW_EXTENSION_RETRY", defaults.AllowExtensionRetry)
	cfg.Policy.OccupancyCacheTTL = p.optionalDuration("BOOKING_OCCUPANCY_CACHE_TTL", defaults.OccupancyCacheTTL)
	cfg.ExpiryInterval = p.duration("BOOKING_EXPIRY_INTERVAL", cfg.ExpiryInterval)

	cfg.Redis.Addr = p.string("BOOKING_REDIS_ADDR", "")
	cfg.Redis.Password = p.string("BOOKING_REDIS_PASSWORD", "")
	cfg.Redis.DB = p.nonNegativeInt("BOOKING_REDIS_DB", 0)
	cfg.AMQP.URL = p.string("BOOKING_AMQP_URL", "")
	cfg.AMQP.Exchange = p.string("BOOKING_AMQP_EXCHANGE", cfg.AMQP.Exchange)

	if len(p.missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(p.missing, ", "))
	}
	if len(p.invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(p.invalid, ", "))
	}
	return cfg, nil
}

type parser struct {
	lookup  func(string) string
	missing []string
	invalid []string
}

func (p *parser) value(key string) string {
	return strings.TrimSpace(p.lookup(key))
}

func (p *parser) string(key, fallback string) string {
	if value := p.value(key); value != "" {
		return value
	}
	return fallback
}

func (p *parser) required(key string) string {
	value := p.value(key)
	if value == "" {
		p.missing = append(p.missing, key)
	}
	return value
}

func (p *parser) positiveInt(key string, fallback int) int {
	value := p.value(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		p.invalid = append(p.invalid, key)
		return fallback
	}
	return parsed
}

func (p *parser) nonNegativeInt(key string, fallback int) int {
	value := p.value(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		p.invalid = append(p.invalid, key)
		return fallback
	}
	return parsed
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	value := p.value(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		p.invalid = append(p.invalid, key)
		return fallback
	}
	return parsed
}

// optionalDuration accepts zero, which turns the setting off.
func (p *parser) optionalDuration(key string, fallback time.Duration) time.Duration {
	value := p.value(key)
	if value == "" {
		return fallback
	}
	if value == "0" {
		return 0
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		p.invalid = append(p.invalid, key)
		return fallback
	}
	return parsed
}

func (p *parser) bool(key string, fallback bool) bool {
	value := p.value(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		p.invalid = append(p.invalid, key)
		return fallback
	}
	return parsed
}

func (p *parser) civil(fallback scheduler.Civil) scheduler.Civil {
	loc := fallback.Location()
	if name := p.value("BOOKING_TIMEZONE"); name != "" {
		loaded, err := time.LoadLocation(name)
		if err != nil {
			p.invalid = append(p.invalid, "BOOKING_TIMEZONE")
			return fallback
		}
		loc = loaded
	}

	opening, closing := fallback.Hours()
	valid := true
	for _, field := range []struct {
		key    string
		target *time.Duration
	}{
		{"BOOKING_OPENING_TIME", &opening},
		{"BOOKING_CLOSING_TIME", &closing},
	} {
		value := p.value(field.key)
		if value == "" {
			continue
		}
		parsed, err := scheduler.ParseClock(value)
		if err != nil {
			p.invalid = append(p.invalid, field.key)
			valid = false
			continue
		}
		*field.target = parsed
	}
	if !valid {
		return fallback
	}

	civil, err := scheduler.NewCivil(loc, opening, closing)
	if err != nil {
		p.invalid = append(p.invalid, "BOOKING_OPENING_TIME", "BOOKING_CLOSING_TIME")
		return fallback
	}
	return civil
}
