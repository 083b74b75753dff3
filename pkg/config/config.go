package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/felixgeelhaar/gadfly/internal/engine"
	rewardsDomain "github.com/felixgeelhaar/gadfly/internal/rewards/domain"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQL    = "sql"
)

var (
	ErrInvalidStore      = errors.New("invalid store backend")
	ErrInvalidThresholds = errors.New("invalid escalation thresholds")
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv    string
	LogLevel  string
	LogFormat string
	UserID    string
	Timezone  string

	// Persistence
	Store       string
	DatabaseURL string
	DBMaxConns  int
	RecordTable string

	// Redis
	RedisURL string

	// RabbitMQ
	RabbitMQURL string

	// Outbox
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxRetentionDays    int
	OutboxCleanupInterval  time.Duration
	OutboxProcessorEnabled bool

	// Worker
	HTTPAddr     string
	TickSpec     string
	RolloverSpec string

	// Notifications
	NotifyWebhook   string
	NotifyTimeout   time.Duration
	BreakerFailures int
	BreakerOpenFor  time.Duration

	// Phrases
	PhrasesFile          string
	PhrasePlugin         string
	PhrasePluginChecksum string
	Tone                 string

	// Nagging
	AutoNag         bool
	NagIntervalHigh time.Duration
	NagIntervalMed  time.Duration
	NagIntervalLow  time.Duration
	MinNagInterval  time.Duration

	// Escalation
	EscalationThresholds string
	MomentumDiscount     int

	// Rewards
	PointsHigh           int64
	PointsMedium         int64
	PointsLow            int64
	GoalMilestonePoints  int64
	GoalCompletionPoints int64
	StreakBonusEvery     int
	StreakBonusPoints    int64
	Rewards              string
	Challenges           string
	CreditRetentionDays  int

	// Rotation
	RotationWindow int
	RotationTTL    time.Duration
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	defaults := engine.DefaultConfig()
	points := defaults.Points

	cfg := &Config{
		AppEnv:    getEnv("GADFLY_ENV", "development"),
		LogLevel:  getEnv("GADFLY_LOG_LEVEL", "info"),
		LogFormat: getEnv("GADFLY_LOG_FORMAT", ""),
		UserID:    getEnv("GADFLY_USER_ID", "00000000-0000-0000-0000-000000000001"),
		Timezone:  getEnv("GADFLY_TIMEZONE", "Local"),

		Store:       strings.ToLower(getEnv("GADFLY_STORE", StoreSQL)),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMaxConns:  getIntEnv("GADFLY_DB_MAX_CONNS", 0),
		RecordTable: getEnv("GADFLY_RECORD_TABLE", "records"),

		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", 250*time.Millisecond),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 5),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 14),
		OutboxCleanupInterval:  getDurationEnv("OUTBOX_CLEANUP_INTERVAL", 24*time.Hour),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", true),

		HTTPAddr:     getEnv("GADFLY_HTTP_ADDR", "127.0.0.1:8380"),
		TickSpec:     getEnv("GADFLY_TICK_SPEC", "@every 1m"),
		RolloverSpec: getEnv("GADFLY_ROLLOVER_SPEC", "0 0 * * *"),

		NotifyWebhook:   getEnv("GADFLY_NOTIFY_WEBHOOK", ""),
		NotifyTimeout:   getDurationEnv("GADFLY_NOTIFY_TIMEOUT", 5*time.Second),
		BreakerFailures: getIntEnv("GADFLY_BREAKER_FAILURES", 5),
		BreakerOpenFor:  getDurationEnv("GADFLY_BREAKER_OPEN_FOR", 30*time.Second),

		PhrasesFile:          getEnv("GADFLY_PHRASES_FILE", ""),
		PhrasePlugin:         getEnv("GADFLY_PHRASE_PLUGIN", ""),
		PhrasePluginChecksum: getEnv("GADFLY_PHRASE_PLUGIN_SHA256", ""),
		Tone:                 getEnv("GADFLY_TONE", defaults.Tone),

		AutoNag:         getBoolEnv("GADFLY_AUTO_NAG", defaults.AutoNag),
		NagIntervalHigh: getDurationEnv("GADFLY_NAG_INTERVAL_HIGH", defaults.NagIntervals[sharedDomain.PriorityHigh]),
		NagIntervalMed:  getDurationEnv("GADFLY_NAG_INTERVAL_MEDIUM", defaults.NagIntervals[sharedDomain.PriorityMedium]),
		NagIntervalLow:  getDurationEnv("GADFLY_NAG_INTERVAL_LOW", defaults.NagIntervals[sharedDomain.PriorityLow]),
		MinNagInterval:  getDurationEnv("GADFLY_NAG_INTERVAL_MIN", defaults.MinNagInterval),

		EscalationThresholds: getEnv("GADFLY_ESCALATION_THRESHOLDS", joinInts(defaults.Escalation.Thresholds)),
		MomentumDiscount:     getIntEnv("GADFLY_MOMENTUM_DISCOUNT", defaults.Escalation.MomentumDiscount),

		PointsHigh:           getInt64Env("GADFLY_POINTS_HIGH", points[sharedDomain.PriorityHigh]),
		PointsMedium:         getInt64Env("GADFLY_POINTS_MEDIUM", points[sharedDomain.PriorityMedium]),
		PointsLow:            getInt64Env("GADFLY_POINTS_LOW", points[sharedDomain.PriorityLow]),
		GoalMilestonePoints:  getInt64Env("GADFLY_GOAL_MILESTONE_POINTS", defaults.GoalMilestonePoints),
		GoalCompletionPoints: getInt64Env("GADFLY_GOAL_COMPLETION_POINTS", defaults.GoalCompletionPoints),
		StreakBonusEvery:     getIntEnv("GADFLY_STREAK_BONUS_EVERY", defaults.StreakBonusEvery),
		StreakBonusPoints:    getInt64Env("GADFLY_STREAK_BONUS_POINTS", defaults.StreakBonusPoints),
		Rewards:              getEnv("GADFLY_REWARDS", ""),
		Challenges:           getEnv("GADFLY_CHALLENGES", ""),
		CreditRetentionDays:  getIntEnv("GADFLY_CREDIT_RETENTION_DAYS", defaults.CreditRetentionDays),

		RotationWindow: getIntEnv("GADFLY_ROTATION_WINDOW", defaults.RotationWindow),
		RotationTTL:    getDurationEnv("GADFLY_ROTATION_TTL", defaults.RotationTTL),
	}

	switch cfg.Store {
	case StoreMemory, StoreRedis, StoreSQL:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStore, cfg.Store)
	}
	if _, err := observability.ParseLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("GADFLY_LOG_LEVEL: %w", err)
	}
	if cfg.LogFormat == "" && cfg.IsProduction() {
		cfg.LogFormat = string(observability.LogFormatJSON)
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Location resolves Timezone. "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Engine builds the engine's plain-data configuration. Anything left unset
// here falls back to engine.DefaultConfig.
func (c *Config) Engine() (engine.Config, error) {
	ec := engine.DefaultConfig()

	ec.NagIntervals = map[sharedDomain.Priority]time.Duration{
		sharedDomain.PriorityHigh:   c.NagIntervalHigh,
		sharedDomain.PriorityMedium: c.NagIntervalMed,
		sharedDomain.PriorityLow:    c.NagIntervalLow,
	}
	ec.MinNagInterval = c.MinNagInterval
	ec.AutoNag = c.AutoNag

	thresholds, err := parseThresholds(c.EscalationThresholds)
	if err != nil {
		return engine.Config{}, err
	}
	ec.Escalation.Thresholds = thresholds
	ec.Escalation.MomentumDiscount = c.MomentumDiscount

	ec.Points = rewardsDomain.PointsTable{
		sharedDomain.PriorityHigh:   c.PointsHigh,
		sharedDomain.PriorityMedium: c.PointsMedium,
		sharedDomain.PriorityLow:    c.PointsLow,
	}
	ec.GoalMilestonePoints = c.GoalMilestonePoints
	ec.GoalCompletionPoints = c.GoalCompletionPoints
	ec.StreakBonusEvery = c.StreakBonusEvery
	ec.StreakBonusPoints = c.StreakBonusPoints
	ec.CreditRetentionDays = c.CreditRetentionDays

	if c.Rewards != "" {
		catalog, err := rewardsDomain.ParseCatalog(c.Rewards)
		if err != nil {
			return engine.Config{}, fmt.Errorf("GADFLY_REWARDS: %w", err)
		}
		ec.Catalog = catalog
	}
	if c.Challenges != "" {
		templates, err := rewardsDomain.ParseChallengeTemplates(c.Challenges)
		if err != nil {
			return engine.Config{}, fmt.Errorf("GADFLY_CHALLENGES: %w", err)
		}
		ec.Challenges = templates
	}

	ec.RotationWindow = c.RotationWindow
	ec.RotationTTL = c.RotationTTL
	ec.Tone = c.Tone

	loc, err := c.Location()
	if err != nil {
		return engine.Config{}, err
	}
	ec.Location = loc

	return ec, nil
}

// parseThresholds reads an ascending list such as "1,3,7,14".
func parseThresholds(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidThresholds, s)
		}
		if len(out) > 0 && n <= out[len(out)-1] {
			return nil, fmt.Errorf("%w: %q is not ascending", ErrInvalidThresholds, s)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidThresholds)
	}
	return out, nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
