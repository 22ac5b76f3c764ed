package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/typerace/go/internal/race/gateway"
	"github.com/mcdev12/typerace/go/internal/race/registry"
	"github.com/mcdev12/typerace/go/internal/race/results"
	"github.com/mcdev12/typerace/go/internal/race/session"
)

// Config is the full server configuration. Values come from defaults, then the
// optional YAML file named by RACE_CONFIG_FILE, then environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Race     RaceConfig     `yaml:"race"`
	NATS     NATSConfig     `yaml:"nats"`
	Progress ProgressConfig `yaml:"progress"`
}

type ServerConfig struct {
	Port           string   `yaml:"port"`
	LogLevel       string   `yaml:"log_level"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type RaceConfig struct {
	DefaultDuration  int           `yaml:"default_duration"` // seconds
	AllowedDurations []int         `yaml:"allowed_durations"`
	Countdown        int           `yaml:"countdown"`
	WordCount        int           `yaml:"word_count"`
	VisibleWords     int           `yaml:"visible_words"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	WordListPath     string        `yaml:"word_list_path"`
}

// NATSConfig configures result publishing. An empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url"`
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type ProgressConfig struct {
	Rate  float64 `yaml:"rate"` // updates per second
	Burst int     `yaml:"burst"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8080",
			LogLevel:       "info",
			AllowedOrigins: []string{"*"},
		},
		Race: RaceConfig{
			DefaultDuration:  30,
			AllowedDurations: append([]int(nil), registry.DefaultDurations...),
			Countdown:        3,
			WordCount:        50,
			VisibleWords:     50,
			IdleTimeout:      5 * time.Minute,
			SweepInterval:    time.Minute,
		},
		NATS: NATSConfig{
			Stream:        "RACE_RESULTS",
			SubjectPrefix: "race.results",
		},
		Progress: ProgressConfig{
			Rate:  30,
			Burst: 60,
		},
	}
}

// Load builds the configuration from the process environment.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("RACE_CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", cfg.Server.LogLevel)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}

	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.Stream = getEnv("NATS_STREAM", cfg.NATS.Stream)
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)

	cfg.Race.DefaultDuration = getEnvAsInt("RACE_DEFAULT_DURATION", cfg.Race.DefaultDuration)
	cfg.Race.Countdown = getEnvAsInt("RACE_COUNTDOWN", cfg.Race.Countdown)
	cfg.Race.WordCount = getEnvAsInt("RACE_WORD_COUNT", cfg.Race.WordCount)
	cfg.Race.VisibleWords = getEnvAsInt("RACE_VISIBLE_WORDS", cfg.Race.VisibleWords)
	cfg.Race.IdleTimeout = getEnvAsDuration("RACE_IDLE_TIMEOUT", cfg.Race.IdleTimeout)
	cfg.Race.SweepInterval = getEnvAsDuration("RACE_SWEEP_INTERVAL", cfg.Race.SweepInterval)
	cfg.Race.WordListPath = getEnv("WORD_LIST_PATH", cfg.Race.WordListPath)

	cfg.Progress.Rate = getEnvAsFloat("PROGRESS_RATE", cfg.Progress.Rate)
	cfg.Progress.Burst = getEnvAsInt("PROGRESS_BURST", cfg.Progress.Burst)
}

// Validate rejects settings no race could run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if _, err := zerolog.ParseLevel(c.Server.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if c.Race.DefaultDuration <= 0 {
		errs = append(errs, fmt.Errorf("default duration must be positive, got %d", c.Race.DefaultDuration))
	}
	if len(c.Race.AllowedDurations) == 0 || lo.SomeBy(c.Race.AllowedDurations, func(d int) bool { return d <= 0 }) {
		errs = append(errs, fmt.Errorf("allowed durations must be positive, got %v", c.Race.AllowedDurations))
	}
	if c.Race.Countdown < 0 {
		errs = append(errs, fmt.Errorf("countdown must not be negative, got %d", c.Race.Countdown))
	}
	if c.Race.WordCount <= 0 || c.Race.VisibleWords <= 0 {
		errs = append(errs, errors.New("word count and visible words must be positive"))
	}
	if c.Race.IdleTimeout <= 0 || c.Race.SweepInterval <= 0 {
		errs = append(errs, errors.New("idle timeout and sweep interval must be positive"))
	}
	if c.Progress.Rate < 0 || c.Progress.Burst <= 0 {
		errs = append(errs, errors.New("progress rate must not be negative and burst must be positive"))
	}
	return errors.Join(errs...)
}

// Level is the parsed log level, falling back to info.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Server.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func (c Config) Session() session.Config {
	return session.Config{
		Duration:     time.Duration(c.Race.DefaultDuration) * time.Second,
		Countdown:    c.Race.Countdown,
		WordCount:    c.Race.WordCount,
		VisibleWords: c.Race.VisibleWords,
		IdleTimeout:  c.Race.IdleTimeout,
	}
}

func (c Config) Registry() registry.Config {
	return registry.Config{
		Session:          c.Session(),
		AllowedDurations: c.Race.AllowedDurations,
		SweepInterval:    c.Race.SweepInterval,
	}
}

func (c Config) JetStream() results.JetStreamConfig {
	js := results.DefaultJetStreamConfig()
	js.URL = c.NATS.URL
	js.StreamName = c.NATS.Stream
	js.SubjectPrefix = c.NATS.SubjectPrefix
	return js
}

func (c Config) Gateway() gateway.Config {
	gw := gateway.DefaultConfig()
	gw.ConnectionConfig.CheckOrigin = c.originAllowed
	gw.RouterConfig = gateway.RouterConfig{
		ProgressRate:  c.Progress.Rate,
		ProgressBurst: c.Progress.Burst,
	}
	return gw
}

// originAllowed applies the CORS origin list to WebSocket upgrades. Requests
// without an Origin header are not from a browser and pass.
func (c Config) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || lo.Contains(c.Server.AllowedOrigins, "*") {
		return true
	}
	return lo.Contains(c.Server.AllowedOrigins, origin)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	}))
}
