// Package config holds the application configuration, loaded once through viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ace221390/work.ink/internal/humanoid"
	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
	loadErr  error
	mu       sync.RWMutex
)

// Config is the root configuration structure.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger"`
	Browser BrowserConfig `mapstructure:"browser"`
	Store   StoreConfig   `mapstructure:"store"`
	Origin  OriginConfig  `mapstructure:"origin"`
	Gate    GateConfig    `mapstructure:"gate"`
	Events  EventsConfig  `mapstructure:"events"`
}

// ColorConfig defines the console colors for each log level.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" json:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" json:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" json:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" json:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" json:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" json:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" json:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" json:"level" yaml:"level"`
	Format      string      `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" json:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// BrowserConfig holds settings for launching or attaching to Chromium.
type BrowserConfig struct {
	Headless bool   `mapstructure:"headless"`
	ExecPath string `mapstructure:"exec_path"`
	// RemoteURL attaches to an already running browser, e.g. http://127.0.0.1:9222.
	RemoteURL         string          `mapstructure:"remote_url"`
	TargetID          string          `mapstructure:"target_id"`
	UserDataDir       string          `mapstructure:"user_data_dir"`
	Args              []string        `mapstructure:"args"`
	NavigationTimeout time.Duration   `mapstructure:"navigation_timeout"`
	ActionTimeout     time.Duration   `mapstructure:"action_timeout"`
	Humanoid          humanoid.Config `mapstructure:"humanoid"`
}

// Store backend names.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendChain    = "chain"
)

// StoreConfig selects and configures the hand-off store.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	// Key is the slot name shared by the origin and gate handlers.
	Key      string         `mapstructure:"key"`
	Chain    []string       `mapstructure:"chain"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type SQLiteConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

// OriginConfig describes the redirect entry pages.
type OriginConfig struct {
	Hosts      []string `mapstructure:"hosts"`
	PathPrefix string   `mapstructure:"path_prefix"`
	Param      string   `mapstructure:"param"`
}

// GateConfig describes the consent gate and the timing of its state machine.
type GateConfig struct {
	Host          string   `mapstructure:"host"`
	RootURL       string   `mapstructure:"root_url"`
	FallbackParam string   `mapstructure:"fallback_param"`
	TitlePattern  string   `mapstructure:"title_pattern"`
	ConsentLabel  string   `mapstructure:"consent_label"`
	LabelTag      string   `mapstructure:"label_tag"`
	ControlTag    string   `mapstructure:"control_tag"`
	Hints         []string `mapstructure:"hints"`

	TitlePollInterval  time.Duration `mapstructure:"title_poll_interval"`
	TitleTimeout       time.Duration `mapstructure:"title_timeout"`
	SearchPollInterval time.Duration `mapstructure:"search_poll_interval"`
	SearchTimeout      time.Duration `mapstructure:"search_timeout"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`
}

// EventsConfig configures outcome publishing. An empty NATSURL logs only.
type EventsConfig struct {
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

// SetDefaults seeds every key so env overrides work without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "workink")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	d := humanoid.DefaultConfig()
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.target_id", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.action_timeout", 5*time.Second)
	v.SetDefault("browser.humanoid.omega", d.Omega)
	v.SetDefault("browser.humanoid.zeta", d.Zeta)
	v.SetDefault("browser.humanoid.perlin_amplitude", d.PerlinAmplitude)
	v.SetDefault("browser.humanoid.gaussian_strength", d.GaussianStrength)
	v.SetDefault("browser.humanoid.click_noise", d.ClickNoise)
	v.SetDefault("browser.humanoid.click_hold_min_ms", d.ClickHoldMinMs)
	v.SetDefault("browser.humanoid.click_hold_max_ms", d.ClickHoldMaxMs)
	v.SetDefault("browser.humanoid.micro_correction_threshold", d.MicroCorrectionThreshold)

	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.key", "workink_redirect_dest")
	v.SetDefault("store.chain", []string{BackendRedis, BackendSQLite})
	v.SetDefault("store.sqlite.dsn", "workink.db")
	v.SetDefault("store.redis.addr", "127.0.0.1:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.ttl", time.Duration(0))
	v.SetDefault("store.postgres.url", "")

	v.SetDefault("origin.hosts", []string{"my-site.co", "workink.vercel.app"})
	v.SetDefault("origin.path_prefix", "/refresh")
	v.SetDefault("origin.param", "url")

	v.SetDefault("gate.host", "work.ink")
	v.SetDefault("gate.root_url", "https://work.ink/")
	v.SetDefault("gate.fallback_param", "__dest")
	v.SetDefault("gate.title_pattern", "Just a")
	v.SetDefault("gate.consent_label", "AGREE")
	v.SetDefault("gate.label_tag", "span")
	v.SetDefault("gate.control_tag", "button")
	v.SetDefault("gate.hints", []string{
		`button[mode="primary"][size="large"]`,
		`button[mode="primary"]`,
		`button[size="large"]`,
		`button`,
	})
	v.SetDefault("gate.title_poll_interval", 500*time.Millisecond)
	v.SetDefault("gate.title_timeout", 120*time.Second)
	v.SetDefault("gate.search_poll_interval", 250*time.Millisecond)
	v.SetDefault("gate.search_timeout", 5*time.Second)
	v.SetDefault("gate.settle_delay", 2*time.Second)

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject", "workink.outcomes")
}

// Validate checks the fields the handlers cannot run without.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendMemory, BackendSQLite, BackendRedis, BackendPostgres:
	case BackendChain:
		if len(c.Store.Chain) == 0 {
			errs = append(errs, errors.New("store.chain must list at least one backend"))
		}
		for _, b := range c.Store.Chain {
			if b == BackendChain {
				errs = append(errs, errors.New("store.chain cannot contain itself"))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not supported", c.Store.Backend))
	}
	if strings.TrimSpace(c.Store.Key) == "" {
		errs = append(errs, errors.New("store.key is a required configuration field"))
	}

	if len(c.Origin.Hosts) == 0 {
		errs = append(errs, errors.New("origin.hosts must list at least one host"))
	}
	if c.Origin.Param == "" {
		errs = append(errs, errors.New("origin.param is a required configuration field"))
	}

	if c.Gate.Host == "" {
		errs = append(errs, errors.New("gate.host is a required configuration field"))
	}
	if u, err := url.Parse(c.Gate.RootURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("gate.root_url %q must be an absolute URL", c.Gate.RootURL))
	}
	if _, err := regexp.Compile(c.Gate.TitlePattern); err != nil {
		errs = append(errs, fmt.Errorf("gate.title_pattern: %w", err))
	}
	if strings.TrimSpace(c.Gate.ConsentLabel) == "" {
		errs = append(errs, errors.New("gate.consent_label is a required configuration field"))
	}
	if len(c.Gate.Hints) == 0 {
		errs = append(errs, errors.New("gate.hints must list at least one selector"))
	}
	for name, d := range map[string]time.Duration{
		"gate.title_poll_interval":  c.Gate.TitlePollInterval,
		"gate.title_timeout":        c.Gate.TitleTimeout,
		"gate.search_poll_interval": c.Gate.SearchPollInterval,
		"gate.search_timeout":       c.Gate.SearchTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Gate.SettleDelay < 0 {
		errs = append(errs, errors.New("gate.settle_delay cannot be negative"))
	}

	return errors.Join(errs...)
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}
		mu.Lock()
		instance = &cfg
		mu.Unlock()
	})
	return loadErr
}

// Set replaces the singleton. Used by tests and embedding callers.
func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = cfg
}

// Get returns the loaded configuration instance.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}

// reset clears the singleton between tests.
func reset() {
	mu.Lock()
	instance = nil
	mu.Unlock()
	once = sync.Once{}
	loadErr = nil
}
