package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig     `yaml:"store" mapstructure:"store"`
	Provider   ProviderConfig  `yaml:"provider" mapstructure:"provider"`
	Scoring    ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Thresholds ThresholdConfig `yaml:"thresholds" mapstructure:"thresholds"`
	AlertRules AlertRuleConfig `yaml:"alert_rules" mapstructure:"alert_rules"`
	Batch      BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Webhook    WebhookConfig   `yaml:"webhook" mapstructure:"webhook"`
	Server     ServerConfig    `yaml:"server" mapstructure:"server"`
	Schedule   ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Log        LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ProviderConfig configures the upstream factor-data provider API.
type ProviderConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Key         string `yaml:"key" mapstructure:"key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ScoringConfig configures the weighted overall-score computation.
// Weights are keyed by factor name and must be positive and sum to 1.0.
type ScoringConfig struct {
	Weights              map[string]float64 `yaml:"weights" mapstructure:"weights"`
	MissingFactorDefault float64            `yaml:"missing_factor_default" mapstructure:"missing_factor_default"`
}

// ThresholdConfig holds the admin-editable risk tier boundaries.
// Invariant: 0 <= critical <= warning <= 100. The "excellent" cutoff at 80 is
// a fixed product constant, not configurable.
type ThresholdConfig struct {
	WarningBoundary  int `yaml:"warning_boundary" mapstructure:"warning_boundary" json:"warning_boundary"`
	CriticalBoundary int `yaml:"critical_boundary" mapstructure:"critical_boundary" json:"critical_boundary"`
}

// AlertRuleConfig holds the admin-editable alert rule toggles and parameters.
type AlertRuleConfig struct {
	HealthDropEnabled        bool    `yaml:"health_drop_enabled" mapstructure:"health_drop_enabled" json:"health_drop_enabled"`
	HealthDropDeltaThreshold int     `yaml:"health_drop_delta_threshold" mapstructure:"health_drop_delta_threshold" json:"health_drop_delta_threshold"`
	ContractExpiryEnabled    bool    `yaml:"contract_expiry_enabled" mapstructure:"contract_expiry_enabled" json:"contract_expiry_enabled"`
	ContractExpiryDays       int     `yaml:"contract_expiry_days" mapstructure:"contract_expiry_days" json:"contract_expiry_days"`
	InactivityEnabled        bool    `yaml:"inactivity_enabled" mapstructure:"inactivity_enabled" json:"inactivity_enabled"`
	InactivityDays           int     `yaml:"inactivity_days" mapstructure:"inactivity_days" json:"inactivity_days"`
	LowCSATEnabled           bool    `yaml:"low_csat_enabled" mapstructure:"low_csat_enabled" json:"low_csat_enabled"`
	LowCSATThreshold         float64 `yaml:"low_csat_threshold" mapstructure:"low_csat_threshold" json:"low_csat_threshold"`
}

// BatchConfig configures batch recalculation.
type BatchConfig struct {
	Concurrency        int `yaml:"concurrency" mapstructure:"concurrency"`
	DedupLookbackDays  int `yaml:"dedup_lookback_days" mapstructure:"dedup_lookback_days"`
	DispatchRatePerSec int `yaml:"dispatch_rate_per_sec" mapstructure:"dispatch_rate_per_sec"`
}

// WebhookConfig configures the outbound alert webhook (optional).
type WebhookConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// ScheduleConfig configures the interval trigger loop.
type ScheduleConfig struct {
	IntervalMins int `yaml:"interval_mins" mapstructure:"interval_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment and validates it.
// Invalid boundaries or rule parameters are configuration errors: they are
// rejected here, at load, never at evaluation time.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HEALTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "health.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("provider.timeout_secs", 30)
	v.SetDefault("scoring.weights", map[string]float64{
		"usage":      0.2,
		"engagement": 0.2,
		"csat":       0.2,
		"support":    0.2,
		"adoption":   0.2,
	})
	v.SetDefault("scoring.missing_factor_default", 0)
	v.SetDefault("thresholds.warning_boundary", 60)
	v.SetDefault("thresholds.critical_boundary", 40)
	v.SetDefault("alert_rules.health_drop_enabled", true)
	v.SetDefault("alert_rules.health_drop_delta_threshold", 10)
	v.SetDefault("alert_rules.contract_expiry_enabled", true)
	v.SetDefault("alert_rules.contract_expiry_days", 30)
	v.SetDefault("alert_rules.inactivity_enabled", true)
	v.SetDefault("alert_rules.inactivity_days", 14)
	v.SetDefault("alert_rules.low_csat_enabled", true)
	v.SetDefault("alert_rules.low_csat_threshold", 50)
	v.SetDefault("batch.concurrency", 8)
	v.SetDefault("batch.dedup_lookback_days", 7)
	v.SetDefault("batch.dispatch_rate_per_sec", 10)
	v.SetDefault("schedule.interval_mins", 60)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the load-time invariants of the domain configuration.
func (c *Config) Validate() error {
	if err := ValidateScoring(c.Scoring); err != nil {
		return err
	}
	if err := ValidateThresholds(c.Thresholds); err != nil {
		return err
	}
	if err := ValidateAlertRules(c.AlertRules); err != nil {
		return err
	}
	if c.Batch.Concurrency < 1 {
		return eris.Errorf("config: batch.concurrency must be >= 1, got %d", c.Batch.Concurrency)
	}
	return nil
}

// weightSumTolerance allows for floating-point drift in YAML-sourced weights.
const weightSumTolerance = 0.001

// ValidateScoring checks the scoring weight invariants: every weight positive,
// weights keyed by known factors only, summing to 1.0.
func ValidateScoring(s ScoringConfig) error {
	known := map[string]bool{
		"usage": true, "engagement": true, "csat": true, "support": true, "adoption": true,
	}

	var errs []string
	sum := 0.0
	for name, w := range s.Weights {
		if !known[name] {
			errs = append(errs, fmt.Sprintf("unknown factor %q", name))
			continue
		}
		if w <= 0 {
			errs = append(errs, fmt.Sprintf("weight for %s must be > 0, got %g", name, w))
		}
		sum += w
	}
	if len(s.Weights) == 0 {
		errs = append(errs, "no weights configured")
	} else if math.Abs(sum-1.0) > weightSumTolerance {
		errs = append(errs, fmt.Sprintf("weights must sum to 1.0, got %g", sum))
	}
	if s.MissingFactorDefault < 0 || s.MissingFactorDefault > 100 {
		errs = append(errs, fmt.Sprintf("missing_factor_default must be in [0,100], got %g", s.MissingFactorDefault))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid scoring config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateThresholds checks 0 <= critical <= warning <= 100.
func ValidateThresholds(t ThresholdConfig) error {
	if t.CriticalBoundary < 0 || t.WarningBoundary > 100 || t.CriticalBoundary > t.WarningBoundary {
		return eris.Errorf("config: invalid thresholds: need 0 <= critical (%d) <= warning (%d) <= 100",
			t.CriticalBoundary, t.WarningBoundary)
	}
	return nil
}

// ValidateAlertRules checks that enabled rules carry sane parameters.
func ValidateAlertRules(a AlertRuleConfig) error {
	var errs []string
	if a.HealthDropEnabled && a.HealthDropDeltaThreshold <= 0 {
		errs = append(errs, fmt.Sprintf("health_drop_delta_threshold must be > 0, got %d", a.HealthDropDeltaThreshold))
	}
	if a.ContractExpiryEnabled && a.ContractExpiryDays < 0 {
		errs = append(errs, fmt.Sprintf("contract_expiry_days must be >= 0, got %d", a.ContractExpiryDays))
	}
	if a.InactivityEnabled && a.InactivityDays <= 0 {
		errs = append(errs, fmt.Sprintf("inactivity_days must be > 0, got %d", a.InactivityDays))
	}
	if a.LowCSATEnabled && (a.LowCSATThreshold < 0 || a.LowCSATThreshold > 100) {
		errs = append(errs, fmt.Sprintf("low_csat_threshold must be in [0,100], got %g", a.LowCSATThreshold))
	}
	if len(errs) > 0 {
		return eris.Errorf("config: invalid alert rules: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
