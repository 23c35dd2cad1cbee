package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds all runtime settings that are not per-run CLI flags.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	WRDS       WRDSConfig       `yaml:"wrds" mapstructure:"wrds"`
	VDatum     VDatumConfig     `yaml:"vdatum" mapstructure:"vdatum"`
	Acceptance AcceptanceConfig `yaml:"acceptance" mapstructure:"acceptance"`
	Sites      SitesConfig      `yaml:"sites" mapstructure:"sites"`
	Inundation InundationConfig `yaml:"inundation" mapstructure:"inundation"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
}

// LogConfig configures the global zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	// File, when set, receives a JSON copy of every log line.
	File string `yaml:"file" mapstructure:"file"`
}

// WRDSConfig configures the metadata and threshold service client.
type WRDSConfig struct {
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	// InsecureSkipVerify turns off TLS certificate checks.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
}

// VDatumConfig configures the NOAA VDatum client.
type VDatumConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	Region         string `yaml:"region" mapstructure:"region"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RetryDelaySecs int    `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	// InsecureSkipVerify turns off TLS certificate checks.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
}

// AcceptanceConfig holds the gauge data-quality rules.
type AcceptanceConfig struct {
	AltMethodCodes       []string `yaml:"alt_method_codes" mapstructure:"alt_method_codes"`
	SiteTypes            []string `yaml:"site_types" mapstructure:"site_types"`
	AltAccuracyThreshold float64  `yaml:"alt_accuracy_threshold" mapstructure:"alt_accuracy_threshold"`
	// ElevDiscrepancyM is the largest accepted gap between the HAND gauge
	// elevation and the gauge altitude.
	ElevDiscrepancyM float64 `yaml:"elev_discrepancy_m" mapstructure:"elev_discrepancy_m"`
}

// SitesConfig locates the restricted-sites list.
type SitesConfig struct {
	// RestrictedFile replaces the packaged restricted-sites CSV when set.
	RestrictedFile string `yaml:"restricted_file" mapstructure:"restricted_file"`
}

// InundationConfig tunes the raster stages.
type InundationConfig struct {
	Windowed         bool    `yaml:"windowed" mapstructure:"windowed"`
	BlockSize        int     `yaml:"block_size" mapstructure:"block_size"`
	DepthCapM        float64 `yaml:"depth_cap_m" mapstructure:"depth_cap_m"`
	WSERepairFloorFt float64 `yaml:"wse_repair_floor_ft" mapstructure:"wse_repair_floor_ft"`
}

// MetricsConfig controls the Prometheus textfile written at the end of a run.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Filename string `yaml:"filename" mapstructure:"filename"`
	// Unmapped-rate alerts only fire for runs with at least MinGauges sites.
	UnmappedRateThreshold float64 `yaml:"unmapped_rate_threshold" mapstructure:"unmapped_rate_threshold"`
	MinGauges             int     `yaml:"min_gauges" mapstructure:"min_gauges"`
}

// Load reads config.yaml (optional) and CATFIM_* environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CATFIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("wrds.user_agent", "catfim/1.0")
	v.SetDefault("wrds.timeout_secs", 120)
	v.SetDefault("wrds.max_retries", 2)
	v.SetDefault("wrds.rate_per_sec", 10.0)
	v.SetDefault("wrds.burst", 10)
	v.SetDefault("wrds.failure_threshold", 10)
	v.SetDefault("wrds.reset_timeout_secs", 60)
	v.SetDefault("wrds.insecure_skip_verify", false)
	v.SetDefault("vdatum.base_url", "https://vdatum.noaa.gov/vdatumweb/api")
	v.SetDefault("vdatum.region", "contiguous")
	v.SetDefault("vdatum.timeout_secs", 60)
	v.SetDefault("vdatum.retry_delay_secs", 10)
	v.SetDefault("vdatum.insecure_skip_verify", false)
	v.SetDefault("acceptance.alt_method_codes", []string{"A", "D", "F", "I", "J", "L", "N", "R", "W", "X", "Y", "Z"})
	v.SetDefault("acceptance.site_types", []string{"ST"})
	v.SetDefault("acceptance.alt_accuracy_threshold", 1.0)
	v.SetDefault("acceptance.elev_discrepancy_m", 10.0)
	v.SetDefault("sites.restricted_file", "")
	v.SetDefault("inundation.windowed", true)
	v.SetDefault("inundation.block_size", 256)
	v.SetDefault("inundation.depth_cap_m", 30.0)
	v.SetDefault("inundation.wse_repair_floor_ft", 250.0)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.filename", "metrics.prom")
	v.SetDefault("metrics.unmapped_rate_threshold", 0.5)
	v.SetDefault("metrics.min_gauges", 10)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	if c.VDatum.BaseURL == "" {
		return eris.New("config: vdatum.base_url is required")
	}
	if c.Inundation.BlockSize <= 0 {
		return eris.Errorf("config: inundation.block_size must be positive, got %d", c.Inundation.BlockSize)
	}
	if c.Acceptance.AltAccuracyThreshold < 0 {
		return eris.New("config: acceptance.alt_accuracy_threshold must not be negative")
	}
	return nil
}

// Env holds the keys of the run environment file passed with -e.
type Env struct {
	APIBaseURL    string `mapstructure:"api_base_url"`
	WBDLayer      string `mapstructure:"wbd_layer"`
	NWMFlowsLayer string `mapstructure:"nwm_flows_layer"`
}

// LoadEnv reads a dotenv-style environment file. API_BASE_URL and WBD_LAYER
// are required.
func LoadEnv(path string) (*Env, error) {
	if path == "" {
		return nil, eris.New("config: environment file is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "config: environment file %s", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, eris.Wrapf(err, "config: read environment file %s", path)
	}

	var env Env
	if err := v.Unmarshal(&env); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal environment file")
	}
	env.APIBaseURL = strings.TrimRight(strings.TrimSpace(env.APIBaseURL), "/")
	env.WBDLayer = strings.TrimSpace(env.WBDLayer)

	if env.APIBaseURL == "" {
		return nil, eris.Errorf("config: API_BASE_URL missing from %s", path)
	}
	if env.WBDLayer == "" {
		return nil, eris.Errorf("config: WBD_LAYER missing from %s", path)
	}
	return &env, nil
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

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return eris.Wrapf(err, "config: open log file %s", cfg.File)
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(f),
			level,
		)
		logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	zap.ReplaceGlobals(logger)
	return nil
}
