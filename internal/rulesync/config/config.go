package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from environment variable names before mapping them
// onto AppConfig keys.
const envPrefix = "RULESYNC_"

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,log_level"`

	// DBPath is the bbolt file holding servers, groups and caches.
	DBPath string `koanf:"db_path" validate:"required"`

	// CacheSize is the number of server caches kept in memory.
	CacheSize uint `koanf:"cache_size" validate:"required,gte=1"`

	// WriteDelay is the pause between successful sequential writes.
	WriteDelay time.Duration `koanf:"write_delay" validate:"gte=0,lte=10s"`

	// HTTPTimeout bounds each control API request.
	HTTPTimeout time.Duration `koanf:"http_timeout" validate:"required,gte=1s,lte=5m"`

	// RefreshInterval is how often the poller refreshes server caches.
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"required,gte=1s"`

	// MetricsFile, when set, receives the Prometheus textfile after each command.
	MetricsFile string `koanf:"metrics_file" validate:"omitempty,prom_file"`
}

// DEFAULT_APP_CONFIG defines the default application configuration settings.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:             "prod",
	LogLevel:        "info",
	DBPath:          "/var/lib/rulesync/rulesync.db",
	CacheSize:       256,
	WriteDelay:      500 * time.Millisecond,
	HTTPTimeout:     10 * time.Second,
	RefreshInterval: 5 * time.Minute,
}

var logLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}

func validLogLevel(fl validator.FieldLevel) bool {
	_, ok := logLevels[strings.ToLower(fl.Field().String())]
	return ok
}

// validPromFile accepts paths the node_exporter textfile collector picks up.
func validPromFile(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	return filepath.Ext(p) == ".prom" && filepath.Base(p) != ".prom"
}

// envLoader loads environment variables with the prefix "RULESYNC_",
// lowercasing keys and splitting space or comma separated values into lists.
// It can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "log_level" and "prom_file" tags.
var registerValidation = func(v *validator.Validate) error {
	if err := v.RegisterValidation("log_level", validLogLevel); err != nil {
		return err
	}
	return v.RegisterValidation("prom_file", validPromFile)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	validate := validator.New(validator.WithRequiredStructEnabled())

	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
