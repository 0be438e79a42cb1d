package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	Folds               int
	Metrics             []string
	PrimaryMetric       string
	TopN                int
	UseProbabilities    bool
	BootstrapIterations int
	Alpha               float64
	ImbalanceThreshold  float64
	Rebalance           bool
	Workers             int
	Seed                int64
	TrainPath           string
	TestFraction        float64
	DataPath            string
	MetricsPort         int
	RemoteScorerURL     string
	RESTTimeout         time.Duration
}

type ConfigFile struct {
	Tuning struct {
		Folds         int      `yaml:"folds"`
		Metrics       []string `yaml:"metrics"`
		PrimaryMetric string   `yaml:"primaryMetric"`
	} `yaml:"tuning"`

	Selection struct {
		TopN             int  `yaml:"topN"`
		UseProbabilities bool `yaml:"useProbabilities"`
	} `yaml:"selection"`

	Bootstrap struct {
		Iterations int     `yaml:"iterations"`
		Alpha      float64 `yaml:"alpha"`
	} `yaml:"bootstrap"`

	Balance struct {
		Threshold float64 `yaml:"threshold"`
		Rebalance bool    `yaml:"rebalance"`
	} `yaml:"balance"`

	Data struct {
		TrainPath    string  `yaml:"trainPath"`
		TestFraction float64 `yaml:"testFraction"`
	} `yaml:"data"`

	Remote struct {
		ScorerURL   string `yaml:"scorerURL"`
		RESTTimeout string `yaml:"restTimeout"`
	} `yaml:"remote"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		MetricsPort int    `yaml:"metricsPort"`
		Workers     int    `yaml:"workers"`
		Seed        int64  `yaml:"seed"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	restTimeout, err := time.ParseDuration(config.Remote.RESTTimeout)
	if err != nil {
		restTimeout = 5 * time.Second
	}

	settings := Settings{
		Folds:               getIntFromEnvOrConfig("FOLDS", config.Tuning.Folds, 5),
		Metrics:             getMetricsFromEnvOrConfig(config.Tuning.Metrics),
		PrimaryMetric:       getEnvOrDefault("PRIMARY_METRIC", orString(config.Tuning.PrimaryMetric, "accuracy")),
		TopN:                getIntFromEnvOrConfig("TOP_N", config.Selection.TopN, 2),
		UseProbabilities:    getBoolFromEnvOrConfig("USE_PROBABILITIES", config.Selection.UseProbabilities),
		BootstrapIterations: getIntFromEnvOrConfig("BOOTSTRAP_ITERATIONS", config.Bootstrap.Iterations, 100),
		Alpha:               getFloatFromEnvOrConfig("ALPHA", config.Bootstrap.Alpha, 0.05),
		ImbalanceThreshold:  getFloatFromEnvOrConfig("IMBALANCE_THRESHOLD", config.Balance.Threshold, 0.5),
		Rebalance:           getBoolFromEnvOrConfig("REBALANCE", config.Balance.Rebalance),
		Workers:             getIntFromEnvOrConfig("WORKERS", config.System.Workers, 0),
		Seed:                getInt64FromEnvOrConfig("SEED", config.System.Seed, 42),
		TrainPath:           getEnvOrDefault("TRAIN_PATH", config.Data.TrainPath),
		TestFraction:        getFloatFromEnvOrConfig("TEST_FRACTION", config.Data.TestFraction, 0.2),
		DataPath:            getEnvOrDefault("DATA_PATH", config.System.DataPath),
		MetricsPort:         getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort, 8080),
		RemoteScorerURL:     getEnvOrDefault("REMOTE_SCORER_URL", config.Remote.ScorerURL),
		RESTTimeout:         restTimeout,
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Folds:               getIntOrDefault("FOLDS", 5),
		Metrics:             splitOrDefault(os.Getenv("METRICS"), []string{"accuracy", "f1_macro"}),
		PrimaryMetric:       getEnvOrDefault("PRIMARY_METRIC", "accuracy"),
		TopN:                getIntOrDefault("TOP_N", 2),
		UseProbabilities:    getBoolOrDefault("USE_PROBABILITIES", false),
		BootstrapIterations: getIntOrDefault("BOOTSTRAP_ITERATIONS", 100),
		Alpha:               getFloatOrDefault("ALPHA", 0.05),
		ImbalanceThreshold:  getFloatOrDefault("IMBALANCE_THRESHOLD", 0.5),
		Rebalance:           getBoolOrDefault("REBALANCE", false),
		Workers:             getIntOrDefault("WORKERS", 0),
		Seed:                getInt64OrDefault("SEED", 42),
		TrainPath:           os.Getenv("TRAIN_PATH"), // optional, synthetic data when empty
		TestFraction:        getFloatOrDefault("TEST_FRACTION", 0.2),
		DataPath:            os.Getenv("DATA_PATH"), // optional
		MetricsPort:         getIntOrDefault("METRICS_PORT", 8080),
		RemoteScorerURL:     os.Getenv("REMOTE_SCORER_URL"), // optional
		RESTTimeout:         getDurationOrDefault("REST_TIMEOUT", 5*time.Second),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	return strings.Split(v, ",")
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getMetricsFromEnvOrConfig(configMetrics []string) []string {
	if env := os.Getenv("METRICS"); env != "" {
		return strings.Split(env, ",")
	}
	if len(configMetrics) > 0 {
		return configMetrics
	}
	return []string{"accuracy", "f1_macro"}
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getInt64FromEnvOrConfig(key string, configValue, defaultValue int64) int64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.Folds < 2 || settings.Folds > 20 {
		return fmt.Errorf("folds must be between 2 and 20, got %d", settings.Folds)
	}
	if len(settings.Metrics) == 0 {
		return fmt.Errorf("at least one metric must be specified")
	}
	if settings.PrimaryMetric == "" {
		return fmt.Errorf("primary metric cannot be empty")
	}

	primaryListed := false
	for _, m := range settings.Metrics {
		if m == settings.PrimaryMetric {
			primaryListed = true
			break
		}
	}
	if !primaryListed {
		return fmt.Errorf("primary metric %q must be one of the configured metrics %v", settings.PrimaryMetric, settings.Metrics)
	}

	if settings.TopN <= 0 {
		return fmt.Errorf("top N must be positive, got %d", settings.TopN)
	}
	if settings.BootstrapIterations < 2 || settings.BootstrapIterations > 100000 {
		return fmt.Errorf("bootstrap iterations must be between 2 and 100000, got %d", settings.BootstrapIterations)
	}
	if settings.Alpha <= 0 || settings.Alpha >= 1 {
		return fmt.Errorf("alpha must be between 0 and 1 exclusive, got %f", settings.Alpha)
	}
	if settings.ImbalanceThreshold <= 0 || settings.ImbalanceThreshold > 1 {
		return fmt.Errorf("imbalance threshold must be between 0 and 1, got %f", settings.ImbalanceThreshold)
	}
	if settings.TestFraction <= 0 || settings.TestFraction >= 1 {
		return fmt.Errorf("test fraction must be between 0 and 1 exclusive, got %f", settings.TestFraction)
	}
	if settings.Workers < 0 {
		return fmt.Errorf("workers must be nonnegative, got %d", settings.Workers)
	}
	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}

	return nil
}
