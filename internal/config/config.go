package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type HTTPConfig struct {
	TimeoutSeconds    int     `yaml:"timeout_seconds" json:"timeout_seconds"`
	UserAgent         string  `yaml:"user_agent" json:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

type SyncConfig struct {
	IntervalMinutes     int      `yaml:"interval_minutes" json:"interval_minutes"`
	RunTimeoutSeconds   int      `yaml:"run_timeout_seconds" json:"run_timeout_seconds"`
	Concurrency         int      `yaml:"concurrency" json:"concurrency"`
	StickyStatuses      []string `yaml:"sticky_statuses" json:"sticky_statuses"`
	ExtractTechnologies bool     `yaml:"extract_technologies" json:"extract_technologies"`
	// RemovedRetentionDays purges removed jobs older than this; 0 keeps them.
	// A purged job that shows up again is added as new, not reactivated.
	RemovedRetentionDays int `yaml:"removed_retention_days" json:"removed_retention_days"`
}

type Config struct {
	App struct {
		Port    int    `yaml:"port" json:"port"`
		DataDir string `yaml:"data_dir" json:"data_dir"`
	} `yaml:"app" json:"app"`

	HTTP HTTPConfig `yaml:"http" json:"http"`
	Sync SyncConfig `yaml:"sync" json:"sync"`
}

// Default is used for any key missing from the file.
func Default() Config {
	var cfg Config
	cfg.App.Port = 38471
	cfg.HTTP = HTTPConfig{
		TimeoutSeconds:    20,
		RequestsPerSecond: 2,
		Burst:             2,
	}
	cfg.Sync = SyncConfig{
		IntervalMinutes:      60,
		RunTimeoutSeconds:    300,
		Concurrency:          4,
		StickyStatuses:       []string{"hidden"},
		ExtractTechnologies:  true,
		RemovedRetentionDays: 0,
	}
	return cfg
}

func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}
