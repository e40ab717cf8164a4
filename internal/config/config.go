package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
	Quiz struct {
		TTL             string `yaml:"ttl"`
		Grace           string `yaml:"grace"`
		Intermission    string `yaml:"intermission"`
		LateSlack       string `yaml:"lateSlack"`
		DedupeTTL       string `yaml:"dedupeTtl"`
		LeaderboardSize int    `yaml:"leaderboardSize"`
	} `yaml:"quiz"`
	Worker struct {
		Poll      string `yaml:"poll"`
		Retry     string `yaml:"retry"`
		Reconcile string `yaml:"reconcile"`
	} `yaml:"worker"`
}

// Load reads YAML config from path. A missing file yields an empty config so
// env fallbacks can fill everything in.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or
// malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Env returns the environment value for key or the fallback when unset.
func Env(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
