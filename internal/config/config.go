package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RabbitMQ struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

// Realtime tunes the availability reconciler. Zero values fall back to the
// defaults below.
type Realtime struct {
	UpdateThrottleMs   int `yaml:"update_throttle_ms"`
	MaxRecentEvents    int `yaml:"max_recent_events"`
	MaxEntryAgeMs      int `yaml:"max_entry_age_ms"`
	EvictionIntervalMs int `yaml:"eviction_interval_ms"`
}

const (
	DefaultUpdateThrottle   = 1000 * time.Millisecond
	DefaultMaxRecentEvents  = 50
	DefaultMaxEntryAge      = 300_000 * time.Millisecond
	DefaultEvictionInterval = 60 * time.Second
)

func (r Realtime) UpdateThrottle() time.Duration {
	if r.UpdateThrottleMs <= 0 {
		return DefaultUpdateThrottle
	}
	return time.Duration(r.UpdateThrottleMs) * time.Millisecond
}

func (r Realtime) RecentEvents() int {
	if r.MaxRecentEvents <= 0 {
		return DefaultMaxRecentEvents
	}
	return r.MaxRecentEvents
}

func (r Realtime) MaxEntryAge() time.Duration {
	if r.MaxEntryAgeMs <= 0 {
		return DefaultMaxEntryAge
	}
	return time.Duration(r.MaxEntryAgeMs) * time.Millisecond
}

func (r Realtime) EvictionInterval() time.Duration {
	if r.EvictionIntervalMs <= 0 {
		return DefaultEvictionInterval
	}
	return time.Duration(r.EvictionIntervalMs) * time.Millisecond
}

type App struct {
	Database Database `yaml:"database"`
	RabbitMQ RabbitMQ `yaml:"rabbitmq"`
	Realtime Realtime `yaml:"realtime"`
}

func Load(path string) (App, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return App{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var a App
	if err := yaml.Unmarshal(b, &a); err != nil {
		return App{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if a.Database.Host == "" || a.RabbitMQ.Host == "" {
		return App{}, errors.New("invalid config: missing database/rabbitmq host")
	}
	if a.RabbitMQ.VHost == "" {
		a.RabbitMQ.VHost = "/"
	}
	return a, nil
}

// FindConfig looks for the config file in the conventional locations.
func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}
