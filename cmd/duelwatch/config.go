package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config wires duelwatch to a backend environment. Values in the YAML file
// are the base; environment variables override (see applyEnv).
type Config struct {
	API struct {
		BaseURL    string `yaml:"base_url"`
		TimeoutSec int    `yaml:"timeout_sec"`
		H2C        bool   `yaml:"h2c"`
	} `yaml:"api"`
	Events struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"events"`
	Live struct {
		URL string `yaml:"url"`
	} `yaml:"live"`
	Debug struct {
		Addr string `yaml:"addr"`
	} `yaml:"debug"`
	Match struct {
		UserID       string `yaml:"user_id"`
		UserName     string `yaml:"user_name"`
		OpponentName string `yaml:"opponent_name"`
		GameMode     string `yaml:"game_mode"`
	} `yaml:"match"`
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

func loadConfig(path string) (*Config, error) {
	var config Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Env-only operation is fine.
			config.applyEnv()
			return &config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.applyEnv()
	return &config, nil
}

func (c *Config) applyEnv() {
	c.API.BaseURL = getEnv("DUEL_API_URL", c.API.BaseURL)
	c.Events.URL = getEnv("DUEL_NATS_URL", c.Events.URL)
	c.Live.URL = getEnv("DUEL_LIVE_URL", c.Live.URL)
	c.Debug.Addr = getEnv("DUEL_DEBUG_ADDR", c.Debug.Addr)
	c.Match.UserID = getEnv("DUEL_USER_ID", c.Match.UserID)
	c.Match.UserName = getEnv("DUEL_USER_NAME", c.Match.UserName)
	c.Match.OpponentName = getEnv("DUEL_OPPONENT_NAME", c.Match.OpponentName)
	c.Match.GameMode = getEnv("DUEL_GAME_MODE", c.Match.GameMode)

	if c.API.TimeoutSec == 0 {
		c.API.TimeoutSec = getEnvAsInt("DUEL_API_TIMEOUT_SEC", 10)
	}
	if c.Match.GameMode == "" {
		c.Match.GameMode = "quick"
	}
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = "match.events"
	}
	if c.Debug.Addr == "" {
		c.Debug.Addr = ":8787"
	}
}
