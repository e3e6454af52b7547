package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		URI string `yaml:"uri"`
	} `yaml:"database"`

	JWT struct {
		Secret      string `yaml:"secret"`
		ExpiryHours int    `yaml:"expiryHours"`
	} `yaml:"jwt"`

	SMTP struct {
		Host        string `yaml:"host"`
		Port        int    `yaml:"port"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		SenderEmail string `yaml:"senderEmail"`
		SenderName  string `yaml:"senderName"`
		AdminEmail  string `yaml:"adminEmail"`
	} `yaml:"smtp"`

	Battle struct {
		SweepIntervalSeconds   int `yaml:"sweepIntervalSeconds"`
		MinVotingDurationHours int `yaml:"minVotingDurationHours"`
		MaxVotingDurationHours int `yaml:"maxVotingDurationHours"`
		// VotePeriodCap limits official votes per voter per 24h window.
		// 0 leaves the cap unenforced.
		VotePeriodCap int `yaml:"votePeriodCap"`
	} `yaml:"battle"`
}

// LoadConfig reads the configuration file and applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		cfg.Database.URI = uri
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.JWT.ExpiryHours == 0 {
		c.JWT.ExpiryHours = 24
	}
	if c.Battle.SweepIntervalSeconds == 0 {
		c.Battle.SweepIntervalSeconds = 30
	}
	if c.Battle.MinVotingDurationHours == 0 {
		c.Battle.MinVotingDurationHours = 24
	}
	if c.Battle.MaxVotingDurationHours == 0 {
		c.Battle.MaxVotingDurationHours = 720
	}
}
