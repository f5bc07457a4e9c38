package main

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"

	"github.com/kestelyn/bioguard/secret"
)

// hostConfig is the host's environment-driven configuration. The ceremony
// cache interval is deliberately not configurable.
type hostConfig struct {
	Service      string     `env:"BIOGUARD_SERVICE"       envDefault:"com.kestelyn.bioguard"`
	Account      string     `env:"BIOGUARD_ACCOUNT"       envDefault:"api-credential"`
	PromptReason string     `env:"BIOGUARD_PROMPT_REASON" envDefault:"Unlock your API credential"`
	PromptCancel string     `env:"BIOGUARD_PROMPT_CANCEL" envDefault:"Cancel"`
	LogLevel     slog.Level `env:"BIOGUARD_LOG_LEVEL"     envDefault:"info"`
}

func loadConfig() (hostConfig, error) {
	var cfg hostConfig
	if err := env.Parse(&cfg); err != nil {
		return hostConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c hostConfig) address() secret.Address {
	return secret.Address{Service: c.Service, Account: c.Account}
}

func (c hostConfig) prompt() secret.Prompt {
	return secret.Prompt{Reason: c.PromptReason, CancelLabel: c.PromptCancel}
}
