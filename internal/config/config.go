// Package config reads the e-invoicing service configuration.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the service configuration. Environment variables win over
// command-line flags.
type Config struct {
	RunAddress       string        `env:"RUN_ADDRESS"`
	DatabaseURI      string        `env:"DATABASE_URI"`
	AuthorityAddress string        `env:"AUTHORITY_ADDRESS"`
	AuthorityEnv     string        `env:"AUTHORITY_ENVIRONMENT" envDefault:"sandbox"`
	AuthorityToken   string        `env:"AUTHORITY_TOKEN"`
	CatalogAddress   string        `env:"CATALOG_ADDRESS"`
	CatalogToken     string        `env:"CATALOG_TOKEN"`
	SubmitMaxRetries int           `env:"SUBMIT_MAX_RETRIES" envDefault:"3"`
	SubmitTimeout    time.Duration `env:"SUBMIT_TIMEOUT" envDefault:"30s"`
	RemoteValidation bool          `env:"REMOTE_VALIDATION" envDefault:"true"`
	AmbiguousPolicy  string        `env:"AMBIGUOUS_POLICY" envDefault:"accept"`
}

// Parse reads configuration from command-line flags and environment variables.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envAuthorityAddress := cfg.AuthorityAddress
	envCatalogAddress := cfg.CatalogAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AuthorityAddress, "r", "", "authority API address (overrides the environment base URL)")
	flag.StringVar(&cfg.CatalogAddress, "c", "", "reference catalog address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envAuthorityAddress != "" {
		cfg.AuthorityAddress = envAuthorityAddress
	}
	if envCatalogAddress != "" {
		cfg.CatalogAddress = envCatalogAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if cfg.AuthorityEnv != "sandbox" && cfg.AuthorityEnv != "production" {
		return nil, fmt.Errorf("unknown authority environment %q", cfg.AuthorityEnv)
	}
	if cfg.SubmitMaxRetries < 1 {
		return nil, fmt.Errorf("submit max retries must be at least 1, got %d", cfg.SubmitMaxRetries)
	}

	return cfg, nil
}
