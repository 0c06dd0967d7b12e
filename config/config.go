package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds scraper configuration.
type Config struct {
	TargetURL      string        `yaml:"target_url"`
	UserAgent      string        `yaml:"user_agent"`
	Timeout        time.Duration `yaml:"timeout"`
	RatesBaseURL   string        `yaml:"rates_base_url"`
	APIKey         string        `yaml:"api_key"`
	SourceCurrency string        `yaml:"source_currency"`
	TargetCurrency string        `yaml:"target_currency"`
	CurrencySymbol string        `yaml:"currency_symbol"`
	Product        string        `yaml:"product"`
	RateCacheTTL   time.Duration `yaml:"rate_cache_ttl"`
	RateCacheSize  int           `yaml:"rate_cache_size"`
	OutputFormat   string        `yaml:"output_format"` // text or table
	ExportFile     string        `yaml:"export_file"`
	ExportFormat   string        `yaml:"export_format"` // csv, json, dual or empty
	Verbose        bool          `yaml:"verbose"`
	MetricsAddr    string        `yaml:"metrics_addr"`
}

// DefaultConfig returns defaults for the Escape from Tarkov preorder page.
// APIKey has no default and must be supplied.
func DefaultConfig() *Config {
	return &Config{
		TargetURL:      "https://www.escapefromtarkov.com/preorder-page",
		UserAgent:      "Mozilla/5.0",
		Timeout:        10 * time.Second,
		RatesBaseURL:   "https://v6.exchangerate-api.com/v6",
		SourceCurrency: "USD",
		TargetCurrency: "AUD",
		CurrencySymbol: "$",
		Product:        "Escape from Tarkov",
		RateCacheTTL:   time.Hour,
		RateCacheSize:  8,
		OutputFormat:   "text",
	}
}

// LoadFile overlays the YAML document at path onto c. Keys absent from the
// file keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}
	return nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := validateURL("target URL", c.TargetURL); err != nil {
		return err
	}
	if err := validateURL("rates base URL", c.RatesBaseURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("api key cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if !isCurrencyCode(c.SourceCurrency) {
		return fmt.Errorf("source currency %q must be a three letter code", c.SourceCurrency)
	}
	if !isCurrencyCode(c.TargetCurrency) {
		return fmt.Errorf("target currency %q must be a three letter code", c.TargetCurrency)
	}
	if c.RateCacheSize <= 0 {
		return fmt.Errorf("rate cache size must be positive")
	}
	if c.RateCacheTTL < 0 {
		return fmt.Errorf("rate cache ttl cannot be negative")
	}
	if c.OutputFormat != "text" && c.OutputFormat != "table" {
		return fmt.Errorf("output format must be text or table")
	}
	switch c.ExportFormat {
	case "":
	case "csv", "json", "dual":
		if c.ExportFile == "" {
			return fmt.Errorf("export file cannot be empty when export format is %s", c.ExportFormat)
		}
	default:
		return fmt.Errorf("export format must be csv, json, or dual")
	}

	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}

func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
