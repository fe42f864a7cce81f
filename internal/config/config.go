// Package config loads and validates gapforge configuration.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/gapforge/internal/models"
	"github.com/joho/godotenv"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

var schemaLoader = gojsonschema.NewStringLoader(schemaJSON)

// Rule type tags.
const (
	RuleFreeLibrary  = "free_library"
	RuleInternalCode = "internal_code"
	RuleLowCost      = "low_cost"
	RuleSubscription = "subscription"
	RuleExternalAPI  = "external_api"
	RuleComplexBuild = "complex_build"
	RuleHighCost     = "high_cost"
)

// Config is built once and passed to every component.
type Config struct {
	// Database is the SQLite path.
	Database string `yaml:"database"`
	// ToolsDir receives synthesized tool sources.
	ToolsDir string `yaml:"tools_dir"`
	// HourlyRate prices engineering hours.
	HourlyRate float64 `yaml:"hourly_rate"`
	// Budgets seeds periods that have no live budget yet.
	Budgets map[models.Period]float64 `yaml:"budgets"`

	Approval    ApprovalConfig    `yaml:"approval"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Synthesis   SynthesisConfig   `yaml:"synthesis"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`

	// Catalog extends the analyzer's known buy options.
	Catalog []CatalogEntry `yaml:"catalog"`
}

// ApprovalConfig holds ordered bypass and require rules.
type ApprovalConfig struct {
	Bypass  []RuleConfig `yaml:"bypass"`
	Require []RuleConfig `yaml:"require"`
}

// RuleConfig is one tagged rule. Only the fields for its Type are read.
type RuleConfig struct {
	Type               string  `yaml:"type"`
	MaxComplexityScore float64 `yaml:"max_complexity_score,omitempty"`
	MaxHours           float64 `yaml:"max_hours,omitempty"`
	MaxTotalCost       float64 `yaml:"max_total_cost,omitempty"`
	MinHours           float64 `yaml:"min_hours,omitempty"`
	MonthlyCost        float64 `yaml:"monthly_cost,omitempty"`
}

// AcquisitionConfig tunes the orchestrator.
type AcquisitionConfig struct {
	MaxCallCost      float64       `yaml:"max_call_cost"`
	SynthesisCost    float64       `yaml:"synthesis_cost"`
	InitialScore     float64       `yaml:"initial_score"`
	PreferSource     models.Action `yaml:"prefer_source,omitempty"`
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout"`
	ApprovalTimeout  time.Duration `yaml:"approval_timeout"`
}

// SynthesisConfig selects the code synthesis backend.
type SynthesisConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	APIKeyEnv   string  `yaml:"api_key_env"`
}

// DiscoveryConfig configures candidate discovery.
type DiscoveryConfig struct {
	MaxResults        int     `yaml:"max_results"`
	GitHubTokenEnv    string  `yaml:"github_token_env"`
	APIsGuruURL       string  `yaml:"apis_guru_url"`
	DefaultAPIMonthly float64 `yaml:"default_api_monthly"`
	Offline           bool    `yaml:"offline"`
}

// CatalogEntry is a known buy option keyed by a capability phrase.
type CatalogEntry struct {
	Key         string        `yaml:"key"`
	Source      string        `yaml:"source"`
	Kind        models.Action `yaml:"kind"`
	MonthlyCost float64       `yaml:"monthly_cost"`
	SetupHours  float64       `yaml:"setup_hours"`
	Maturity    float64       `yaml:"maturity"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".gapforge")

	return &Config{
		Database:   filepath.Join(base, "gapforge.db"),
		ToolsDir:   filepath.Join(base, "tools"),
		HourlyRate: 100,
		Approval: ApprovalConfig{
			Bypass: []RuleConfig{
				{Type: RuleFreeLibrary},
				{Type: RuleInternalCode, MaxComplexityScore: 0.5},
				{Type: RuleLowCost, MaxHours: 1, MaxTotalCost: 10},
			},
			Require: []RuleConfig{
				{Type: RuleSubscription},
				{Type: RuleExternalAPI},
				{Type: RuleComplexBuild, MinHours: 8},
				{Type: RuleHighCost, MonthlyCost: 50},
			},
		},
		Acquisition: AcquisitionConfig{
			MaxCallCost:      50,
			SynthesisCost:    0.02,
			InitialScore:     0.7,
			SynthesisTimeout: 2 * time.Minute,
			ApprovalTimeout:  10 * time.Minute,
		},
		Synthesis: SynthesisConfig{
			Provider:    "gemini",
			Model:       "gemini-2.5-pro",
			Temperature: 0.2,
			APIKeyEnv:   "GEMINI_API_KEY",
		},
		Discovery: DiscoveryConfig{
			MaxResults:        5,
			GitHubTokenEnv:    "GITHUB_TOKEN",
			APIsGuruURL:       "https://api.apis.guru/v2/list.json",
			DefaultAPIMonthly: 30,
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file yields defaults.
func LoadConfig(path string) (*Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		data = nil
	}

	if len(bytes.TrimSpace(data)) > 0 {
		if err := validateSchema(data); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing config file: %v", models.ErrConfiguration, err)
		}
	}

	if db := os.Getenv("GAPFORGE_DATABASE"); db != "" {
		cfg.Database = db
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromHome loads configuration from ~/.gapforge/config.yaml.
func LoadConfigFromHome() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadConfig(filepath.Join(home, ".gapforge", "config.yaml"))
}

// SaveConfig saves configuration to a YAML file, creating parent directories if needed.
func SaveConfig(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func validateSchema(data []byte) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: parsing config file: %v", models.ErrConfiguration, err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: schema validation: %v", models.ErrConfiguration, err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", models.ErrConfiguration, strings.Join(msgs, "; "))
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.HourlyRate <= 0 {
		errs = append(errs, fmt.Errorf("hourly_rate must be positive"))
	}
	for p, limit := range c.Budgets {
		if !p.Valid() {
			errs = append(errs, fmt.Errorf("unknown budget period %q", p))
		}
		if limit < 0 {
			errs = append(errs, fmt.Errorf("budget %s must not be negative", p))
		}
	}
	for _, r := range c.Approval.Bypass {
		errs = append(errs, r.validate(true))
	}
	for _, r := range c.Approval.Require {
		errs = append(errs, r.validate(false))
	}

	a := c.Acquisition
	if a.MaxCallCost < 0 || a.SynthesisCost < 0 {
		errs = append(errs, fmt.Errorf("acquisition costs must not be negative"))
	}
	if a.InitialScore < 0 || a.InitialScore > 1 {
		errs = append(errs, fmt.Errorf("initial_score must be within [0,1]"))
	}
	switch a.PreferSource {
	case "", models.ActionLibrary, models.ActionAPI:
	default:
		errs = append(errs, fmt.Errorf("invalid prefer_source %q, must be: library or api", a.PreferSource))
	}
	if a.SynthesisTimeout <= 0 || a.ApprovalTimeout <= 0 {
		errs = append(errs, fmt.Errorf("timeouts must be positive"))
	}

	for _, e := range c.Catalog {
		if e.Key == "" || e.Source == "" {
			errs = append(errs, fmt.Errorf("catalog entries need key and source"))
		}
		if e.Kind != models.ActionLibrary && e.Kind != models.ActionAPI {
			errs = append(errs, fmt.Errorf("catalog entry %q: kind must be library or api", e.Source))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", models.ErrConfiguration, err)
	}
	return nil
}

func (r RuleConfig) validate(bypass bool) error {
	valid := map[string]bool{
		RuleFreeLibrary:  bypass,
		RuleInternalCode: bypass,
		RuleLowCost:      bypass,
		RuleSubscription: !bypass,
		RuleExternalAPI:  !bypass,
		RuleComplexBuild: !bypass,
		RuleHighCost:     !bypass,
	}
	if !valid[r.Type] {
		kind := "require"
		if bypass {
			kind = "bypass"
		}
		return fmt.Errorf("invalid %s rule type %q", kind, r.Type)
	}
	if r.MaxComplexityScore < 0 || r.MaxHours < 0 || r.MaxTotalCost < 0 || r.MinHours < 0 || r.MonthlyCost < 0 {
		return fmt.Errorf("rule %s: thresholds must not be negative", r.Type)
	}
	return nil
}

// APIKey returns the synthesis API key from the environment.
func (c *Config) APIKey() string {
	return os.Getenv(c.Synthesis.APIKeyEnv)
}

// GitHubToken returns the discovery token from the environment.
func (c *Config) GitHubToken() string {
	return os.Getenv(c.Discovery.GitHubTokenEnv)
}
