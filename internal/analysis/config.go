package analysis

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"oath/internal/contract"
	"oath/internal/solver"
)

// UnknownCallPolicy says how a call the registry cannot classify is
// treated.
type UnknownCallPolicy string

const (
	// PolicyDefault warns about the call and assumes it is effectful.
	PolicyDefault UnknownCallPolicy = "default"
	// PolicyStrict rejects the call with an error.
	PolicyStrict UnknownCallPolicy = "strict"
	// PolicyPermissive assumes the call is effectful without comment.
	PolicyPermissive UnknownCallPolicy = "permissive"
)

// IntegerMode selects the arithmetic semantics verification encodes:
// out-of-range intermediates either trap or wrap.
type IntegerMode string

const (
	ModeTrap IntegerMode = "trap"
	ModeWrap IntegerMode = "wrap"
)

// Arith maps the configured mode onto the encoder's.
func (m IntegerMode) Arith() contract.ArithMode {
	if m == ModeWrap {
		return contract.ModeWrap
	}
	return contract.ModeTrap
}

// Config selects and tunes the analysis components for one run.
type Config struct {
	EnableDataflow        bool              `yaml:"dataflow"`
	EnableBugPatterns     bool              `yaml:"bug_patterns"`
	EnableTaintAnalysis   bool              `yaml:"taint"`
	UseSmtVerification    bool              `yaml:"smt"`
	VerificationTimeoutMs uint              `yaml:"timeout_ms"`
	CacheEnabled          bool              `yaml:"cache"`
	UnknownCallPolicy     UnknownCallPolicy `yaml:"unknown_calls"`
	IntegerMode           IntegerMode       `yaml:"integer_mode"`
	Workers               int               `yaml:"workers"`
	SolverPath            string            `yaml:"solver"`
}

// DefaultConfig returns the everything-on defaults: every pass enabled,
// with trap arithmetic and a worker per CPU core.
func DefaultConfig() Config {
	return Config{
		EnableDataflow:        true,
		EnableBugPatterns:     true,
		EnableTaintAnalysis:   true,
		UseSmtVerification:    true,
		VerificationTimeoutMs: solver.DefaultTimeoutMs,
		CacheEnabled:          true,
		UnknownCallPolicy:     PolicyDefault,
		IntegerMode:           ModeTrap,
		Workers:               runtime.NumCPU(),
	}
}

// LoadConfig reads a YAML file over the defaults, so absent keys keep
// their default values rather than zeroing out.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects enum values outside their closed sets.
func (c Config) Validate() error {
	switch c.UnknownCallPolicy {
	case "", PolicyDefault, PolicyStrict, PolicyPermissive:
	default:
		return fmt.Errorf("unknown_calls must be default, strict, or permissive, not %q", c.UnknownCallPolicy)
	}
	switch c.IntegerMode {
	case "", ModeTrap, ModeWrap:
	default:
		return fmt.Errorf("integer_mode must be trap or wrap, not %q", c.IntegerMode)
	}
	return nil
}

// normalized fills the zero values a hand-built Config leaves behind.
func (c Config) normalized() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.VerificationTimeoutMs == 0 {
		c.VerificationTimeoutMs = solver.DefaultTimeoutMs
	}
	if c.UnknownCallPolicy == "" {
		c.UnknownCallPolicy = PolicyDefault
	}
	if c.IntegerMode == "" {
		c.IntegerMode = ModeTrap
	}
	return c
}

// Salt folds the settings that change verification verdicts into the
// cache fingerprint. A proof under one arithmetic mode or timeout does
// not speak for another.
func (c Config) Salt() string {
	return fmt.Sprintf("%s|%dms", c.IntegerMode, c.VerificationTimeoutMs)
}
