package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/generation"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/policy"
)

// Export modes for the evidence archive.
const (
	ExportMemory = "memory"
	ExportSQLite = "sqlite"
	ExportOff    = "off"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	// DB
	Env    string // "dev" | "prod"
	DBPath string // e.g. "./data/totem.db"

	// Evidence export
	Export                string // memory | sqlite | off
	ExportIntervalSeconds int

	// Authority
	SignDelay      time.Duration // simulated hardware round trip
	StartConnected bool

	// Generation
	DefaultModel string

	// Extra policy rules, evaluated after the built-in transfer limit
	PolicyRules []policy.RuleSpec

	// Path of the optional YAML file; empty when none
	File string
}

func FromEnv() Config {
	env := strings.ToLower(getenvDefault("TOTEM_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	export := strings.ToLower(getenvDefault("TOTEM_EXPORT", ExportMemory))
	switch export {
	case ExportMemory, ExportSQLite, ExportOff:
	default:
		export = ExportMemory
	}

	model := getenvDefault("TOTEM_DEFAULT_MODEL", generation.DefaultModel)
	if !generation.KnownModel(model) {
		model = generation.DefaultModel
	}

	return Config{
		HTTPAddr: getenvDefault("TOTEM_HTTP_ADDR", ":8080"),
		GRPCAddr: getenvDefault("TOTEM_GRPC_ADDR", ":9090"),
		Env:      env,
		DBPath:   getenvDefault("TOTEM_DB_PATH", "./data/totem.db"),

		Export:                export,
		ExportIntervalSeconds: getenvInt("TOTEM_EXPORT_INTERVAL_SECONDS", 5),

		SignDelay:      time.Duration(getenvInt("TOTEM_SIGN_DELAY_MS", 800)) * time.Millisecond,
		StartConnected: getenvBool("TOTEM_START_CONNECTED", true),

		DefaultModel: model,
		File:         strings.TrimSpace(os.Getenv("TOTEM_CONFIG")),
	}
}

// FileConfig is the YAML configuration file.
type FileConfig struct {
	Version int `yaml:"version,omitempty"`

	Policy struct {
		Rules []policy.RuleSpec `yaml:"rules"`
	} `yaml:"policy"`

	Generation struct {
		DefaultModel string `yaml:"default_model"`
	} `yaml:"generation"`

	Authority struct {
		SignDelay string `yaml:"sign_delay"` // Go duration, e.g. "800ms"
	} `yaml:"authority"`
}

// Load reads and parses a configuration file.
func Load(path string) (FileConfig, error) {
	var fc FileConfig

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fc, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("failed to parse config file: %w", err)
	}
	return fc, nil
}

// Merge applies file settings. Environment variables win over the file for
// settings both can carry.
func (c *Config) Merge(fc FileConfig) error {
	if _, err := policy.CompileRules(fc.Policy.Rules); err != nil {
		return err
	}
	c.PolicyRules = fc.Policy.Rules

	if m := fc.Generation.DefaultModel; m != "" && os.Getenv("TOTEM_DEFAULT_MODEL") == "" {
		if !generation.KnownModel(m) {
			return fmt.Errorf("%w: %q", generation.ErrUnknownModel, m)
		}
		c.DefaultModel = m
	}

	if s := fc.Authority.SignDelay; s != "" && os.Getenv("TOTEM_SIGN_DELAY_MS") == "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			return fmt.Errorf("authority.sign_delay %q: invalid duration", s)
		}
		c.SignDelay = d
	}
	return nil
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
