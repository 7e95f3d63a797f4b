package config

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	pkgconfig "github.com/goran-ethernal/ChainSyncer/pkg/config"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// LoadEnvFile loads variables from a .env file into the process environment.
// Variables that are already set are not overridden.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}

	return nil
}

// LoadFromFile loads configuration from a file, auto-detecting the format by extension.
// Supported formats: .yaml, .yml, .json, .toml
func LoadFromFile(path string) (*pkgconfig.Config, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		return LoadFromYAML(path)
	case ".json":
		return LoadFromJSON(path)
	case ".toml":
		return LoadFromTOML(path)
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json, .toml)", ext)
	}
}

// LoadFromYAML loads configuration from a YAML file.
func LoadFromYAML(path string) (*pkgconfig.Config, error) {
	data, err := readWithEnv(path)
	if err != nil {
		return nil, err
	}

	var cfg pkgconfig.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return processConfig(&cfg)
}

// LoadFromJSON loads configuration from a JSON file.
func LoadFromJSON(path string) (*pkgconfig.Config, error) {
	data, err := readWithEnv(path)
	if err != nil {
		return nil, err
	}

	var cfg pkgconfig.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON config: %w", err)
	}

	return processConfig(&cfg)
}

// LoadFromTOML loads configuration from a TOML file.
func LoadFromTOML(path string) (*pkgconfig.Config, error) {
	data, err := readWithEnv(path)
	if err != nil {
		return nil, err
	}

	var cfg pkgconfig.Config
	if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	return processConfig(&cfg)
}

func readWithEnv(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return SubstituteEnv(data)
}

// SubstituteEnv replaces ${VAR} and ${VAR:-default} references with environment values.
// A reference to an unset variable without a default is an error.
func SubstituteEnv(data []byte) ([]byte, error) {
	var missing []string

	out := envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := envPattern.FindSubmatch(match)
		name := string(groups[1])

		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		if bytes.Contains(match, []byte(":-")) {
			return groups[2]
		}

		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("environment variables are not set: %s", strings.Join(missing, ", "))
	}

	return out, nil
}

// processConfig resolves templates, applies defaults and validates the configuration.
func processConfig(cfg *pkgconfig.Config) (*pkgconfig.Config, error) {
	if err := ResolveTemplates(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ResolveTemplates replaces every index referencing a template with a copy of the template
// where each <key> placeholder is substituted by the matching value.
func ResolveTemplates(cfg *pkgconfig.Config) error {
	for _, name := range cfg.IndexNames() {
		idx := cfg.Indexes[name]
		if idx == nil || idx.Template == "" {
			continue
		}

		tmpl, ok := cfg.Templates[idx.Template]
		if !ok {
			return fmt.Errorf("index %s: unknown template '%s'", name, idx.Template)
		}

		resolved, err := resolveTemplate(tmpl, idx.Values)
		if err != nil {
			return fmt.Errorf("index %s: %w", name, err)
		}

		resolved.Template = idx.Template
		resolved.Values = idx.Values
		cfg.Indexes[name] = resolved
	}

	return nil
}

func resolveTemplate(tmpl *pkgconfig.IndexConfig, values map[string]string) (*pkgconfig.IndexConfig, error) {
	raw, err := yaml.Marshal(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to encode template: %w", err)
	}

	text := string(raw)
	for key, value := range values {
		text = strings.ReplaceAll(text, "<"+key+">", value)
	}

	if start := strings.Index(text, "<"); start >= 0 {
		if end := strings.Index(text[start:], ">"); end > 0 {
			return nil, fmt.Errorf("template placeholder %s has no value", text[start:start+end+1])
		}
	}

	var resolved pkgconfig.IndexConfig
	if err := yaml.Unmarshal([]byte(text), &resolved); err != nil {
		return nil, fmt.Errorf("failed to decode resolved template: %w", err)
	}

	return &resolved, nil
}

// ConfigHash returns a stable hash of an index configuration together with the contracts it references.
// A stored index with a different hash was created from a different configuration.
func ConfigHash(cfg *pkgconfig.Config, name string) (string, error) {
	idx, ok := cfg.Indexes[name]
	if !ok {
		return "", fmt.Errorf("unknown index '%s'", name)
	}

	contracts := make(map[string]*pkgconfig.ContractConfig)
	for _, alias := range referencedContracts(idx) {
		if c, ok := cfg.Contracts[alias]; ok {
			contracts[alias] = c
		}
	}

	payload, err := json.Marshal(struct {
		Index     *pkgconfig.IndexConfig                `json:"index"`
		Contracts map[string]*pkgconfig.ContractConfig `json:"contracts"`
	}{idx, contracts})
	if err != nil {
		return "", fmt.Errorf("failed to encode index config: %w", err)
	}

	sum := blake2b.Sum256(payload)

	return hex.EncodeToString(sum[:]), nil
}

func referencedContracts(idx *pkgconfig.IndexConfig) []string {
	aliases := slices.Clone(idx.Contracts)
	for _, h := range idx.Handlers {
		aliases = append(aliases, h.Contract, h.From, h.To)
		for _, p := range h.Pattern {
			aliases = append(aliases, p.Source, p.Destination, p.OriginatedContract)
		}
	}

	return slices.DeleteFunc(aliases, func(s string) bool { return s == "" })
}
