package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models collabhub.yml.
type Config struct {
	Server struct {
		Addr         string        `yaml:"addr"`
		BasePath     string        `yaml:"base_path"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`
	Auth struct {
		TokenTTL time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Cloud struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"cloud"`
	Process struct {
		HookURL string        `yaml:"hook_url"`
		Secret  string        `yaml:"secret"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"process"`
	Policies Policies `yaml:"policies"`
	Metrics  struct {
		TopN int `yaml:"top_n"`
	} `yaml:"metrics"`
}

// Floors for the validation minimums. Config may raise them, never lower them.
const (
	FloorProjectName        = 3
	FloorProjectDescription = 15
	FloorTaskTitle          = 5
	FloorObservation        = 10
)

// Policies holds the validation minimums and workflow switches.
type Policies struct {
	ForceSelfResolveForLocalOnly bool `yaml:"force_self_resolve_for_local_only"`
	MinProjectName               int  `yaml:"min_project_name"`
	MinProjectDescription        int  `yaml:"min_project_description"`
	MinTaskTitle                 int  `yaml:"min_task_title"`
	MinObservation               int  `yaml:"min_observation"`
}

// Load reads and validates config from workspace. A missing file yields the defaults.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config.auth.token_ttl must be positive")
	}
	if c.Cloud.BaseURL != "" {
		u, err := url.Parse(c.Cloud.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config.cloud.base_url must be an absolute url")
		}
	}
	if c.Process.HookURL != "" {
		u, err := url.Parse(c.Process.HookURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config.process.hook_url must be an absolute url")
		}
	}
	if c.Cloud.Timeout < 0 {
		return fmt.Errorf("config.cloud.timeout must not be negative")
	}
	p := c.Policies
	for _, m := range []struct {
		name       string
		value, min int
	}{
		{"min_project_name", p.MinProjectName, FloorProjectName},
		{"min_project_description", p.MinProjectDescription, FloorProjectDescription},
		{"min_task_title", p.MinTaskTitle, FloorTaskTitle},
		{"min_observation", p.MinObservation, FloorObservation},
	} {
		if m.value < m.min {
			return fmt.Errorf("config.policies.%s must be at least %d", m.name, m.min)
		}
	}
	if c.Metrics.TopN < 1 {
		return fmt.Errorf("config.metrics.top_n must be at least 1")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "collabhub.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys absent
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8000
  base_path: ""
  read_timeout: 15s
  write_timeout: 30s

auth:
  token_ttl: 30m

cloud:
  # Deployment that issues cloud tokens. Empty signs them locally.
  base_url: ""
  timeout: 10s

process:
  # Receives workflow steps (project created/advanced, selection,
  # observation sent/accepted) after they commit. Empty disables it.
  hook_url: ""
  secret: ""
  timeout: 5s

policies:
  force_self_resolve_for_local_only: true
  min_project_name: 3
  min_project_description: 15
  min_task_title: 5
  min_observation: 10

metrics:
  top_n: 3
`
