// Package config handles loading and validating Sanduku configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Sanduku.
type Config struct {
	Server        ServerConfig         `json:"server" yaml:"server"`
	Sandbox       SandboxConfig        `json:"sandbox" yaml:"sandbox"`
	Tools         ToolsConfig          `json:"tools" yaml:"tools"`
	Git           GitConfig            `json:"git" yaml:"git"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// ServerConfig configures the MCP transport.
type ServerConfig struct {
	Transport string `json:"transport" yaml:"transport"` // "stdio" (default) or "sse". Override: SANDUKU_TRANSPORT env var.
	SSEHost   string `json:"sse_host" yaml:"sse_host"`   // Default: "127.0.0.1". Override: SSE_HOST env var.
	SSEPort   int    `json:"sse_port" yaml:"sse_port"`   // Default: 8000. Override: SSE_PORT env var.
}

// TransportName returns the configured transport, defaulting to "stdio".
func (s *ServerConfig) TransportName() string {
	if s.Transport != "" {
		return s.Transport
	}
	return "stdio"
}

// SSEAddress returns the host:port the SSE transport binds to.
func (s *ServerConfig) SSEAddress() string {
	host := s.SSEHost
	if host == "" {
		host = "127.0.0.1"
	}
	port := s.SSEPort
	if port == 0 {
		port = 8000
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// SandboxConfig selects and configures the execution backend.
type SandboxConfig struct {
	Mode    string               `json:"mode" yaml:"mode"`                         // "process" (default), "remote", or "docker".
	Process ProcessSandboxConfig `json:"process" yaml:"process"`                   // Local process backend settings.
	Remote  *RemoteSandboxConfig `json:"remote,omitempty" yaml:"remote,omitempty"` // Remote shell backend settings. Also enabled by SANDBOX / SANDBOX_SOCKET env vars.
	Docker  *DockerSandboxConfig `json:"docker,omitempty" yaml:"docker,omitempty"` // Docker backend settings.
}

// BackendMode returns the configured backend, defaulting to "process".
// SANDBOX or SANDBOX_SOCKET in the environment force remote mode.
func (s *SandboxConfig) BackendMode() string {
	if os.Getenv("SANDBOX") != "" || os.Getenv("SANDBOX_SOCKET") != "" {
		return "remote"
	}
	if s.Mode != "" {
		return s.Mode
	}
	return "process"
}

// ProcessSandboxConfig configures local process execution.
type ProcessSandboxConfig struct {
	Isolation       string   `json:"isolation" yaml:"isolation"`                 // "auto" (default), "full", or "limits".
	Shell           string   `json:"shell" yaml:"shell"`                         // Default: /bin/sh.
	DefaultTimeoutS int      `json:"default_timeout_s" yaml:"default_timeout_s"` // Default: 5.
	MaxMemoryMB     int      `json:"max_memory_mb" yaml:"max_memory_mb"`         // Default: 512.
	MaxCPUSeconds   int      `json:"max_cpu_seconds" yaml:"max_cpu_seconds"`     // Default: 60.
	MaxProcesses    int      `json:"max_processes" yaml:"max_processes"`         // Default: 64.
	MaxFileSizeMB   int      `json:"max_file_size_mb" yaml:"max_file_size_mb"`   // Default: 100.
	AllowedEnv      []string `json:"allowed_env" yaml:"allowed_env"`             // Extra env vars passed through by name.
}

// RemoteSandboxConfig configures the persistent remote shell backend.
type RemoteSandboxConfig struct {
	Address      string `json:"address" yaml:"address"`               // host:port. Override: SANDBOX env var.
	SocketPath   string `json:"socket_path" yaml:"socket_path"`       // Unix socket path. Override: SANDBOX_SOCKET env var. Takes precedence over address.
	Prompt       string `json:"prompt" yaml:"prompt"`                 // Shell prompt marker. Default: "$ ".
	SettleMS     int    `json:"settle_ms" yaml:"settle_ms"`           // Delay before reading screen output. Default: 100.
	ScreenLog    string `json:"screen_log" yaml:"screen_log"`         // Hardcopy path for screen sessions.
	DialTimeoutS int    `json:"dial_timeout_s" yaml:"dial_timeout_s"` // Default: 5.
}

// DockerSandboxConfig configures container execution.
type DockerSandboxConfig struct {
	Image           string `json:"image" yaml:"image"`                         // Required when mode is "docker".
	Network         string `json:"network" yaml:"network"`                     // Default: "none".
	MaxMemoryMB     int    `json:"max_memory_mb" yaml:"max_memory_mb"`         // Default: 512.
	CPULimit        string `json:"cpu_limit" yaml:"cpu_limit"`                 // Default: "1.0".
	MaxProcesses    int    `json:"max_processes" yaml:"max_processes"`         // Default: 64.
	DefaultTimeoutS int    `json:"default_timeout_s" yaml:"default_timeout_s"` // Default: 5.
}

// ToolsConfig configures the individual tools.
type ToolsConfig struct {
	Python PythonToolConfig `json:"python" yaml:"python"`
	Web    WebToolConfig    `json:"web" yaml:"web"`
}

// PythonToolConfig configures the python execution tool.
type PythonToolConfig struct {
	Interpreter    string `json:"interpreter" yaml:"interpreter"`           // Default: "python3". Override: SANDBOX_PYTHON env var.
	Linter         string `json:"linter" yaml:"linter"`                     // Default: "ruff". Override: SANDBOX_RUFF env var.
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`   // Default: 5.
}

// WebToolConfig configures the fetch, links, and search tools.
type WebToolConfig struct {
	UserAgent        string   `json:"user_agent" yaml:"user_agent"`                 // Default: browser UA. Override: USER_AGENT env var.
	MaxResponseBytes int64    `json:"max_response_bytes" yaml:"max_response_bytes"` // Default: 5 MB.
	TimeoutSeconds   int      `json:"timeout_seconds" yaml:"timeout_seconds"`       // Default: 10.
	AllowedDomains   []string `json:"allowed_domains" yaml:"allowed_domains"`       // Empty = any public host.
	SearxngURL       string   `json:"searxng_url" yaml:"searxng_url"`               // SearXNG search endpoint. Override: SEARXNG_QUERY_URL env var.
}

// GitConfig configures startup git identity and SSH key provisioning.
// All fields are overridable by environment variables, which take precedence.
type GitConfig struct {
	UserName  string `json:"user_name" yaml:"user_name"`   // Override: GIT_USER_NAME env var.
	UserEmail string `json:"user_email" yaml:"user_email"` // Override: GIT_USER_EMAIL env var.
}

// ObservabilityConfig configures metrics, tracing, and health checks.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Health  *HealthConfig  `json:"health,omitempty" yaml:"health,omitempty"`
	Addr    string         `json:"addr" yaml:"addr"` // Listen address for /metrics and health endpoints. Default: "127.0.0.1:9090".
}

// ListenAddr returns the observability HTTP listen address.
func (o *ObservabilityConfig) ListenAddr() string {
	if o != nil && o.Addr != "" {
		return o.Addr
	}
	return "127.0.0.1:9090"
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "sanduku"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// HealthConfig configures dependency health checks for readiness probes.
type HealthConfig struct {
	IncludeSandbox bool `json:"include_sandbox" yaml:"include_sandbox"`
}

// DefaultConfigPath returns the default config file path (~/.sanduku/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/sanduku.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".sanduku", "config.yaml")
}

// Default returns a usable configuration without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	return cfg
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnv overlays environment variable overrides. Env vars take precedence
// over config file values.
func (c *Config) applyEnv() {
	if env := os.Getenv("SANDUKU_TRANSPORT"); env != "" {
		c.Server.Transport = env
	}
	if env := os.Getenv("SSE_HOST"); env != "" {
		c.Server.SSEHost = env
	}
	if env := os.Getenv("SSE_PORT"); env != "" {
		if port, err := strconv.Atoi(env); err == nil {
			c.Server.SSEPort = port
		}
	}

	// Remote sandbox location. Either variable switches the backend to remote.
	if env := os.Getenv("SANDBOX"); env != "" {
		if c.Sandbox.Remote == nil {
			c.Sandbox.Remote = &RemoteSandboxConfig{}
		}
		c.Sandbox.Remote.Address = env
	}
	if env := os.Getenv("SANDBOX_SOCKET"); env != "" {
		if c.Sandbox.Remote == nil {
			c.Sandbox.Remote = &RemoteSandboxConfig{}
		}
		c.Sandbox.Remote.SocketPath = env
	}

	if env := os.Getenv("SANDBOX_PYTHON"); env != "" {
		c.Tools.Python.Interpreter = env
	}
	if env := os.Getenv("SANDBOX_RUFF"); env != "" {
		c.Tools.Python.Linter = env
	}
	if env := os.Getenv("USER_AGENT"); env != "" {
		c.Tools.Web.UserAgent = env
	}
	if env := os.Getenv("SEARXNG_QUERY_URL"); env != "" {
		c.Tools.Web.SearxngURL = env
	}

	if env := os.Getenv("GIT_USER_NAME"); env != "" {
		c.Git.UserName = env
	}
	if env := os.Getenv("GIT_USER_EMAIL"); env != "" {
		c.Git.UserEmail = env
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// PythonTimeout returns the python tool timeout as a duration.
func (p *PythonToolConfig) PythonTimeout() time.Duration {
	if p.TimeoutSeconds > 0 {
		return time.Duration(p.TimeoutSeconds) * time.Second
	}
	return 5 * time.Second
}

func (c *Config) validate() error {
	switch c.Server.TransportName() {
	case "stdio", "sse":
		// valid
	default:
		return fmt.Errorf("server.transport %q is not supported (use stdio or sse)", c.Server.Transport)
	}
	if c.Server.SSEPort < 0 || c.Server.SSEPort > 65535 {
		return fmt.Errorf("server.sse_port %d is out of range", c.Server.SSEPort)
	}

	switch c.Sandbox.BackendMode() {
	case "process":
		switch c.Sandbox.Process.Isolation {
		case "", "auto", "full", "limits":
			// valid
		default:
			return fmt.Errorf("sandbox.process.isolation %q is not supported (use auto, full, or limits)", c.Sandbox.Process.Isolation)
		}
	case "remote":
		if c.Sandbox.Remote == nil || (c.Sandbox.Remote.Address == "" && c.Sandbox.Remote.SocketPath == "") {
			return fmt.Errorf("sandbox.remote requires address or socket_path (or SANDBOX / SANDBOX_SOCKET env vars)")
		}
	case "docker":
		if c.Sandbox.Docker == nil || c.Sandbox.Docker.Image == "" {
			return fmt.Errorf("sandbox.docker.image is required for docker mode")
		}
	default:
		return fmt.Errorf("sandbox.mode %q is not supported (use process, remote, or docker)", c.Sandbox.Mode)
	}

	if c.Sandbox.Process.MaxMemoryMB < 0 {
		return fmt.Errorf("sandbox.process.max_memory_mb must not be negative")
	}
	if c.Sandbox.Process.DefaultTimeoutS < 0 {
		return fmt.Errorf("sandbox.process.default_timeout_s must not be negative")
	}
	if c.Tools.Python.TimeoutSeconds < 0 {
		return fmt.Errorf("tools.python.timeout_seconds must not be negative")
	}
	if c.Tools.Web.TimeoutSeconds < 0 {
		return fmt.Errorf("tools.web.timeout_seconds must not be negative")
	}
	if c.Tools.Web.MaxResponseBytes < 0 {
		return fmt.Errorf("tools.web.max_response_bytes must not be negative")
	}

	if c.Observability != nil && c.Observability.Tracing != nil && c.Observability.Tracing.Enabled {
		t := c.Observability.Tracing
		if t.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
		switch t.Protocol {
		case "", "grpc", "http":
			// valid
		default:
			return fmt.Errorf("observability.tracing.protocol %q is not supported (use grpc or http)", t.Protocol)
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			return fmt.Errorf("observability.tracing.sample_rate must be between 0.0 and 1.0")
		}
	}

	return nil
}
