package agentconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the agent's YAML configuration file.
type Config struct {
	NodeID  string        `yaml:"node_id"`
	Reactor ReactorConfig `yaml:"reactor"`
	Ports   PortsConfig   `yaml:"ports"`
	Exec    ExecConfig    `yaml:"executions"`
	Model   ModelConfig   `yaml:"model"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ReactorConfig controls the timed-refresh fallback period.
type ReactorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// PortRange is the inclusive dynamic port allocation range.
type PortRange struct {
	Lo int `yaml:"lo"`
	Hi int `yaml:"hi"`
}

// PortsConfig configures the dynamic allocator.
type PortsConfig struct {
	Range PortRange `yaml:"range"`
}

// ExecConfig configures where the Execution set is persisted.
type ExecConfig struct {
	Path string `yaml:"path"`
}

// TLSConfig points at the mTLS material for dialing the control plane.
type TLSConfig struct {
	CertDir string `yaml:"cert_dir"`
}

// ModelConfig configures the control-plane connection.
type ModelConfig struct {
	Address string    `yaml:"address"`
	TLS     TLSConfig `yaml:"tls"`
}

// RuntimeConfig configures the container runtime backend.
type RuntimeConfig struct {
	ContainerdSocket string `yaml:"containerd_socket"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig configures the Prometheus HTTP endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

const (
	// DefaultReactorInterval mirrors agent.DefaultReactorInterval so a
	// config file may omit reactor.interval entirely.
	DefaultReactorInterval = 30 * time.Second
	// DefaultPortLo and DefaultPortHi bound the conventional ephemeral
	// service range.
	DefaultPortLo = 30000
	DefaultPortHi = 32767
	// DefaultExecutionsPath is where the bbolt-backed cell lives absent
	// an override.
	DefaultExecutionsPath = "/var/lib/warren-agent/executions.db"
	// DefaultContainerdSocket is containerd's conventional socket path.
	DefaultContainerdSocket = "/run/containerd/containerd.sock"
	// DefaultMetricsListenAddr exposes Prometheus on the conventional
	// node-exporter-adjacent port.
	DefaultMetricsListenAddr = ":9102"
	// DefaultLogLevel is used when log.level is unset.
	DefaultLogLevel = "info"
)

// Load reads and parses the YAML file at path, then fills unset fields with
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agentconfig: read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("agentconfig: parse %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agentconfig: %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Reactor.Interval <= 0 {
		c.Reactor.Interval = DefaultReactorInterval
	}
	if c.Ports.Range.Lo == 0 {
		c.Ports.Range.Lo = DefaultPortLo
	}
	if c.Ports.Range.Hi == 0 {
		c.Ports.Range.Hi = DefaultPortHi
	}
	if c.Exec.Path == "" {
		c.Exec.Path = DefaultExecutionsPath
	}
	if c.Runtime.ContainerdSocket == "" {
		c.Runtime.ContainerdSocket = DefaultContainerdSocket
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = DefaultMetricsListenAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Validate reports configuration errors Load's defaulting can't paper over.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	if c.Ports.Range.Lo <= 0 || c.Ports.Range.Hi < c.Ports.Range.Lo {
		return fmt.Errorf("ports.range is invalid: lo=%d hi=%d", c.Ports.Range.Lo, c.Ports.Range.Hi)
	}
	if c.Model.Address != "" && c.Model.TLS.CertDir == "" {
		return fmt.Errorf("model.tls.cert_dir is required when model.address is set")
	}
	return nil
}
