package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Known servers, usually filled in by discovery
	Servers []Server `yaml:"servers"`

	// Preferred server name; empty means first known server
	PreferredServer string `yaml:"preferred_server,omitempty"`

	// Client identity presented to the server
	Client ClientConfig `yaml:"client"`

	// Playback settings
	Playback PlaybackConfig `yaml:"playback"`

	// Engine lifecycle settings
	Engine EngineConfig `yaml:"engine"`

	// Control surface addresses
	Control ControlConfig `yaml:"control"`
}

// Server represents one audio server endpoint
type Server struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port,omitempty"` // stream port (default: 1704)
}

// ClientConfig represents the identity sent in the handshake
type ClientConfig struct {
	Name     string `yaml:"name"`
	ID       string `yaml:"id,omitempty"` // defaults to hostname
	Instance int    `yaml:"instance"`
}

// PlaybackConfig represents playback settings
type PlaybackConfig struct {
	BufferMs  int  `yaml:"buffer_ms"`
	LatencyMs int  `yaml:"latency_ms"`
	NoAudio   bool `yaml:"no_audio,omitempty"` // render without a device, for headless runs
}

// EngineConfig represents session lifecycle settings
type EngineConfig struct {
	// StopTimeoutMs bounds a session stop before its teardown is detached
	StopTimeoutMs int `yaml:"stop_timeout_ms"`
	// ZombieGraceMs is how long a detached teardown may drain before
	// diagnostics report it as hanging
	ZombieGraceMs int `yaml:"zombie_grace_ms"`
}

// ControlConfig represents the local control surfaces
type ControlConfig struct {
	ListenAddr  string `yaml:"listen_addr"`            // line-protocol control server
	MetricsAddr string `yaml:"metrics_addr,omitempty"` // empty disables the scrape endpoint
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		Servers:         []Server{},
		PreferredServer: "",
		Client: ClientConfig{
			Name:     "snapforged",
			ID:       hostname,
			Instance: 1,
		},
		Playback: PlaybackConfig{
			BufferMs:  1000,
			LatencyMs: 0,
		},
		Engine: EngineConfig{
			StopTimeoutMs: 400,
			ZombieGraceMs: 5000,
		},
		Control: ControlConfig{
			ListenAddr:  "127.0.0.1:1780",
			MetricsAddr: "",
		},
	}
}

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, return default config
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to file
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// AddServer adds a server to the configuration
func (c *Config) AddServer(srv Server) {
	if srv.Port == 0 {
		srv.Port = 1704
	}
	c.Servers = append(c.Servers, srv)

	// If this is the first server, make it preferred
	if len(c.Servers) == 1 {
		c.PreferredServer = srv.Name
	}
}

// GetPreferredServer returns the preferred server, or nil if none set
func (c *Config) GetPreferredServer() *Server {
	if c.PreferredServer != "" {
		return c.GetServer(c.PreferredServer)
	}

	if len(c.Servers) > 0 {
		return &c.Servers[0]
	}
	return nil
}

// GetServer returns a server by name
func (c *Config) GetServer(name string) *Server {
	for i := range c.Servers {
		if c.Servers[i].Name == name {
			return &c.Servers[i]
		}
	}
	return nil
}

// SetPreferredServer sets the preferred server by name
func (c *Config) SetPreferredServer(name string) error {
	if c.GetServer(name) == nil {
		return fmt.Errorf("server not found: %s", name)
	}
	c.PreferredServer = name
	return nil
}

// RemoveServer removes a server by name
func (c *Config) RemoveServer(name string) error {
	for i := range c.Servers {
		if c.Servers[i].Name == name {
			c.Servers = append(c.Servers[:i], c.Servers[i+1:]...)

			if c.PreferredServer == name {
				c.PreferredServer = ""
			}
			return nil
		}
	}
	return fmt.Errorf("server not found: %s", name)
}
