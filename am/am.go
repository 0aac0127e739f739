package am

import (
	"fmt"
	"time"
)

// Config represents the flowcanvas configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" json:"database" yaml:"database" toml:"database"`
	Server    ServerConfig    `mapstructure:"server" json:"server" yaml:"server" toml:"server"`
	Editor    EditorConfig    `mapstructure:"editor" json:"editor" yaml:"editor" toml:"editor"`
	Templates TemplatesConfig `mapstructure:"templates" json:"templates" yaml:"templates" toml:"templates"`
}

// DatabaseConfig configures the SQLite database holding saved graphs
type DatabaseConfig struct {
	Path string `mapstructure:"path" json:"path" yaml:"path" toml:"path"`
}

// ServerConfig configures the editor HTTP/WebSocket server
type ServerConfig struct {
	Port           int      `mapstructure:"port" json:"port" yaml:"port" toml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	// Rubber-band cursor broadcasts per second (0 = unthrottled)
	CursorRateHz int `mapstructure:"cursor_rate_hz" json:"cursor_rate_hz" yaml:"cursor_rate_hz" toml:"cursor_rate_hz"`
}

// EditorConfig tunes interaction geometry and the simulated run
type EditorConfig struct {
	HitTolerance       float64 `mapstructure:"hit_tolerance" json:"hit_tolerance" yaml:"hit_tolerance" toml:"hit_tolerance"`                      // connection hit band width
	MaxControlOffset   float64 `mapstructure:"max_control_offset" json:"max_control_offset" yaml:"max_control_offset" toml:"max_control_offset"` // bezier control offset cap
	PortRadius         float64 `mapstructure:"port_radius" json:"port_radius" yaml:"port_radius" toml:"port_radius"`
	GeometryDebounceMS int     `mapstructure:"geometry_debounce_ms" json:"geometry_debounce_ms" yaml:"geometry_debounce_ms" toml:"geometry_debounce_ms"`
	RunDurationMS      int     `mapstructure:"run_duration_ms" json:"run_duration_ms" yaml:"run_duration_ms" toml:"run_duration_ms"`
}

// TemplatesConfig points at an optional directory of template library files
type TemplatesConfig struct {
	Dir   string `mapstructure:"dir" json:"dir" yaml:"dir" toml:"dir"`
	Watch bool   `mapstructure:"watch" json:"watch" yaml:"watch" toml:"watch"`
}

// Defaults
const (
	DefaultServerPort         = 8787
	DefaultDatabasePath       = "flowcanvas.db"
	DefaultHitTolerance       = 20.0
	DefaultMaxControlOffset   = 100.0
	DefaultPortRadius         = 8.0
	DefaultGeometryDebounceMS = 50
	DefaultRunDurationMS      = 3000
	DefaultCursorRateHz       = 30
)

// GeometryDebounce returns the port-geometry recompute delay
func (c *Config) GeometryDebounce() time.Duration {
	return time.Duration(c.Editor.GeometryDebounceMS) * time.Millisecond
}

// RunDuration returns how long a simulated run lasts
func (c *Config) RunDuration() time.Duration {
	return time.Duration(c.Editor.RunDurationMS) * time.Millisecond
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath
	}
	return c.Database.Path
}

// GetServerAllowedOrigins returns the allowed WebSocket origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return defaultAllowedOrigins()
	}
	return c.Server.AllowedOrigins
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Server: {Port: %d}, Templates: {Dir: %s}}",
		c.Database.Path, c.Server.Port, c.Templates.Dir)
}
