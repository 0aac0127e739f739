package am

import (
	"os"

	"github.com/spf13/viper"
)

// File permission constants
const (
	DefaultDirPermissions  os.FileMode = 0755
	DefaultFilePermissions os.FileMode = 0644
)

func defaultAllowedOrigins() []string {
	return []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	}
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", defaultAllowedOrigins())
	v.SetDefault("server.cursor_rate_hz", DefaultCursorRateHz)

	v.SetDefault("editor.hit_tolerance", DefaultHitTolerance)
	v.SetDefault("editor.max_control_offset", DefaultMaxControlOffset)
	v.SetDefault("editor.port_radius", DefaultPortRadius)
	v.SetDefault("editor.geometry_debounce_ms", DefaultGeometryDebounceMS)
	v.SetDefault("editor.run_duration_ms", DefaultRunDurationMS)

	v.SetDefault("templates.dir", "")
	v.SetDefault("templates.watch", false)
}

// BindSensitiveEnvVars explicitly binds configuration that is commonly overridden per host
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "FLOWCANVAS_DATABASE_PATH")
	v.BindEnv("server.port", "FLOWCANVAS_SERVER_PORT")
	v.BindEnv("templates.dir", "FLOWCANVAS_TEMPLATES_DIR")
}
