package am

import "github.com/teranos/flowcanvas/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.CursorRateHz < 0 {
		return errors.Newf("server.cursor_rate_hz must be >= 0, got %d", c.Server.CursorRateHz)
	}

	if c.Editor.HitTolerance <= 0 {
		return errors.Newf("editor.hit_tolerance must be > 0, got %g", c.Editor.HitTolerance)
	}
	if c.Editor.MaxControlOffset < 0 {
		return errors.Newf("editor.max_control_offset must be >= 0, got %g", c.Editor.MaxControlOffset)
	}
	if c.Editor.PortRadius <= 0 {
		return errors.Newf("editor.port_radius must be > 0, got %g", c.Editor.PortRadius)
	}
	// 0 = recompute geometry immediately
	if c.Editor.GeometryDebounceMS < 0 {
		return errors.Newf("editor.geometry_debounce_ms must be >= 0, got %d", c.Editor.GeometryDebounceMS)
	}
	if c.Editor.RunDurationMS < 0 {
		return errors.Newf("editor.run_duration_ms must be >= 0, got %d", c.Editor.RunDurationMS)
	}

	if c.Templates.Watch && c.Templates.Dir == "" {
		return errors.New("templates.watch requires templates.dir")
	}

	return nil
}
