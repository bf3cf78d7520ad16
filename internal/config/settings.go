package config

import (
	"strconv"
	"strings"
	"time"
)

// SettingsGetter is an interface for retrieving flattened settings
// ("log.max_size_mb") as strings.
type SettingsGetter interface {
	GetSetting(key string) (string, error)
}

// Loader provides typed access to settings with default values
type Loader struct {
	src SettingsGetter
}

// NewLoader creates a new settings loader. A nil source yields the defaults.
func NewLoader(src SettingsGetter) *Loader {
	return &Loader{src: src}
}

func (l *Loader) get(key string) string {
	if l == nil || l.src == nil {
		return ""
	}
	val, _ := l.src.GetSetting(key)
	return strings.TrimSpace(val)
}

// Int retrieves an integer setting, returning defaultVal if not found or invalid
func (l *Loader) Int(key string, defaultVal int) int {
	if val := l.get(key); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			return v
		}
	}
	return defaultVal
}

// Bool retrieves a boolean setting, returning defaultVal if not found or
// not one of the strconv.ParseBool spellings.
func (l *Loader) Bool(key string, defaultVal bool) bool {
	if val := l.get(key); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			return v
		}
	}
	return defaultVal
}

// String retrieves a string setting, returning defaultVal if not found or empty
func (l *Loader) String(key, defaultVal string) string {
	if val := l.get(key); val != "" {
		return val
	}
	return defaultVal
}

// Duration retrieves a duration setting, returning defaultVal if not found or invalid.
// Accepts Go duration format ("1h30m", "5s") or a plain number of seconds.
func (l *Loader) Duration(key string, defaultVal time.Duration) time.Duration {
	val := l.get(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultVal
}
