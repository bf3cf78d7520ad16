package database

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Isolation levels accepted by the isolation_level option.
const (
	IsolationDeferred  = "DEFERRED"
	IsolationImmediate = "IMMEDIATE"
	IsolationExclusive = "EXCLUSIVE"
)

// MemoryLocation opens a private in-memory database.
const MemoryLocation = ":memory:"

const defaultTimeout = 5 * time.Second

var journalModes = []string{"DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF"}

// Options are the recognised connection options. They are decoded from the
// map given to Open; keys follow the mapstructure tags below.
type Options struct {
	// Timeout is how long the engine, and a transaction waiting on another
	// Connection to the same file, wait on a locked database before
	// failing. Accepts a duration string ("2s") or a number of seconds.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`

	// IsolationLevel is the BEGIN mode of implicit transactions.
	IsolationLevel string `mapstructure:"isolation_level" json:"isolation_level"`

	// CheckSameThread makes overlapping calls on one Connection fail with
	// ErrConcurrentUse instead of waiting for each other.
	CheckSameThread bool `mapstructure:"check_same_thread" json:"check_same_thread"`

	// DetectTypes converts DECIMAL and NUMERIC declared columns to decimal.Decimal.
	DetectTypes bool `mapstructure:"detect_types" json:"detect_types"`

	// URI treats the location as a "file:" URI.
	URI bool `mapstructure:"uri" json:"uri"`

	EnsureFolder bool   `mapstructure:"ensure_folder" json:"ensure_folder"`
	ForeignKeys  bool   `mapstructure:"foreign_keys" json:"foreign_keys"`
	JournalMode  string `mapstructure:"journal_mode" json:"journal_mode"`
	Driver       string `mapstructure:"driver" json:"driver"`
}

// DefaultOptions returns the options used for keys absent from the map.
func DefaultOptions() Options {
	return Options{
		Timeout:         defaultTimeout,
		IsolationLevel:  IsolationDeferred,
		CheckSameThread: true,
		DetectTypes:     true,
		Driver:          defaultDriver,
	}
}

// ParseOptions decodes and validates an option map. Unknown keys and values
// of the wrong shape are configuration errors.
func ParseOptions(raw map[string]any) (Options, error) {
	opts := DefaultOptions()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(durationSecondsHook),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return Options{}, newError(KindConfiguration, "create option decoder", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Options{}, newError(KindConfiguration, "decode options", err)
	}

	if err := opts.validate(); err != nil {
		return Options{}, newError(KindConfiguration, "validate options", err)
	}
	return opts, nil
}

func (o *Options) validate() error {
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", o.Timeout)
	}

	o.IsolationLevel = strings.ToUpper(strings.TrimSpace(o.IsolationLevel))
	switch o.IsolationLevel {
	case "":
		o.IsolationLevel = IsolationDeferred
	case IsolationDeferred, IsolationImmediate, IsolationExclusive:
	default:
		return fmt.Errorf("isolation_level must be one of %s, %s, %s; got %q",
			IsolationDeferred, IsolationImmediate, IsolationExclusive, o.IsolationLevel)
	}

	if o.JournalMode != "" {
		o.JournalMode = strings.ToUpper(strings.TrimSpace(o.JournalMode))
		valid := false
		for _, mode := range journalModes {
			if mode == o.JournalMode {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("journal_mode must be one of %s; got %q", strings.Join(journalModes, ", "), o.JournalMode)
		}
	}

	if o.Driver == "" {
		o.Driver = defaultDriver
	}
	if _, ok := dialects[o.Driver]; !ok {
		return fmt.Errorf("driver %q is not available (available: %s)", o.Driver, strings.Join(availableDrivers(), ", "))
	}
	return nil
}

// durationSecondsHook lets timeout be given as a duration string, a
// time.Duration or a plain number of seconds.
func durationSecondsHook(_, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}

	switch v := data.(type) {
	case time.Duration:
		return v, nil
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d, nil
		}
		secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q", v)
		}
		return seconds(secs), nil
	case int:
		return seconds(float64(v)), nil
	case int32:
		return seconds(float64(v)), nil
	case int64:
		return seconds(float64(v)), nil
	case uint:
		return seconds(float64(v)), nil
	case float32:
		return seconds(float64(v)), nil
	case float64:
		return seconds(v), nil
	}
	return data, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
