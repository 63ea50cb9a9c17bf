package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values used when neither the config file nor the environment set a field.
const (
	DefaultCancelMessage   = "cancel"
	DefaultTimeoutSeconds  = 30
	DefaultTimeoutMessage  = "timeout"
	DefaultHTTPAddr        = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBusBuffer       = 256
	DefaultRateLimit       = 20
)

// Config holds all configuration for the service.
type Config struct {
	Timeout TimeoutConfig `yaml:"timeout"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
	Bus     BusConfig     `yaml:"bus"`
}

// TimeoutConfig is what the timeout node consumes.
type TimeoutConfig struct {
	// CancelMessage is the sentinel that cancels the countdown of a message's topic.
	CancelMessage string `yaml:"cancel_message" validate:"required"`

	// DefaultTimeout in seconds, used when a message carries no numeric timeout.
	// The upper bound keeps the value representable as a time.Duration.
	DefaultTimeout int `yaml:"default_timeout" validate:"gte=0,lte=9223372036"`

	// TimeoutMessage is the payload of every timeout-fired event.
	TimeoutMessage string `yaml:"timeout_message"`

	// Qualifier selects timeout[qualifier] from an inbound message. Optional.
	Qualifier string `yaml:"qualifier"`

	// Debug publishes trace lines for register, cancel and fire.
	Debug bool `yaml:"debug"`

	// ForwardMatchedCancel also forwards cancel messages that stopped a countdown.
	ForwardMatchedCancel bool `yaml:"forward_matched_cancel"`
}

// DefaultDuration returns DefaultTimeout as a time.Duration.
func (c TimeoutConfig) DefaultDuration() time.Duration {
	return time.Duration(c.DefaultTimeout) * time.Second
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`

	// RateLimit is the allowed /api requests per second per client IP. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Format string `yaml:"format" validate:"oneof=text json"`
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
}

// BusConfig tunes the in-memory message bus.
type BusConfig struct {
	BufferSize int64 `yaml:"buffer_size" validate:"gt=0"`
	Debug      bool  `yaml:"debug"`
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	return &Config{
		Timeout: TimeoutConfig{
			CancelMessage:  DefaultCancelMessage,
			DefaultTimeout: DefaultTimeoutSeconds,
			TimeoutMessage: DefaultTimeoutMessage,
		},
		HTTP: HTTPConfig{
			Addr:            DefaultHTTPAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
			RateLimit:       DefaultRateLimit,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Bus: BusConfig{
			BufferSize: DefaultBusBuffer,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then .env and environment variables, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
		slog.Debug("No .env file found, relying on environment variables")
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("CONFTIMEOUT_CANCEL_MESSAGE", &c.Timeout.CancelMessage)
	str("CONFTIMEOUT_TIMEOUT_MESSAGE", &c.Timeout.TimeoutMessage)
	str("CONFTIMEOUT_QUALIFIER", &c.Timeout.Qualifier)
	boolean("CONFTIMEOUT_DEBUG", &c.Timeout.Debug)
	boolean("CONFTIMEOUT_FORWARD_MATCHED_CANCEL", &c.Timeout.ForwardMatchedCancel)
	if v, ok := lookup("CONFTIMEOUT_DEFAULT_TIMEOUT"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("CONFTIMEOUT_DEFAULT_TIMEOUT: %w", err))
		} else {
			c.Timeout.DefaultTimeout = n
		}
	}

	str("HTTP_ADDR", &c.HTTP.Addr)
	if v, ok := lookup("HTTP_SHUTDOWN_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT: %w", err))
		} else {
			c.HTTP.ShutdownTimeout = d
		}
	}

	if v, ok := lookup("HTTP_RATE_LIMIT"); ok && v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("HTTP_RATE_LIMIT: %w", err))
		} else {
			c.HTTP.RateLimit = f
		}
	}

	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("BUS_BUFFER_SIZE"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("BUS_BUFFER_SIZE: %w", err))
		} else {
			c.Bus.BufferSize = n
		}
	}
	boolean("BUS_DEBUG", &c.Bus.Debug)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s: %w", strings.Join(msgs, "; "), err)
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
