package runtime

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Config is the host configuration shared by the CLI and the HTTP server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Workflows WorkflowsConfig `yaml:"workflows"`
	Log       LogConfig       `yaml:"log"`
	Actions   ActionsConfig   `yaml:"actions"`
}

type ServerConfig struct {
	Addr       string        `yaml:"addr" default:":8080" validate:"required,listen_addr"`
	RunTimeout time.Duration `yaml:"run_timeout" default:"30s" validate:"gt=0"`
}

type WorkflowsConfig struct {
	// Source is a directory path or a bucket URL (file://, mem://).
	Source      string `yaml:"source" default:"./workflows" validate:"required,bucket_url"`
	Prefix      string `yaml:"prefix"`
	Concurrency int    `yaml:"concurrency" default:"4" validate:"gte=1,lte=64"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

// ActionsConfig holds the raw settings for host-provided action handlers.
// Each entry is decoded by the action package that owns it.
type ActionsConfig struct {
	HTTP     map[string]any `yaml:"http"`
	Postgres map[string]any `yaml:"postgres"`
}

// SlogLevel maps the configured level onto slog.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Package-level validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	registerCustomValidators()
}

// InitializeConfig prepares config in one call: defaults from struct tags,
// then rawValues merged on top, then validation of the result.
func InitializeConfig(config any, rawValues map[string]any) error {
	if err := ApplyDefaults(config); err != nil {
		slog.Error("Config: failed to apply defaults",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("failed to apply defaults: %w", err)
	}

	if len(rawValues) > 0 {
		if err := mapToStructFromYAML(rawValues, config); err != nil {
			slog.Error("Config: failed to apply config values",
				"config_type", reflect.TypeOf(config).String(),
				"error", err)
			return fmt.Errorf("failed to apply config values: %w", err)
		}
	}

	configValue := reflect.ValueOf(config)
	if configValue.Kind() == reflect.Ptr {
		configValue = configValue.Elem()
	}

	if err := validateConfig(configValue.Interface()); err != nil {
		slog.Error("Config validation failed",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

func registerCustomValidators() {
	// listen_addr validates "host:port" with a numeric or named port; the
	// host may be empty (":8080")
	validate.RegisterValidation("listen_addr", func(fl validator.FieldLevel) bool {
		_, port, err := net.SplitHostPort(fl.Field().String())
		if err != nil || port == "" {
			return false
		}
		_, err = net.LookupPort("tcp", port)
		return err == nil
	})

	validate.RegisterValidation("url_format", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	})

	// bucket_url accepts a plain directory path or a URL with a scheme.
	// Host is not required: file:///abs/path and mem:// are both valid.
	validate.RegisterValidation("bucket_url", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if !strings.Contains(s, "://") {
			return strings.TrimSpace(s) != ""
		}
		u, err := url.Parse(s)
		return err == nil && u.Scheme != ""
	})
}

func ApplyDefaults(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := defaults.Set(config); err != nil {
		return fmt.Errorf("failed to apply default values: %w", err)
	}

	return nil
}

func validateConfig(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validate.Struct(config); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, fieldErr := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"field '%s' failed validation: %s (rule: %s)",
					fieldErr.Field(),
					fieldErr.Error(),
					fieldErr.Tag(),
				))
			}
			return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errMessages, "\n  - "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// RegisterCustomValidator adds a rule for configs owned by other packages.
func RegisterCustomValidator(tag string, fn validator.Func) error {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		return fmt.Errorf("failed to register custom validator '%s': %w", tag, err)
	}
	return nil
}
