package apistubgen

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/broady/apistub/apistubgen/golang"
)

// ConfigFileName is looked up in the working directory when no config file
// is given explicitly.
const ConfigFileName = "apistub.yaml"

// Config holds the configuration for stub generation. Values come from
// defaults, apistub.yaml, APISTUB_* environment variables and flags, in
// increasing order of precedence.
type Config struct {
	// Packages are the package patterns to analyze, e.g. "./..." or
	// "github.com/myorg/myapp/api".
	Packages []string `mapstructure:"packages" validate:"required,min=1,dive,required"`

	// Dir is the working directory for patterns. Generated paths are
	// relative to it.
	Dir string `mapstructure:"dir"`

	// Output is the file name written into each package directory.
	Output string `mapstructure:"output" validate:"required,endswith=.go,excludesall=/\\"`

	// Tags are extra build tags used while loading packages.
	Tags []string `mapstructure:"tags" validate:"dive,required,excludesall=0x2C"`

	// Check compares generated output with the files on disk instead of
	// writing them.
	Check bool `mapstructure:"check"`

	// Watch regenerates when source files change.
	Watch bool `mapstructure:"watch" validate:"excluded_with=Check"`

	// Debounce delays regeneration after the last change in watch mode.
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=0s"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	// FailOnWarnings turns warning diagnostics into a failed run.
	FailOnWarnings bool `mapstructure:"fail_on_warnings"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Packages: []string{"."},
		Output:   golang.FileName,
		Debounce: 200 * time.Millisecond,
		LogLevel: "info",
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("packages", d.Packages)
	v.SetDefault("dir", d.Dir)
	v.SetDefault("output", d.Output)
	v.SetDefault("tags", []string{})
	v.SetDefault("check", d.Check)
	v.SetDefault("watch", d.Watch)
	v.SetDefault("debounce", d.Debounce)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("fail_on_warnings", d.FailOnWarnings)
}

// LoadConfig reads the configuration. When path is empty, apistub.yaml is
// looked up in dir and a missing file is not an error.
func LoadConfig(path, dir string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("APISTUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		if dir == "" {
			dir = "."
		}
		v.SetConfigName(strings.TrimSuffix(ConfigFileName, ".yaml"))
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Dir == "" {
		cfg.Dir = dir
	}
	return cfg, cfg.Validate()
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}()

// Validate checks the configuration.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		msgs = append(msgs, formatValidationError(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func formatValidationError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "endswith":
		return fmt.Sprintf("%s must end with %s", field, fe.Param())
	case "excludesall":
		return fmt.Sprintf("%s contains a forbidden character", field)
	case "excluded_with":
		return fmt.Sprintf("%s cannot be combined with %s", field, strings.ToLower(fe.Param()))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
