// Package config merges command-line flags, LOGBENCH_* environment variables
// and an optional config file into a validated run configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/weiihann/logbench/backend"
	"github.com/weiihann/logbench/harness"
	"github.com/weiihann/logbench/workload"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "LOGBENCH"

// Config is the full configuration of a benchmark run.
type Config struct {
	Backends []string `mapstructure:"backends" validate:"required,min=1,dive,required"`
	Trials   int      `mapstructure:"trials" validate:"gte=1"`

	Threads               int           `mapstructure:"threads" validate:"gt=0"`
	Mode                  string        `mapstructure:"mode" validate:"oneof=duration iterations"`
	Warmup                time.Duration `mapstructure:"warmup" validate:"gte=0"`
	Measurement           time.Duration `mapstructure:"measurement" validate:"gte=0"`
	WarmupIterations      int64         `mapstructure:"warmup-iterations" validate:"gte=0"`
	MeasurementIterations int64         `mapstructure:"measurement-iterations" validate:"gte=0"`
	CPUTokens             int64         `mapstructure:"cpu-tokens" validate:"gte=0"`
	IOBlockMicros         int64         `mapstructure:"io-block-micros" validate:"gte=0"`
	Template              string        `mapstructure:"template" validate:"required"`
	GracePeriod           time.Duration `mapstructure:"grace-period" validate:"gt=0"`
	ShutdownTimeout       time.Duration `mapstructure:"shutdown-timeout" validate:"gt=0"`

	Output        string        `mapstructure:"output" validate:"required"`
	MaxFileSizeMB int           `mapstructure:"max-file-size-mb" validate:"gte=0"`
	BufferSize    int           `mapstructure:"buffer-size" validate:"gte=0"`
	FlushInterval time.Duration `mapstructure:"flush-interval" validate:"gte=0"`
	QueueSize     int           `mapstructure:"queue-size" validate:"gte=0"`
	PollInterval  time.Duration `mapstructure:"poll-interval" validate:"gte=0"`

	Format      string `mapstructure:"format" validate:"oneof=markdown table json"`
	MetricsFile string `mapstructure:"metrics-file"`
}

// Default returns the reference configuration: every known backend, 100
// threads and the default trial shape.
func Default() Config {
	trial := harness.DefaultTrialConfig()
	opts := backend.DefaultOptions()

	return Config{
		Backends:              backend.Known(),
		Trials:                1,
		Threads:               trial.Threads,
		Mode:                  string(trial.Mode),
		Warmup:                trial.Warmup,
		Measurement:           trial.Measurement,
		WarmupIterations:      trial.WarmupIterations,
		MeasurementIterations: trial.MeasurementIterations,
		CPUTokens:             trial.Workload.CPUTokens,
		IOBlockMicros:         trial.Workload.IOBlockMicros,
		Template:              trial.Template,
		GracePeriod:           trial.GracePeriod,
		ShutdownTimeout:       10 * time.Second,
		Output:                opts.Output,
		MaxFileSizeMB:         opts.MaxFileSizeMB,
		BufferSize:            opts.BufferSize,
		FlushInterval:         opts.FlushInterval,
		QueueSize:             opts.QueueSize,
		PollInterval:          opts.PollInterval,
		Format:                "markdown",
	}
}

// RegisterFlags adds one flag per Config field, defaulting to Default().
func RegisterFlags(flags *pflag.FlagSet) {
	def := Default()

	flags.StringSlice("backends", def.Backends,
		"Backends to benchmark, in run order")
	flags.Int("trials", def.Trials,
		"Trials recorded per backend")
	flags.Int("threads", def.Threads,
		"Concurrent workers per trial")
	flags.String("mode", def.Mode,
		"Phase stop condition: duration or iterations")
	flags.Duration("warmup", def.Warmup,
		"Warmup phase length (duration mode)")
	flags.Duration("measurement", def.Measurement,
		"Measurement phase length (duration mode)")
	flags.Int64("warmup-iterations", def.WarmupIterations,
		"Warmup operations (iterations mode)")
	flags.Int64("measurement-iterations", def.MeasurementIterations,
		"Measured operations (iterations mode)")
	flags.Int64("cpu-tokens", def.CPUTokens,
		"CPU busy-work tokens per operation (0 disables)")
	flags.Int64("io-block-micros", def.IOBlockMicros,
		"Simulated IO block per operation in microseconds (0 disables)")
	flags.String("template", def.Template,
		"Log message template with one %d placeholder")
	flags.Duration("grace-period", def.GracePeriod,
		"How long to wait for workers after a phase stops")
	flags.Duration("shutdown-timeout", def.ShutdownTimeout,
		"Deadline for each backend shutdown")
	flags.String("output", def.Output,
		"Backend sink: discard, stdout, stderr or a file path")
	flags.Int("max-file-size-mb", def.MaxFileSizeMB,
		"Rotation size for file sinks")
	flags.Int("buffer-size", def.BufferSize,
		"zap-buffered write buffer in bytes")
	flags.Duration("flush-interval", def.FlushInterval,
		"zap-buffered background flush interval")
	flags.Int("queue-size", def.QueueSize,
		"zerolog-diode ring buffer capacity")
	flags.Duration("poll-interval", def.PollInterval,
		"zerolog-diode poll interval")
	flags.String("format", def.Format,
		"Report format: markdown, table or json")
	flags.String("metrics-file", def.MetricsFile,
		"Write Prometheus metrics to this textfile after the run")
}

// Load builds a Config from v. Flags must already be bound; configFile, when
// non-empty, is read before unmarshalling.
func Load(v *viper.Viper, configFile string) (Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	// Every key is bound through its flag default, so decoding starts from
	// zero. Decoding onto Default() would merge slices element by element.
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and the trial invariants.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", ErrInvalid, describe(verrs))
		}

		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	known := make(map[string]bool)
	for _, name := range backend.Known() {
		known[name] = true
	}

	for _, name := range c.Backends {
		if !known[name] {
			return fmt.Errorf("%w: unknown backend %q (known: %s)",
				ErrInvalid, name, strings.Join(backend.Known(), ", "))
		}
	}

	if err := c.Trial().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	return nil
}

func describe(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))

	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s has invalid value %v: %s",
				fe.Field(), fe.Value(), fe.Tag()))
		}
	}

	return strings.Join(msgs, "; ")
}

// Trial returns the per-trial configuration.
func (c Config) Trial() harness.TrialConfig {
	return harness.TrialConfig{
		Threads:               c.Threads,
		Mode:                  harness.Mode(c.Mode),
		Warmup:                c.Warmup,
		Measurement:           c.Measurement,
		WarmupIterations:      c.WarmupIterations,
		MeasurementIterations: c.MeasurementIterations,
		Workload: workload.Spec{
			CPUTokens:     c.CPUTokens,
			IOBlockMicros: c.IOBlockMicros,
		},
		Template:    c.Template,
		GracePeriod: c.GracePeriod,
	}
}

// BackendOptions returns the options passed to every backend constructor.
func (c Config) BackendOptions() backend.Options {
	return backend.Options{
		Output:        c.Output,
		MaxFileSizeMB: c.MaxFileSizeMB,
		BufferSize:    c.BufferSize,
		FlushInterval: c.FlushInterval,
		QueueSize:     c.QueueSize,
		PollInterval:  c.PollInterval,
	}
}
