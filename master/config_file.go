package master

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/arloliu/go-ecat/logger"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration decoded from a Go duration string such as "500us" or "2s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)

	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// FileConfig is the YAML representation of a master configuration.
// Zero values keep the defaults of NewConfig.
type FileConfig struct {
	Interface           string   `yaml:"interface"`
	Group               uint8    `yaml:"group"`
	ByteAlignment       *bool    `yaml:"byte_alignment"`
	ConfigTable         bool     `yaml:"config_table"`
	UniformVerification bool     `yaml:"uniform_verification"`
	TransitionBudget    int      `yaml:"transition_budget"`
	ReceiveTimeout      Duration `yaml:"receive_timeout"`
	StateCheckTimeout   Duration `yaml:"state_check_timeout"`
	SafeOpTimeout       Duration `yaml:"safe_op_timeout"`
	RecoveryTimeout     Duration `yaml:"recovery_timeout"`
	RecheckTimeout      Duration `yaml:"recheck_timeout"`
	MonitorInterval     Duration `yaml:"monitor_interval"`
	CloseTimeout        Duration `yaml:"close_timeout"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// ParseConfig decodes a YAML configuration document.
func ParseConfig(data []byte) (*FileConfig, error) {
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config parse failed: %w", err)
	}

	return &fc, nil
}

// LoadConfigFile reads and decodes a YAML configuration file.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	fc, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return fc, nil
}

// Options converts the file configuration to options for NewConfig.
// The logger, if configured, writes to w.
func (fc *FileConfig) Options(w io.Writer) ([]Option, error) {
	var opts []Option

	if fc.Log.Level != "" || fc.Log.Format != "" {
		level, ok := logger.ParseLevel(fc.Log.Level)
		if !ok {
			return nil, fmt.Errorf("invalid log level %q", fc.Log.Level)
		}

		var format logger.Format
		switch fc.Log.Format {
		case "", "json":
			format = logger.JSONFormat
		case "console":
			format = logger.ConsoleFormat
		default:
			return nil, fmt.Errorf("invalid log format %q", fc.Log.Format)
		}

		opts = append(opts, WithLogger(logger.NewSlog(w, level, format, false)))
	}

	opts = append(opts, WithGroup(fc.Group), WithConfigTable(fc.ConfigTable))

	if fc.ByteAlignment != nil {
		opts = append(opts, WithByteAlignment(*fc.ByteAlignment))
	}
	if fc.UniformVerification {
		opts = append(opts, WithUniformVerification())
	}
	if fc.TransitionBudget != 0 {
		opts = append(opts, WithTransitionBudget(fc.TransitionBudget))
	}

	durations := []struct {
		val Duration
		opt func(time.Duration) Option
	}{
		{fc.ReceiveTimeout, WithReceiveTimeout},
		{fc.StateCheckTimeout, WithStateCheckTimeout},
		{fc.SafeOpTimeout, WithSafeOpTimeout},
		{fc.RecoveryTimeout, WithRecoveryTimeout},
		{fc.RecheckTimeout, WithRecheckTimeout},
		{fc.MonitorInterval, WithMonitorInterval},
		{fc.CloseTimeout, WithCloseTimeout},
	}
	for _, d := range durations {
		if d.val != 0 {
			opts = append(opts, d.opt(time.Duration(d.val)))
		}
	}

	return opts, nil
}
