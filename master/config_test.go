package master

import (
	"bytes"
	"testing"
	"time"

	"github.com/arloliu/go-ecat/ecat"
	"github.com/arloliu/go-ecat/logger"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	require := require.New(t)

	t.Run("Defaults", func(t *testing.T) {
		cfg, err := NewConfig()
		require.NoError(err)
		require.Equal(uint8(0), cfg.Group())
		require.True(cfg.ByteAlignment())
		require.False(cfg.useConfigTable)
		require.Equal(200, cfg.TransitionBudget())
		require.Equal(2*time.Millisecond, cfg.ReceiveTimeout())
		require.Equal(50*time.Millisecond, cfg.stateCheckTimeout)
		require.Equal(8*time.Second, cfg.safeOpTimeout)
		require.Equal(500*time.Microsecond, cfg.recoveryTimeout)
		require.Equal(2*time.Millisecond, cfg.recheckTimeout)
		require.Equal(10*time.Millisecond, cfg.MonitorInterval())
		require.Equal(3*time.Second, cfg.CloseTimeout())
		require.False(cfg.uniformVerification)
		require.NotNil(cfg.Logger())
	})

	t.Run("Valid Configuration", func(t *testing.T) {
		l := logger.NewMockLogger()
		cfg, err := NewConfig(
			WithLogger(l),
			WithGroup(1),
			WithByteAlignment(false),
			WithConfigTable(true),
			WithTransitionBudget(10),
			WithReceiveTimeout(time.Millisecond),
			WithStateCheckTimeout(5*time.Millisecond),
			WithSafeOpTimeout(time.Second),
			WithRecoveryTimeout(time.Millisecond),
			WithRecheckTimeout(time.Millisecond),
			WithMonitorInterval(time.Second),
			WithCloseTimeout(time.Second),
			WithUniformVerification(),
		)
		require.NoError(err)
		require.Same(l, cfg.Logger())
		require.Equal(uint8(1), cfg.Group())
		require.False(cfg.ByteAlignment())
		require.True(cfg.useConfigTable)
		require.Equal(10, cfg.TransitionBudget())
		require.Equal(time.Millisecond, cfg.ReceiveTimeout())
		require.Equal(5*time.Millisecond, cfg.stateCheckTimeout)
		require.Equal(time.Second, cfg.safeOpTimeout)
		require.Equal(time.Millisecond, cfg.recoveryTimeout)
		require.Equal(time.Millisecond, cfg.recheckTimeout)
		require.Equal(time.Second, cfg.MonitorInterval())
		require.Equal(time.Second, cfg.CloseTimeout())
		require.True(cfg.uniformVerification)
	})

	t.Run("Invalid Logger", func(t *testing.T) {
		_, err := NewConfig(WithLogger(nil))
		require.EqualError(err, "WithLogger: logger is nil")
	})

	t.Run("Invalid Transition Budget", func(t *testing.T) {
		_, err := NewConfig(WithTransitionBudget(0))
		require.EqualError(err, "WithTransitionBudget: 0 is out of range [1, 10000]")

		_, err = NewConfig(WithTransitionBudget(10001))
		require.EqualError(err, "WithTransitionBudget: 10001 is out of range [1, 10000]")
	})

	t.Run("Invalid Timeouts", func(t *testing.T) {
		_, err := NewConfig(WithReceiveTimeout(time.Microsecond))
		require.EqualError(err, "WithReceiveTimeout: 1µs is out of range [100µs, 1s]")

		_, err = NewConfig(WithStateCheckTimeout(11 * time.Second))
		require.EqualError(err, "WithStateCheckTimeout: 11s is out of range [1ms, 10s]")

		_, err = NewConfig(WithSafeOpTimeout(0))
		require.Error(err)
		_, err = NewConfig(WithRecoveryTimeout(time.Minute))
		require.Error(err)
		_, err = NewConfig(WithRecheckTimeout(0))
		require.Error(err)
		_, err = NewConfig(WithMonitorInterval(0))
		require.Error(err)
		_, err = NewConfig(WithCloseTimeout(time.Millisecond))
		require.Error(err)
	})

	t.Run("Nil Config", func(t *testing.T) {
		err := WithGroup(1).apply(nil)
		require.ErrorIs(err, ErrConfigNil)

		err = WithReceiveTimeout(time.Millisecond).apply(nil)
		require.ErrorIs(err, ErrConfigNil)
	})

	t.Run("Handlers", func(t *testing.T) {
		cfg, err := NewConfig(
			WithStateChangeHandler(nil, func(*Master, ecat.State, ecat.State) {}),
			WithRecoveredHandler(func(*Master, uint8) {}, nil),
		)
		require.NoError(err)
		require.Len(cfg.stateHandlers, 1)
		require.Len(cfg.recoveredHandlers, 1)
	})
}

const testConfigYAML = `
interface: sim0
group: 1
byte_alignment: false
config_table: true
uniform_verification: true
transition_budget: 50
receive_timeout: 1ms
state_check_timeout: 20ms
safe_op_timeout: 2s
recovery_timeout: 1ms
recheck_timeout: 500us
monitor_interval: 5ms
close_timeout: 1s
log:
  level: debug
  format: json
`

func TestConfigFile(t *testing.T) {
	require := require.New(t)

	t.Run("Parse", func(t *testing.T) {
		fc, err := ParseConfig([]byte(testConfigYAML))
		require.NoError(err)
		require.Equal("sim0", fc.Interface)
		require.Equal(uint8(1), fc.Group)
		require.NotNil(fc.ByteAlignment)
		require.False(*fc.ByteAlignment)
		require.Equal(Duration(500*time.Microsecond), fc.RecheckTimeout)
		require.Equal("debug", fc.Log.Level)

		var buf bytes.Buffer
		opts, err := fc.Options(&buf)
		require.NoError(err)

		cfg, err := NewConfig(opts...)
		require.NoError(err)
		require.Equal(uint8(1), cfg.Group())
		require.False(cfg.ByteAlignment())
		require.True(cfg.useConfigTable)
		require.True(cfg.uniformVerification)
		require.Equal(50, cfg.TransitionBudget())
		require.Equal(time.Millisecond, cfg.ReceiveTimeout())
		require.Equal(20*time.Millisecond, cfg.stateCheckTimeout)
		require.Equal(2*time.Second, cfg.safeOpTimeout)
		require.Equal(time.Millisecond, cfg.recoveryTimeout)
		require.Equal(500*time.Microsecond, cfg.recheckTimeout)
		require.Equal(5*time.Millisecond, cfg.MonitorInterval())
		require.Equal(time.Second, cfg.CloseTimeout())

		cfg.Logger().Debug("config loaded")
		require.Contains(buf.String(), `"msg":"config loaded"`)
	})

	t.Run("Defaults Kept", func(t *testing.T) {
		fc, err := ParseConfig([]byte("interface: sim0\n"))
		require.NoError(err)

		opts, err := fc.Options(nil)
		require.NoError(err)

		cfg, err := NewConfig(opts...)
		require.NoError(err)
		require.True(cfg.ByteAlignment())
		require.Equal(200, cfg.TransitionBudget())
		require.Equal(8*time.Second, cfg.safeOpTimeout)
	})

	t.Run("Invalid Duration", func(t *testing.T) {
		_, err := ParseConfig([]byte("receive_timeout: soon\n"))
		require.ErrorContains(err, "line 1")
	})

	t.Run("Invalid Log Settings", func(t *testing.T) {
		fc, err := ParseConfig([]byte("log:\n  level: loud\n"))
		require.NoError(err)
		_, err = fc.Options(nil)
		require.EqualError(err, `invalid log level "loud"`)

		fc, err = ParseConfig([]byte("log:\n  format: xml\n"))
		require.NoError(err)
		_, err = fc.Options(nil)
		require.EqualError(err, `invalid log format "xml"`)
	})

	t.Run("Out Of Range Value", func(t *testing.T) {
		fc, err := ParseConfig([]byte("transition_budget: -1\n"))
		require.NoError(err)

		opts, err := fc.Options(nil)
		require.NoError(err)

		_, err = NewConfig(opts...)
		require.Error(err)
	})

	t.Run("Load Missing File", func(t *testing.T) {
		_, err := LoadConfigFile(t.TempDir() + "/missing.yaml")
		require.ErrorContains(err, "config load failed")
	})
}
