package master

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-ecat/ecat"
	"github.com/arloliu/go-ecat/logger"
)

// IOMapSize is the capacity of the process image buffer.
const IOMapSize = 4096

// ErrConfigNil indicates that a nil Config was provided.
var ErrConfigNil = errors.New("master config is nil")

// StateChangeHandler is invoked after the master state changed.
//
// Note: the handler is invoked in blocking mode from the goroutine that performed the
// transition. Take care with long-running implementations.
type StateChangeHandler func(m *Master, prevState ecat.State, newState ecat.State)

// RecoveredHandler is invoked by the health monitor when every device of group
// returned to the Operational state.
//
// It is only invoked after a pass that found at least one device outside Operational.
// A working counter deficit while every device reports Operational does not invoke it.
type RecoveredHandler func(m *Master, group uint8)

// Config represents the configuration of a master session.
type Config struct {
	// group is the process data group supervised by the health monitor.
	// Defaults to 0.
	group uint8

	// byteAlignment maps the process image byte-aligned (true) or bit-packed (false).
	// Defaults to true.
	byteAlignment bool

	// useConfigTable makes discovery use the engine's configuration table.
	// Defaults to false.
	useConfigTable bool

	// transitionBudget is the number of poll iterations a state transition may take.
	// It should be between 1 and 10000. Defaults to 200.
	transitionBudget int

	// receiveTimeout bounds the receive part of one process data exchange.
	// It should be between 100µs and 1 second. Defaults to 2ms.
	receiveTimeout time.Duration

	// stateCheckTimeout bounds each state check of the Init, Pre-Operational and Operational
	// transitions. It should be between 1ms and 10 seconds. Defaults to 50ms.
	stateCheckTimeout time.Duration

	// safeOpTimeout bounds each state check of the Safe-Operational transition.
	// It should be between 1ms and 60 seconds. Defaults to 8 seconds.
	safeOpTimeout time.Duration

	// recoveryTimeout bounds device reconfiguration and recovery in the health monitor.
	// It should be between 100µs and 10 seconds. Defaults to 500µs.
	recoveryTimeout time.Duration

	// recheckTimeout bounds the state re-check of a device that reports no state.
	// It should be between 100µs and 1 second. Defaults to 2ms.
	recheckTimeout time.Duration

	// monitorInterval is the idle interval between health monitor evaluations.
	// It should be between 1ms and 1 hour. Defaults to 10ms.
	monitorInterval time.Duration

	// closeTimeout bounds the wait for the health monitor to terminate on shutdown.
	// It should be between 10ms and 60 seconds. Defaults to 3 seconds.
	closeTimeout time.Duration

	// uniformVerification verifies every device on the Init transition as well.
	// Defaults to false: Init only checks the group state.
	uniformVerification bool

	stateHandlers     []StateChangeHandler
	recoveredHandlers []RecoveredHandler

	// logger provides a logger instance for lifecycle and recovery events.
	logger logger.Logger
}

// NewConfig creates a master configuration with default values, then applies opts.
//
// Returns the configuration and an error if any option is invalid.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		group:             0,
		byteAlignment:     true,
		useConfigTable:    false,
		transitionBudget:  200,
		receiveTimeout:    2 * time.Millisecond,
		stateCheckTimeout: 50 * time.Millisecond,
		safeOpTimeout:     8 * time.Second,
		recoveryTimeout:   500 * time.Microsecond,
		recheckTimeout:    2 * time.Millisecond,
		monitorInterval:   10 * time.Millisecond,
		closeTimeout:      3 * time.Second,
		logger:            logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

func (cfg *Config) Group() uint8 { return cfg.group }

func (cfg *Config) ByteAlignment() bool { return cfg.byteAlignment }

func (cfg *Config) TransitionBudget() int { return cfg.transitionBudget }

func (cfg *Config) ReceiveTimeout() time.Duration { return cfg.receiveTimeout }

func (cfg *Config) MonitorInterval() time.Duration { return cfg.monitorInterval }

func (cfg *Config) CloseTimeout() time.Duration { return cfg.closeTimeout }

func (cfg *Config) Logger() logger.Logger { return cfg.logger }

// Option represents a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (o *optFunc) apply(cfg *Config) error {
	if cfg == nil {
		return ErrConfigNil
	}

	return o.applyFunc(cfg)
}

func newOptFunc(name string, f func(*Config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

func durationOpt(name string, val time.Duration, minVal time.Duration, maxVal time.Duration, set func(*Config)) Option {
	return newOptFunc(name, func(cfg *Config) error {
		if val < minVal || val > maxVal {
			return fmt.Errorf("%s: %v is out of range [%v, %v]", name, val, minVal, maxVal)
		}
		set(cfg)

		return nil
	})
}

// WithLogger sets the logger. A nil logger is rejected.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if l == nil {
			return errors.New("WithLogger: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithGroup sets the process data group supervised by the health monitor.
func WithGroup(group uint8) Option {
	return newOptFunc("WithGroup", func(cfg *Config) error {
		cfg.group = group
		return nil
	})
}

// WithByteAlignment selects byte-aligned (true) or bit-packed (false) process image mapping.
func WithByteAlignment(enable bool) Option {
	return newOptFunc("WithByteAlignment", func(cfg *Config) error {
		cfg.byteAlignment = enable
		return nil
	})
}

// WithConfigTable makes device discovery use the engine's configuration table.
func WithConfigTable(enable bool) Option {
	return newOptFunc("WithConfigTable", func(cfg *Config) error {
		cfg.useConfigTable = enable
		return nil
	})
}

// WithTransitionBudget sets the number of poll iterations per state transition, range [1, 10000].
func WithTransitionBudget(n int) Option {
	return newOptFunc("WithTransitionBudget", func(cfg *Config) error {
		if n < 1 || n > 10000 {
			return fmt.Errorf("WithTransitionBudget: %d is out of range [1, 10000]", n)
		}
		cfg.transitionBudget = n

		return nil
	})
}

// WithReceiveTimeout sets the receive timeout of a process data exchange, range [100µs, 1s].
func WithReceiveTimeout(d time.Duration) Option {
	return durationOpt("WithReceiveTimeout", d, 100*time.Microsecond, time.Second,
		func(cfg *Config) { cfg.receiveTimeout = d })
}

// WithStateCheckTimeout sets the per-call state check timeout, range [1ms, 10s].
func WithStateCheckTimeout(d time.Duration) Option {
	return durationOpt("WithStateCheckTimeout", d, time.Millisecond, 10*time.Second,
		func(cfg *Config) { cfg.stateCheckTimeout = d })
}

// WithSafeOpTimeout sets the per-call state check timeout of the Safe-Operational
// transition, range [1ms, 60s].
func WithSafeOpTimeout(d time.Duration) Option {
	return durationOpt("WithSafeOpTimeout", d, time.Millisecond, 60*time.Second,
		func(cfg *Config) { cfg.safeOpTimeout = d })
}

// WithRecoveryTimeout sets the device reconfigure/recover timeout, range [100µs, 10s].
func WithRecoveryTimeout(d time.Duration) Option {
	return durationOpt("WithRecoveryTimeout", d, 100*time.Microsecond, 10*time.Second,
		func(cfg *Config) { cfg.recoveryTimeout = d })
}

// WithRecheckTimeout sets the timeout of the state re-check of a silent device, range [100µs, 1s].
func WithRecheckTimeout(d time.Duration) Option {
	return durationOpt("WithRecheckTimeout", d, 100*time.Microsecond, time.Second,
		func(cfg *Config) { cfg.recheckTimeout = d })
}

// WithMonitorInterval sets the health monitor idle interval, range [1ms, 1h].
func WithMonitorInterval(d time.Duration) Option {
	return durationOpt("WithMonitorInterval", d, time.Millisecond, time.Hour,
		func(cfg *Config) { cfg.monitorInterval = d })
}

// WithCloseTimeout sets how long Shutdown waits for the health monitor, range [10ms, 60s].
func WithCloseTimeout(d time.Duration) Option {
	return durationOpt("WithCloseTimeout", d, 10*time.Millisecond, 60*time.Second,
		func(cfg *Config) { cfg.closeTimeout = d })
}

// WithUniformVerification makes the Init transition verify every device, like the other
// transitions do.
func WithUniformVerification() Option {
	return newOptFunc("WithUniformVerification", func(cfg *Config) error {
		cfg.uniformVerification = true
		return nil
	})
}

// WithStateChangeHandler registers handlers invoked after each master state change.
func WithStateChangeHandler(handlers ...StateChangeHandler) Option {
	return newOptFunc("WithStateChangeHandler", func(cfg *Config) error {
		for _, h := range handlers {
			if h != nil {
				cfg.stateHandlers = append(cfg.stateHandlers, h)
			}
		}

		return nil
	})
}

// WithRecoveredHandler registers handlers invoked when the health monitor saw every
// device of the supervised group return to Operational.
func WithRecoveredHandler(handlers ...RecoveredHandler) Option {
	return newOptFunc("WithRecoveredHandler", func(cfg *Config) error {
		for _, h := range handlers {
			if h != nil {
				cfg.recoveredHandlers = append(cfg.recoveredHandlers, h)
			}
		}

		return nil
	})
}
