package logger

import (
	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify mock implementing Logger.
type MockLogger struct {
	mock.Mock
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// AllowAll registers permissive expectations for every log method and returns m.
func (m *MockLogger) AllowAll() *MockLogger {
	for _, method := range []string{"Debug", "Info", "Warn", "Error", "Fatal"} {
		m.On(method, mock.Anything, mock.Anything).Return().Maybe()
	}
	m.On("With", mock.Anything).Return(m).Maybe()

	return m
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) SetLevel(level Level) {
	m.Called(level)
}

func (m *MockLogger) Level() Level {
	args := m.Called()
	return args.Get(0).(Level)
}

// With records the key-values as one argument so expectations can match any count.
func (m *MockLogger) With(keyValues ...any) Logger {
	args := m.Called(keyValues)
	return args.Get(0).(Logger)
}
