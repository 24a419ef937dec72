package testing

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockBillingHooks is a testify mock of the billing lifecycle hooks.
type MockBillingHooks struct {
	mock.Mock
}

// TrackDeploymentStart records the start hook.
func (m *MockBillingHooks) TrackDeploymentStart(ctx context.Context, deploymentID string) error {
	args := m.Called(ctx, deploymentID)
	return args.Error(0)
}

// TrackDeploymentEnd records the end hook.
func (m *MockBillingHooks) TrackDeploymentEnd(ctx context.Context, deploymentID string) error {
	args := m.Called(ctx, deploymentID)
	return args.Error(0)
}

// MockPortProber answers IsPortOpen from a function, counting calls.
type MockPortProber struct {
	// IsPortOpenFunc receives the 1-based call number. Nil means always open.
	IsPortOpenFunc func(ctx context.Context, host string, port int, call int) (bool, error)

	mu    sync.Mutex
	calls int
}

// IsPortOpen implements the port prober interfaces.
func (m *MockPortProber) IsPortOpen(ctx context.Context, host string, port int, _ time.Duration) (bool, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()

	if m.IsPortOpenFunc != nil {
		return m.IsPortOpenFunc(ctx, host, port, call)
	}
	return true, nil
}

// Calls returns the number of IsPortOpen calls.
func (m *MockPortProber) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
