package ec2

import (
	"context"
)

// MockClient is a mock implementation of API.
type MockClient struct {
	RunInstanceFunc            func(ctx context.Context, req RunRequest) (string, error)
	DescribeInstanceFunc       func(ctx context.Context, instanceID string) (*Instance, error)
	TerminateInstanceFunc      func(ctx context.Context, instanceID string) error
	CreateKeyPairFunc          func(ctx context.Context, name string) (*KeyPair, error)
	DescribeSecurityGroupsFunc func(ctx context.Context, groupIDs []string) ([]SecurityGroup, error)
}

// Ensure interface compliance
var _ API = (*MockClient)(nil)

// RunInstance mocks instance launch.
func (m *MockClient) RunInstance(ctx context.Context, req RunRequest) (string, error) {
	if m.RunInstanceFunc != nil {
		return m.RunInstanceFunc(ctx, req)
	}
	return "i-mock", nil
}

// DescribeInstance mocks instance description. The default is a running
// instance with a public address.
func (m *MockClient) DescribeInstance(ctx context.Context, instanceID string) (*Instance, error) {
	if m.DescribeInstanceFunc != nil {
		return m.DescribeInstanceFunc(ctx, instanceID)
	}
	return &Instance{ID: instanceID, State: StateRunning, PublicIP: "203.0.113.10"}, nil
}

// TerminateInstance mocks instance termination.
func (m *MockClient) TerminateInstance(ctx context.Context, instanceID string) error {
	if m.TerminateInstanceFunc != nil {
		return m.TerminateInstanceFunc(ctx, instanceID)
	}
	return nil
}

// CreateKeyPair mocks key pair creation.
func (m *MockClient) CreateKeyPair(ctx context.Context, name string) (*KeyPair, error) {
	if m.CreateKeyPairFunc != nil {
		return m.CreateKeyPairFunc(ctx, name)
	}
	return &KeyPair{ID: "key-mock", Name: name}, nil
}

// DescribeSecurityGroups mocks security group lookup.
func (m *MockClient) DescribeSecurityGroups(ctx context.Context, groupIDs []string) ([]SecurityGroup, error) {
	if m.DescribeSecurityGroupsFunc != nil {
		return m.DescribeSecurityGroupsFunc(ctx, groupIDs)
	}
	return nil, nil
}

// StaticConnector returns a Connector that always yields api.
func StaticConnector(api API) Connector {
	return ConnectorFunc(func(context.Context, string, Credentials) (API, error) {
		return api, nil
	})
}
