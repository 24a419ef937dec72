package testing

import (
	"context"
	"sync"

	"github.com/imamik/ec2keeper/internal/platform/ec2"
)

// EC2Fixture provides pre-configured mock EC2 scenarios. It records every
// launch and termination.
type EC2Fixture struct {
	mock *ec2.MockClient

	mu         sync.Mutex
	launches   []ec2.RunRequest
	terminated []string
}

// NewEC2Fixture creates a new fixture around an empty MockClient.
func NewEC2Fixture() *EC2Fixture {
	f := &EC2Fixture{mock: &ec2.MockClient{}}
	f.mock.RunInstanceFunc = func(_ context.Context, req ec2.RunRequest) (string, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.launches = append(f.launches, req)
		return "i-0fixture", nil
	}
	f.mock.TerminateInstanceFunc = func(_ context.Context, id string) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.terminated = append(f.terminated, id)
		return nil
	}
	return f
}

// Mock returns the underlying MockClient for custom configuration.
func (f *EC2Fixture) Mock() *ec2.MockClient {
	return f.mock
}

// Connector returns a Connector yielding the mock.
func (f *EC2Fixture) Connector() ec2.Connector {
	return ec2.StaticConnector(f.mock)
}

// Launches returns the recorded run requests.
func (f *EC2Fixture) Launches() []ec2.RunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ec2.RunRequest(nil), f.launches...)
}

// Terminated returns the recorded terminated instance ids.
func (f *EC2Fixture) Terminated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.terminated...)
}

// RunningAfter makes DescribeInstance report pending for the first n calls
// and running with publicIP afterwards.
func (f *EC2Fixture) RunningAfter(n int, publicIP, keyPairName string) *ec2.MockClient {
	var mu sync.Mutex
	calls := 0
	f.mock.DescribeInstanceFunc = func(_ context.Context, id string) (*ec2.Instance, error) {
		mu.Lock()
		calls++
		c := calls
		mu.Unlock()
		if c <= n {
			return &ec2.Instance{ID: id, State: ec2.StatePending, KeyPairName: keyPairName}, nil
		}
		return &ec2.Instance{ID: id, State: ec2.StateRunning, PublicIP: publicIP, KeyPairName: keyPairName}, nil
	}
	return f.mock
}

// StuckIn makes DescribeInstance always report state.
func (f *EC2Fixture) StuckIn(state ec2.InstanceState) *ec2.MockClient {
	f.mock.DescribeInstanceFunc = func(_ context.Context, id string) (*ec2.Instance, error) {
		return &ec2.Instance{ID: id, State: state}, nil
	}
	return f.mock
}

// Missing makes DescribeInstance report every instance as not found.
func (f *EC2Fixture) Missing() *ec2.MockClient {
	f.mock.DescribeInstanceFunc = func(_ context.Context, id string) (*ec2.Instance, error) {
		return nil, ec2.ErrInstanceNotFound
	}
	return f.mock
}
