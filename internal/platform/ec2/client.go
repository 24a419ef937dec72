package ec2

import (
	"context"
	"errors"
	"time"
)

// Credentials are the static access keys used for one call chain.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Validate reports malformed credentials. This is a hard failure, distinct
// from the API rejecting well-formed but wrong keys.
func (c Credentials) Validate() error {
	if c.AccessKeyID == "" {
		return errors.New("access key id is empty")
	}
	if c.SecretAccessKey == "" {
		return errors.New("secret access key is empty")
	}
	return nil
}

// InstanceState is the EC2 lifecycle state name.
type InstanceState string

// EC2 instance states.
const (
	StatePending      InstanceState = "pending"
	StateRunning      InstanceState = "running"
	StateShuttingDown InstanceState = "shutting-down"
	StateTerminated   InstanceState = "terminated"
	StateStopping     InstanceState = "stopping"
	StateStopped      InstanceState = "stopped"
)

// IsTerminal reports whether an instance in this state will never become
// running without operator action.
func (s InstanceState) IsTerminal() bool {
	switch s {
	case StateTerminated, StateShuttingDown, StateStopped:
		return true
	}
	return false
}

// Instance is the subset of an EC2 instance description we use.
type Instance struct {
	ID               string
	State            InstanceState
	PublicIP         string
	PrivateIP        string
	KeyPairName      string
	ImageID          string
	InstanceType     string
	SubnetID         string
	SecurityGroupIDs []string
	Tags             map[string]string
	LaunchTime       time.Time
}

// RunRequest describes a single-instance launch. UserData is the raw
// bootstrap payload; the client base64-encodes it for the API.
type RunRequest struct {
	ImageID          string
	InstanceType     string
	KeyPairName      string
	SecurityGroupIDs []string
	SubnetID         string
	UserData         []byte
	Tags             map[string]string
}

// KeyPair is a key pair minted by the cloud. Material is the PEM private
// key and is only returned once, at creation.
type KeyPair struct {
	ID          string
	Name        string
	Fingerprint string
	Material    string
}

// IngressRule is one inbound permission of a security group.
type IngressRule struct {
	Protocol string
	FromPort int32
	ToPort   int32
	CIDRs    []string
}

// AllowsTCPPort reports whether the rule admits TCP traffic on port.
func (r IngressRule) AllowsTCPPort(port int32) bool {
	if r.Protocol == "-1" {
		return true
	}
	if r.Protocol != "tcp" && r.Protocol != "6" {
		return false
	}
	return r.FromPort <= port && port <= r.ToPort
}

// SecurityGroup is a security group with its inbound rules.
type SecurityGroup struct {
	ID      string
	Name    string
	Ingress []IngressRule
}

// AllowsTCPPort reports whether any ingress rule admits TCP on port.
func (g SecurityGroup) AllowsTCPPort(port int32) bool {
	for _, r := range g.Ingress {
		if r.AllowsTCPPort(port) {
			return true
		}
	}
	return false
}

// InstanceManager launches, describes, and terminates instances.
type InstanceManager interface {
	// RunInstance launches one instance and returns its id.
	RunInstance(ctx context.Context, req RunRequest) (string, error)
	// DescribeInstance returns the instance, or an error matching IsNotFound.
	DescribeInstance(ctx context.Context, instanceID string) (*Instance, error)
	TerminateInstance(ctx context.Context, instanceID string) error
}

// KeyPairManager mints key pairs.
type KeyPairManager interface {
	CreateKeyPair(ctx context.Context, name string) (*KeyPair, error)
}

// NetworkInspector reads security group rules.
type NetworkInspector interface {
	DescribeSecurityGroups(ctx context.Context, groupIDs []string) ([]SecurityGroup, error)
}

// API is everything the provisioner, key store, and diagnostics use.
type API interface {
	InstanceManager
	KeyPairManager
	NetworkInspector
}

// Connector builds an API bound to a region and a set of credentials.
type Connector interface {
	Connect(ctx context.Context, region string, creds Credentials) (API, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, region string, creds Credentials) (API, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context, region string, creds Credentials) (API, error) {
	return f(ctx, region, creds)
}
