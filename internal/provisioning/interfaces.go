package provisioning

import (
	"context"
	"time"

	"github.com/imamik/ec2keeper/internal/platform/ec2"
	"github.com/imamik/ec2keeper/internal/store"
)

// DeploymentStore persists deployment records.
type DeploymentStore interface {
	CreateDeployment(ctx context.Context, d *store.Deployment) error
	GetDeployment(ctx context.Context, id string) (*store.Deployment, error)
	FindActiveDeployment(ctx context.Context, tenantID, pipelineID string) (*store.Deployment, error)
	CountActiveDeployments(ctx context.Context, tenantID string) (int, error)
	UpdateDeployment(ctx context.Context, d *store.Deployment) error
}

// TenantStore resolves tenant tiers.
type TenantStore interface {
	GetTenantTier(ctx context.Context, tenantID string) (store.Tier, error)
}

// PipelineStore reads and writes a pipeline's deployment configuration.
type PipelineStore interface {
	GetDeploymentConfig(ctx context.Context, pipelineID string) ([]byte, error)
	SaveDeploymentConfig(ctx context.Context, pipelineID string, blob []byte) error
}

// Store is everything the provisioner persists.
type Store interface {
	DeploymentStore
	TenantStore
	PipelineStore
}

// BillingHooks are fired when deployments start and end. Their errors are
// logged, never returned.
type BillingHooks interface {
	TrackDeploymentStart(ctx context.Context, deploymentID string) error
	TrackDeploymentEnd(ctx context.Context, deploymentID string) error
}

// PortProber checks TCP reachability. (false, nil) means not reachable
// yet; an error means the probe could not run.
type PortProber interface {
	IsPortOpen(ctx context.Context, host string, port int, timeout time.Duration) (bool, error)
}

// KeyManager resolves and verifies the key of a launched instance.
type KeyManager interface {
	GetForInstance(ctx context.Context, instanceID, region string, creds ec2.Credentials) (*store.SSHKey, error)
	VerifyKey(ctx context.Context, content, pairName, host string) bool
	AssociateWithDeployment(ctx context.Context, keyID, deploymentID string) error
}
