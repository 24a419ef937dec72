// Package store persists deployments, SSH key records, tenants, pipeline
// configuration blobs, and usage events in SQLite.
//
// The store performs no locking beyond what SQLite does for a single
// statement. Callers that read, decide, then write (the provisioner's
// reuse and quota checks, pipeline config backfill) get last-write-wins
// semantics.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Tier is a tenant's subscription level.
type Tier string

// Known tiers.
const (
	TierFree         Tier = "free"
	TierBasic        Tier = "basic"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// DeploymentStatus is the lifecycle status of a deployment record.
type DeploymentStatus string

// Deployment statuses. Records are never deleted; they move to terminated.
const (
	StatusActive     DeploymentStatus = "active"
	StatusTerminated DeploymentStatus = "terminated"
)

// Deployment metadata keys. MetaKeyName duplicates MetaKeyPairName for
// readers that predate the rename.
const (
	MetaImageID      = "imageId"
	MetaKeyPairName  = "keyPairName"
	MetaKeyName      = "keyName"
	MetaPublicIP     = "publicIp"
	MetaCreatedAt    = "createdAt"
	MetaTerminatedAt = "terminatedAt"
)

// Deployment is one tenant's claim on one running instance.
type Deployment struct {
	ID         string
	TenantID   string
	InstanceID string
	PipelineID string
	Status     DeploymentStatus
	Size       string
	Region     string
	Metadata   map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SSHKey is a stored private key. EncodedContent is always the base64 form
// of Content.
type SSHKey struct {
	ID             string
	Name           string
	KeyPairName    string
	Content        string
	EncodedContent string
	DeploymentID   string
	CreatedAt      time.Time
}

// Tenant holds the subscription tier of a tenant.
type Tenant struct {
	ID   string
	Tier Tier
}

// Pipeline is the external pipeline entity. DeploymentConfig is an opaque
// JSON document owned by the pipeline engine.
type Pipeline struct {
	ID               string
	TenantID         string
	DeploymentConfig []byte
}

// UsageKind distinguishes billing start and end events.
type UsageKind string

// Usage event kinds.
const (
	UsageStart UsageKind = "start"
	UsageEnd   UsageKind = "end"
)

// UsageEvent is a billing lifecycle hook firing.
type UsageEvent struct {
	ID           int64
	DeploymentID string
	Kind         UsageKind
	At           time.Time
}
