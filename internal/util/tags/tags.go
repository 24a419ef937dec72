// Package tags builds the EC2 resource tags that identify instances launched
// on behalf of a tenant.
//
// Keys use the "ec2keeper:" prefix. The tenant key is also written under the
// bare legacy key "tenant" so older inventory scripts keep matching.
package tags

import "sort"

const (
	// KeyTenant identifies the tenant owning the instance.
	KeyTenant = "ec2keeper:tenant"

	// KeyTier records the tenant tier the instance was sized for.
	KeyTier = "ec2keeper:tier"

	// KeyPipeline identifies the pipeline the instance serves, if any.
	KeyPipeline = "ec2keeper:pipeline"

	// KeyManagedBy identifies the management system.
	KeyManagedBy = "ec2keeper:managed-by"

	// KeyName is the console display name.
	KeyName = "Name"

	// LegacyKeyTenant is kept for backward compatibility.
	LegacyKeyTenant = "tenant"

	// ManagedBy is the KeyManagedBy value for instances we launch.
	ManagedBy = "ec2keeper"
)

// Builder provides a fluent interface for building instance tags.
type Builder struct {
	tags map[string]string
}

// NewBuilder creates a builder with the tenant and managed-by tags pre-set.
func NewBuilder(tenantID string) *Builder {
	return &Builder{
		tags: map[string]string{
			KeyTenant:       tenantID,
			LegacyKeyTenant: tenantID,
			KeyManagedBy:    ManagedBy,
		},
	}
}

// WithTier adds the tier tag.
func (b *Builder) WithTier(tier string) *Builder {
	b.tags[KeyTier] = tier
	return b
}

// WithPipelineIfSet adds the pipeline tag only if pipelineID is non-empty.
func (b *Builder) WithPipelineIfSet(pipelineID string) *Builder {
	if pipelineID != "" {
		b.tags[KeyPipeline] = pipelineID
	}
	return b
}

// WithName sets the console display name.
func (b *Builder) WithName(name string) *Builder {
	b.tags[KeyName] = name
	return b
}

// Merge adds all tags from the provided map.
func (b *Builder) Merge(extra map[string]string) *Builder {
	for k, v := range extra {
		b.tags[k] = v
	}
	return b
}

// Build returns a copy of the tags map.
func (b *Builder) Build() map[string]string {
	result := make(map[string]string, len(b.tags))
	for k, v := range b.tags {
		result[k] = v
	}
	return result
}

// SortedKeys returns the tag keys in lexical order, for deterministic
// request construction.
func SortedKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InstanceName returns the display name for a tenant instance.
func InstanceName(tenantID, pipelineID string) string {
	if pipelineID == "" {
		return "ec2keeper-" + tenantID
	}
	return "ec2keeper-" + tenantID + "-" + pipelineID
}
