package testing

import (
	"slices"

	"github.com/imamik/ec2keeper/internal/config"
)

// ConfigBuilder provides a fluent interface for constructing test configs.
// Each method returns a new builder (immutable) for chaining.
type ConfigBuilder struct {
	cfg config.Config
}

// NewConfigBuilder creates a new ConfigBuilder with valid defaults.
func NewConfigBuilder() *ConfigBuilder {
	cfg := config.Default()
	cfg.Region = "eu-west-1"
	cfg.ImageID = "ami-0123456789abcdef0"
	cfg.KeyPairName = "deploy"
	cfg.SecurityGroupIDs = []string{"sg-0123"}
	cfg.SubnetID = "subnet-0123"
	return &ConfigBuilder{cfg: *cfg}
}

// WithDatabase sets the state database path.
func (b *ConfigBuilder) WithDatabase(path string) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Database = path
	return nb
}

// WithKeyDir sets the key cache directory.
func (b *ConfigBuilder) WithKeyDir(dir string) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.KeyDir = dir
	return nb
}

// WithSSHPort sets the port probed and dialed for SSH.
func (b *ConfigBuilder) WithSSHPort(port int) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.SSH.Port = port
	return nb
}

// Build returns a copy of the built config.
func (b *ConfigBuilder) Build() *config.Config {
	cfg := b.clone().cfg
	return &cfg
}

func (b *ConfigBuilder) clone() *ConfigBuilder {
	cfg := b.cfg
	cfg.SecurityGroupIDs = slices.Clone(b.cfg.SecurityGroupIDs)
	return &ConfigBuilder{cfg: cfg}
}
