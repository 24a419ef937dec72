package config

import (
	"os"
	"path/filepath"
)

// Config is the root configuration document.
type Config struct {
	// Region is the EC2 region instances are launched in.
	Region string `yaml:"region"`

	// ImageID is the machine image. Stray brackets are stripped before use.
	ImageID string `yaml:"imageId"`

	// KeyPairName is the cloud-side key pair attached to new instances.
	KeyPairName string `yaml:"keyPairName"`

	SecurityGroupIDs []string `yaml:"securityGroupIds"`
	SubnetID         string   `yaml:"subnetId"`

	// UserDataFile is an optional path to the bootstrap script. Its content
	// is passed to the instance unchanged.
	UserDataFile string `yaml:"userDataFile,omitempty"`

	// Database is the path of the SQLite state database.
	Database string `yaml:"database"`

	// KeyDir caches private key material. Created with mode 0700.
	KeyDir string `yaml:"keyDir"`

	SSH     SSHConfig     `yaml:"ssh"`
	Archive ArchiveConfig `yaml:"archive,omitempty"`
}

// SSHConfig configures remote command execution.
type SSHConfig struct {
	// User is the administrative login account on new instances.
	User string `yaml:"user"`
	Port int    `yaml:"port"`
}

// ArchiveConfig points at an S3-compatible bucket that keeps a copy of
// every stored private key. Disabled when Bucket is empty.
type ArchiveConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Bucket   string `yaml:"bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// Enabled reports whether an archive bucket is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

// Defaults applied by LoadFile and Default.
const (
	DefaultDatabase = "ec2keeper.db"
	DefaultSSHUser  = "ubuntu"
	DefaultSSHPort  = 22
	DefaultPrefix   = "keys/"
)

// Default returns a configuration with every optional field defaulted.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.KeyDir == "" {
		c.KeyDir = DefaultKeyDir()
	}
	if c.SSH.User == "" {
		c.SSH.User = DefaultSSHUser
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = DefaultSSHPort
	}
	if c.Archive.Enabled() {
		if c.Archive.Prefix == "" {
			c.Archive.Prefix = DefaultPrefix
		}
		if c.Archive.Region == "" {
			c.Archive.Region = c.Region
		}
	}
}

// DefaultKeyDir returns ~/.ec2keeper/keys, or a relative .ec2keeper/keys
// when the home directory cannot be determined.
func DefaultKeyDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".ec2keeper", "keys")
	}
	return filepath.Join(home, ".ec2keeper", "keys")
}
