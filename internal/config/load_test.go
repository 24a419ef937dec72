package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
region: eu-west-1
imageId: "[ami-0abc123]"
keyPairName: deploy-key
securityGroupIds:
  - sg-0123
subnetId: subnet-0456
`

func TestParse_AppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "[ami-0abc123]", cfg.ImageID, "sanitizing is the provisioner's job")
	assert.Equal(t, []string{"sg-0123"}, cfg.SecurityGroupIDs)
	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, DefaultSSHUser, cfg.SSH.User)
	assert.Equal(t, DefaultSSHPort, cfg.SSH.Port)
	assert.NotEmpty(t, cfg.KeyDir)
	assert.False(t, cfg.Archive.Enabled())
}

func TestParse_ArchiveDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(validYAML + "archive:\n  bucket: key-backups\n"))
	require.NoError(t, err)

	assert.True(t, cfg.Archive.Enabled())
	assert.Equal(t, DefaultPrefix, cfg.Archive.Prefix)
	assert.Equal(t, "eu-west-1", cfg.Archive.Region)
}

func TestParse_InvalidYAML(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte("region: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal yaml")
}

func TestParse_ValidationErrorsJoined(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte("securityGroupIds: [bogus]\nsubnetId: nope\n"))
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "region is required")
	assert.Contains(t, msg, "imageId is required")
	assert.Contains(t, msg, "keyPairName is required")
	assert.Contains(t, msg, `"bogus" is not a security group id`)
	assert.Contains(t, msg, `"nope" is not a subnet id`)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "ec2keeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "deploy-key", cfg.KeyPairName)
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestUserData(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	script := filepath.Join(dir, "bootstrap.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho hi\n"), 0o600))

	cfg := &Config{UserDataFile: script}
	data, err := cfg.UserData()
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho hi\n", string(data))

	empty, err := (&Config{}).UserData()
	require.NoError(t, err)
	assert.Nil(t, empty)
}
