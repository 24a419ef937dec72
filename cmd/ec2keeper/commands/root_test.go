package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot(t *testing.T) {
	cmd := Root()

	require.NotNil(t, cmd)
	assert.Equal(t, "ec2keeper", cmd.Use)
	assert.Equal(t, "Provision tenant instances on EC2 and manage their SSH keys", cmd.Short)
}

func TestRoot_HasSubcommands(t *testing.T) {
	cmd := Root()

	expectedSubcommands := []string{
		"provision",
		"terminate",
		"diagnose",
		"keys",
		"tenants",
		"pipelines",
		"version",
	}

	subcommands := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcommands[sub.Name()] = true
	}

	for _, expected := range expectedSubcommands {
		assert.True(t, subcommands[expected], "Expected subcommand %s not found", expected)
	}
	assert.Len(t, cmd.Commands(), len(expectedSubcommands))
}

func TestRoot_GlobalFlags(t *testing.T) {
	cmd := Root()

	for _, name := range []string{"config", "verbose", "log-json", "metrics-file"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing flag %s", name)
	}
	assert.Equal(t, "c", cmd.PersistentFlags().Lookup("config").Shorthand)
}

func TestKeys_Subcommands(t *testing.T) {
	cmd := Keys(nil)

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, expected := range []string{"create", "get", "verify", "repair", "list"} {
		assert.True(t, names[expected], "Expected subcommand %s not found", expected)
	}
}

func TestProvision_RequiresTenant(t *testing.T) {
	cmd := Root()
	cmd.SetArgs([]string{"provision"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant")
}

func TestTerminate_RequiresArgs(t *testing.T) {
	cmd := Root()
	cmd.SetArgs([]string{"terminate"})

	assert.Error(t, cmd.Execute())
}

func TestTenants_SetTierArgs(t *testing.T) {
	cmd := Root()
	cmd.SetArgs([]string{"tenants", "set-tier", "acme"})

	assert.Error(t, cmd.Execute())
}
