package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds the polling budgets of the provisioning state machine.
// Every wait is an attempt count times a fixed interval; there is no
// wall-clock deadline.
type Timeouts struct {
	RunningPollInterval time.Duration // Interval between describe calls while pending
	RunningMaxAttempts  int           // Describe attempts before ProvisionTimeout
	SSHPollInterval     time.Duration // Interval between port probes
	SSHMaxAttempts      int           // Port probes before SshTimeout
	PortProbeTimeout    time.Duration // Per-strategy timeout of a single port probe
	SSHCommandTimeout   time.Duration // Connect timeout of a remote command
	PingTimeout         time.Duration // ICMP echo timeout
}

// LoadTimeouts loads the polling budgets from environment variables.
// If a variable is not set or invalid, the default value is used.
//
// Environment Variables:
//   - EC2KEEPER_POLL_INTERVAL (default: 5s)
//   - EC2KEEPER_RUNNING_MAX_ATTEMPTS (default: 60)
//   - EC2KEEPER_SSH_POLL_INTERVAL (default: 10s)
//   - EC2KEEPER_SSH_MAX_ATTEMPTS (default: 30)
//   - EC2KEEPER_PORT_TIMEOUT (default: 5s)
//   - EC2KEEPER_SSH_COMMAND_TIMEOUT (default: 10s)
//   - EC2KEEPER_PING_TIMEOUT (default: 3s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		RunningPollInterval: parseDuration("EC2KEEPER_POLL_INTERVAL", 5*time.Second),
		RunningMaxAttempts:  parseInt("EC2KEEPER_RUNNING_MAX_ATTEMPTS", 60),
		SSHPollInterval:     parseDuration("EC2KEEPER_SSH_POLL_INTERVAL", 10*time.Second),
		SSHMaxAttempts:      parseInt("EC2KEEPER_SSH_MAX_ATTEMPTS", 30),
		PortProbeTimeout:    parseDuration("EC2KEEPER_PORT_TIMEOUT", 5*time.Second),
		SSHCommandTimeout:   parseDuration("EC2KEEPER_SSH_COMMAND_TIMEOUT", 10*time.Second),
		PingTimeout:         parseDuration("EC2KEEPER_PING_TIMEOUT", 3*time.Second),
	}
}

// parseDuration parses a positive duration from an environment variable.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}

	return d
}

// parseInt parses a positive integer from an environment variable.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}

	return i
}
