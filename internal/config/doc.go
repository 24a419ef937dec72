// Package config defines the on-disk configuration of ec2keeper and the
// environment-driven polling budgets used by the provisioner.
//
// The YAML file describes where instances are launched (region, image,
// key pair, network) and where state lives (database, key cache, optional
// archive bucket). Cloud credentials are never read from the file; the CLI
// takes them from the standard AWS environment variables and passes them
// per call.
package config
