// Package ec2 wraps the EC2 API calls the provisioner needs (run,
// describe, terminate, create key pair, describe security groups) into
// small request/response methods over plain Go types.
//
// Credentials are supplied per call through a Connector; nothing in this
// package holds a global client. The MockClient in this package is used by
// the provisioning, keys, and diagnostics tests.
package ec2
