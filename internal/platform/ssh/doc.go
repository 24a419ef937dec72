// Package ssh runs single commands on freshly provisioned instances.
//
// Each Execute call dials once, authenticates with the configured private
// key, runs the command, and closes the connection. There is no internal
// retry; callers that poll for readiness own the retry policy.
package ssh
