// Package provisioning acquires and releases EC2 instances for tenants.
//
// Provision drives one attempt through a fixed state machine:
//
//	Requested -> Reused
//	Requested -> Launching -> Pending -> Running -> SSHWaiting -> Ready
//	Launching | Pending | SSHWaiting -> Failed
//
// Waits are attempt counts at a fixed interval (see config.Timeouts), so
// every attempt terminates. Nothing is rolled back: an attempt abandoned
// after launch leaves the instance running and unrecorded.
//
// Reuse and quota checks read the store and launch later without a lock.
// Two concurrent requests for the same tenant can both pass the quota
// check; callers that care must serialize requests per tenant.
//
// Side effects that must not fail a provisioning (billing hooks, pipeline
// config backfill, key association) run through bestEffort, which logs and
// counts failures.
package provisioning
