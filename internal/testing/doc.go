// Package testing provides test utilities, builders, and fixtures shared by
// the package tests.
//
//   - SSHServer: in-process SSH server that authorizes one key and answers
//     exec requests through a handler
//   - ConfigBuilder: fluent builder for test configurations
//   - EC2Fixture: pre-configured ec2.MockClient scenarios
//   - MockBillingHooks: testify mock of the billing lifecycle hooks
//
// Usage:
//
//	key := testutil.GenerateKey(t)
//	srv := testutil.NewSSHServer(t, key.PublicKey, testutil.EchoHandler)
//	out, err := client.Execute(ctx, "echo ok")
package testing
