// Package connectivity answers "can we reach this instance yet?".
//
// Port probes try a raw TCP connect first and an SSH identification-banner
// read second; the first strategy that succeeds wins. A negative answer is
// (false, nil). An error means the probe itself could not run, which
// callers treat as fatal rather than as "not ready yet".
//
// Ping is informational only. Many networks drop ICMP, so an unanswered
// echo is reported as PingUnknown and never as an error.
package connectivity
