// Package diagnostics explains why an instance is or is not reachable.
//
// Diagnose runs a fixed sequence of checks and accumulates their results in
// a Report. It never returns an error: every failure becomes a finding.
package diagnostics

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/ec2keeper/internal/connectivity"
	"github.com/imamik/ec2keeper/internal/platform/ec2"
	"github.com/imamik/ec2keeper/internal/store"
)

const (
	defaultSSHPort     = 22
	defaultPortTimeout = 5 * time.Second
)

// Severity grades a finding.
type Severity string

// Finding severities.
const (
	SeverityOK      Severity = "ok"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityFailure Severity = "failure"
)

// Check names, in the order they run.
const (
	CheckInput          = "input"
	CheckConnect        = "connect"
	CheckInstance       = "instance"
	CheckPublicAddress  = "public_address"
	CheckPing           = "ping"
	CheckSSHPort        = "ssh_port"
	CheckSecurityGroups = "security_groups"
	CheckKeyPair        = "key_pair"
	CheckKeyValidation  = "key_validation"
	CheckInternal       = "internal"
)

// Finding is the result of one check.
type Finding struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Report is the accumulated diagnosis of one instance.
type Report struct {
	InstanceID  string    `json:"instanceId"`
	Success     bool      `json:"success"`
	Details     []string  `json:"details"`
	Remediation []string  `json:"remediation"`
	Findings    []Finding `json:"findings"`
}

func (r *Report) add(check string, sev Severity, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Findings = append(r.Findings, Finding{Check: check, Severity: sev, Message: msg})
	r.Details = append(r.Details, msg)
}

func (r *Report) remediate(format string, args ...any) {
	r.Remediation = append(r.Remediation, fmt.Sprintf(format, args...))
}

// HasFailure reports whether any check failed.
func (r *Report) HasFailure() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityFailure {
			return true
		}
	}
	return false
}

// Request names the instance to diagnose.
type Request struct {
	InstanceID  string
	Region      string
	Credentials ec2.Credentials
	// KeyPairName is the key pair the caller expects the instance to use.
	KeyPairName string
}

// Prober checks reachability of a host.
type Prober interface {
	IsPortOpen(ctx context.Context, host string, port int, timeout time.Duration) (bool, error)
	Ping(ctx context.Context, host string) connectivity.PingResult
}

// KeyVerifier resolves and verifies the key of an instance. Lookups must
// not persist anything they find.
type KeyVerifier interface {
	LookupForInstance(ctx context.Context, instanceID, region string, creds ec2.Credentials) (*store.SSHKey, error)
	VerifyKey(ctx context.Context, content, pairName, host string) bool
}

// Diagnoser runs instance diagnostics.
type Diagnoser struct {
	connector   ec2.Connector
	prober      Prober
	keys        KeyVerifier
	logger      logr.Logger
	sshPort     int
	portTimeout time.Duration
}

// Option configures a Diagnoser.
type Option func(*Diagnoser)

// WithSSHPort overrides the probed SSH port.
func WithSSHPort(port int) Option {
	return func(d *Diagnoser) {
		if port > 0 {
			d.sshPort = port
		}
	}
}

// WithPortTimeout bounds each port probe strategy.
func WithPortTimeout(timeout time.Duration) Option {
	return func(d *Diagnoser) {
		if timeout > 0 {
			d.portTimeout = timeout
		}
	}
}

// NewDiagnoser creates a Diagnoser. keys may be nil, which skips key
// validation.
func NewDiagnoser(connector ec2.Connector, prober Prober, keys KeyVerifier, logger logr.Logger, opts ...Option) *Diagnoser {
	d := &Diagnoser{
		connector:   connector,
		prober:      prober,
		keys:        keys,
		logger:      logger.WithName("diagnostics"),
		sshPort:     defaultSSHPort,
		portTimeout: defaultPortTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Diagnose checks, in order: instance exists and runs, public address,
// ICMP echo, SSH port, attached security groups, key pair name, and key
// validation when the port is open. An instance that cannot be probed
// still gets the security group and key pair checks. Success means the
// SSH port is reachable and no check failed.
func (d *Diagnoser) Diagnose(ctx context.Context, req Request) (report Report) {
	report.InstanceID = req.InstanceID
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(fmt.Errorf("panic: %v", r), "diagnostics aborted", "instance", req.InstanceID)
			report.add(CheckInternal, SeverityFailure, "diagnostics aborted: %v", r)
			report.Success = false
		}
	}()

	portOpen := d.diagnose(ctx, req, &report)
	report.Success = portOpen && !report.HasFailure()
	d.logger.V(1).Info("diagnostics finished",
		"instance", req.InstanceID, "success", report.Success, "findings", len(report.Findings))
	return report
}

func (d *Diagnoser) diagnose(ctx context.Context, req Request, r *Report) (portOpen bool) {
	if req.InstanceID == "" {
		r.add(CheckInput, SeverityFailure, "no instance id given")
		r.remediate("Pass the id of the instance to diagnose")
		return false
	}
	if d.connector == nil {
		r.add(CheckInput, SeverityFailure, "no cloud connection configured")
		return false
	}

	api, err := d.connector.Connect(ctx, req.Region, req.Credentials)
	if err != nil {
		r.add(CheckConnect, SeverityFailure, "cannot connect to region %q: %v", req.Region, err)
		r.remediate("Check the region and that the credentials are valid")
		return false
	}

	inst, running := d.checkInstance(ctx, api, req, r)
	if inst == nil {
		return false
	}
	if !running {
		d.describedChecks(ctx, api, req, inst, r)
		return false
	}

	if inst.PublicIP == "" {
		r.add(CheckPublicAddress, SeverityFailure, "instance %s has no public address", inst.ID)
		r.remediate("Launch the instance in a subnet that assigns public addresses, or attach an Elastic IP")
		d.describedChecks(ctx, api, req, inst, r)
		return false
	}
	r.add(CheckPublicAddress, SeverityOK, "public address %s", inst.PublicIP)

	if d.prober == nil {
		r.add(CheckSSHPort, SeverityFailure, "no prober configured")
		d.describedChecks(ctx, api, req, inst, r)
		return false
	}

	if d.prober.Ping(ctx, inst.PublicIP) == connectivity.PingReachable {
		r.add(CheckPing, SeverityOK, "%s answers ICMP echo", inst.PublicIP)
	} else {
		r.add(CheckPing, SeverityInfo, "%s did not answer ICMP echo (often filtered, inconclusive)", inst.PublicIP)
	}

	portOpen = d.checkSSHPort(ctx, inst, r)
	d.checkSecurityGroups(ctx, api, inst, portOpen, r)
	d.checkKeyPair(req, inst, r)
	if portOpen {
		d.checkKey(ctx, req, inst, r)
	}
	return portOpen
}

// describedChecks runs the checks that need only the instance description,
// for instances that cannot be probed.
func (d *Diagnoser) describedChecks(ctx context.Context, api ec2.API, req Request, inst *ec2.Instance, r *Report) {
	if len(inst.SecurityGroupIDs) > 0 {
		d.checkSecurityGroups(ctx, api, inst, false, r)
	}
	d.checkKeyPair(req, inst, r)
}

// checkInstance returns the described instance, or nil when it could not
// be described, and whether it is running.
func (d *Diagnoser) checkInstance(ctx context.Context, api ec2.API, req Request, r *Report) (*ec2.Instance, bool) {
	inst, err := api.DescribeInstance(ctx, req.InstanceID)
	switch {
	case ec2.IsNotFound(err):
		r.add(CheckInstance, SeverityFailure, "instance %s not found in %s", req.InstanceID, req.Region)
		r.remediate("Check the instance id and region")
		return nil, false
	case ec2.IsAuthFailure(err):
		r.add(CheckInstance, SeverityFailure, "not authorized to describe instance %s: %v", req.InstanceID, err)
		r.remediate("Grant ec2:DescribeInstances to the credentials in use")
		return nil, false
	case err != nil:
		r.add(CheckInstance, SeverityFailure, "cannot describe instance %s: %v", req.InstanceID, err)
		return nil, false
	case inst == nil:
		r.add(CheckInstance, SeverityFailure, "instance %s not found in %s", req.InstanceID, req.Region)
		return nil, false
	}

	if inst.State != ec2.StateRunning {
		r.add(CheckInstance, SeverityFailure, "instance %s is %s", inst.ID, inst.State)
		if inst.State == ec2.StatePending {
			r.remediate("Wait for the instance to finish starting")
		} else {
			r.remediate("Start the instance or provision a new one")
		}
		return inst, false
	}
	r.add(CheckInstance, SeverityOK, "instance %s is running", inst.ID)
	return inst, true
}

func (d *Diagnoser) checkSSHPort(ctx context.Context, inst *ec2.Instance, r *Report) bool {
	open, err := d.prober.IsPortOpen(ctx, inst.PublicIP, d.sshPort, d.portTimeout)
	switch {
	case err != nil:
		r.add(CheckSSHPort, SeverityFailure, "cannot probe %s:%d: %v", inst.PublicIP, d.sshPort, err)
		return false
	case !open:
		r.add(CheckSSHPort, SeverityFailure, "port %d on %s is not reachable", d.sshPort, inst.PublicIP)
		r.remediate("Allow inbound TCP %d in the instance's security group", d.sshPort)
		r.remediate("Check that the SSH daemon is running on the instance")
		return false
	}
	r.add(CheckSSHPort, SeverityOK, "port %d on %s is reachable", d.sshPort, inst.PublicIP)
	return true
}

func (d *Diagnoser) checkSecurityGroups(ctx context.Context, api ec2.API, inst *ec2.Instance, portOpen bool, r *Report) {
	if len(inst.SecurityGroupIDs) == 0 {
		r.add(CheckSecurityGroups, SeverityInfo, "no security groups attached")
		return
	}

	groups, err := api.DescribeSecurityGroups(ctx, inst.SecurityGroupIDs)
	if err != nil {
		r.add(CheckSecurityGroups, SeverityInfo, "security groups %v attached, rules unavailable: %v", inst.SecurityGroupIDs, err)
		return
	}
	for _, g := range groups {
		if g.AllowsTCPPort(int32(d.sshPort)) {
			r.add(CheckSecurityGroups, SeverityInfo, "security group %s admits tcp/%d", g.ID, d.sshPort)
			return
		}
	}
	r.add(CheckSecurityGroups, SeverityInfo, "no rule in security groups %v admits tcp/%d", inst.SecurityGroupIDs, d.sshPort)
	if !portOpen {
		r.remediate("Add an inbound rule for tcp/%d to one of %v", d.sshPort, inst.SecurityGroupIDs)
	}
}

func (d *Diagnoser) checkKeyPair(req Request, inst *ec2.Instance, r *Report) {
	switch {
	case inst.KeyPairName == "":
		r.add(CheckKeyPair, SeverityWarning, "instance %s was launched without a key pair", inst.ID)
		r.remediate("Relaunch the instance with a key pair")
	case req.KeyPairName != "" && req.KeyPairName != inst.KeyPairName:
		r.add(CheckKeyPair, SeverityWarning, "instance uses key pair %q, expected %q", inst.KeyPairName, req.KeyPairName)
		r.remediate("Connect with the private key of key pair %q", inst.KeyPairName)
	default:
		r.add(CheckKeyPair, SeverityOK, "instance uses key pair %q", inst.KeyPairName)
	}
}

func (d *Diagnoser) checkKey(ctx context.Context, req Request, inst *ec2.Instance, r *Report) {
	if d.keys == nil {
		return
	}
	key, err := d.keys.LookupForInstance(ctx, inst.ID, req.Region, req.Credentials)
	if err != nil {
		r.add(CheckKeyValidation, SeverityWarning, "private key for %q not found: %v", inst.KeyPairName, err)
		r.remediate("Import the private key with `ec2keeper keys create --pair %s --file <pem>`", inst.KeyPairName)
		return
	}
	if !d.keys.VerifyKey(ctx, key.Content, key.KeyPairName, inst.PublicIP) {
		r.add(CheckKeyValidation, SeverityWarning, "stored key for %q was rejected by %s", key.KeyPairName, inst.PublicIP)
		r.remediate("Check the SSH user and that the stored key matches key pair %q", key.KeyPairName)
		return
	}
	r.add(CheckKeyValidation, SeverityOK, "stored key for %q logs in to %s", key.KeyPairName, inst.PublicIP)
}
