package provisioning

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/ec2keeper/internal/config"
	"github.com/imamik/ec2keeper/internal/deployconfig"
	"github.com/imamik/ec2keeper/internal/platform/ec2"
	"github.com/imamik/ec2keeper/internal/store"
	"github.com/imamik/ec2keeper/internal/util/retry"
	"github.com/imamik/ec2keeper/internal/util/tags"
)

const defaultSSHPort = 22

// InstanceConfig is the caller-supplied launch configuration.
type InstanceConfig struct {
	Region           string
	ImageID          string
	KeyPairName      string
	SecurityGroupIDs []string
	SubnetID         string
	// UserData is the bootstrap payload, passed through unchanged.
	UserData []byte
}

// Request is one Provision call.
type Request struct {
	TenantID    string
	PipelineID  string
	Instance    InstanceConfig
	Credentials ec2.Credentials
}

// Result describes a reachable instance.
type Result struct {
	InstanceID    string
	PublicAddress string
	DeploymentID  string
	Reused        bool
	State         State
}

// Dependencies are the collaborators of a Provisioner. Keys, Billing,
// Observer, and Metrics are optional.
type Dependencies struct {
	Store     Store
	Connector ec2.Connector
	Prober    PortProber
	Keys      KeyManager
	Billing   BillingHooks
	Observer  Observer
	Metrics   *Metrics
	Logger    logr.Logger
}

// Provisioner launches, reuses, and terminates instances.
type Provisioner struct {
	store     Store
	connector ec2.Connector
	prober    PortProber
	keys      KeyManager
	billing   BillingHooks
	observer  Observer
	metrics   *Metrics
	logger    logr.Logger
	timeouts  config.Timeouts
	sshPort   int
	now       func() time.Time
}

// NewProvisioner creates a Provisioner. A nil timeouts uses
// config.LoadTimeouts.
func NewProvisioner(deps Dependencies, timeouts *config.Timeouts) *Provisioner {
	if timeouts == nil {
		timeouts = config.LoadTimeouts()
	}
	logger := deps.Logger.WithName("provisioning")
	observer := deps.Observer
	if observer == nil {
		observer = NewLogObserver(logger)
	}
	return &Provisioner{
		store:     deps.Store,
		connector: deps.Connector,
		prober:    deps.Prober,
		keys:      deps.Keys,
		billing:   deps.Billing,
		observer:  observer,
		metrics:   deps.Metrics,
		logger:    logger,
		timeouts:  *timeouts,
		sshPort:   defaultSSHPort,
		now:       time.Now,
	}
}

// SetSSHPort overrides the port waited on after launch.
func (p *Provisioner) SetSSHPort(port int) {
	if port > 0 {
		p.sshPort = port
	}
}

// Provision returns a reachable instance for the tenant, reusing the
// pipeline's running instance when there is one.
func (p *Provisioner) Provision(ctx context.Context, req Request) (*Result, error) {
	start := p.now()

	observer := p.observer.WithFields(map[string]string{
		"tenant":   req.TenantID,
		"pipeline": req.PipelineID,
	})
	a := newAttempt(observer, p.metrics)

	res, err := p.provision(ctx, a, req)

	outcome := string(a.state)
	if err != nil {
		outcome = string(StateFailed)
	}
	p.metrics.recordProvision(outcome, err, p.now().Sub(start))
	return res, err
}

func (p *Provisioner) provision(ctx context.Context, a *attempt, req Request) (*Result, error) {
	if req.TenantID == "" {
		return nil, errors.New("tenant id is required")
	}
	imageID := SanitizeImageID(req.Instance.ImageID)
	if imageID == "" {
		return nil, errors.New("image id is required")
	}
	if req.Instance.Region == "" {
		return nil, errors.New("region is required")
	}

	// Tier
	tier, err := p.store.GetTenantTier(ctx, req.TenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: tenant %s has no tier", ErrTierNotEligible, req.TenantID)
		}
		return nil, fmt.Errorf("failed to load tier of tenant %s: %w", req.TenantID, err)
	}
	size, err := SizeForTier(tier)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", req.TenantID, err)
	}

	api, err := p.connector.Connect(ctx, req.Instance.Region, req.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to region %s: %w", req.Instance.Region, err)
	}

	// Reuse
	if req.PipelineID != "" {
		res, err := p.reuse(ctx, a, api, req)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}

	// Quota
	active, err := p.store.CountActiveDeployments(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count deployments of tenant %s: %w", req.TenantID, err)
	}
	if limit := LimitForTier(tier); active >= limit {
		return nil, fmt.Errorf("%w: tenant %s has %d of %d active deployments (tier %s)",
			ErrQuotaExceeded, req.TenantID, active, limit, tier)
	}

	// Launch
	a.enter(StateLaunching, "")
	instanceID, err := api.RunInstance(ctx, ec2.RunRequest{
		ImageID:          imageID,
		InstanceType:     size,
		KeyPairName:      req.Instance.KeyPairName,
		SecurityGroupIDs: req.Instance.SecurityGroupIDs,
		SubnetID:         req.Instance.SubnetID,
		UserData:         req.Instance.UserData,
		Tags: tags.NewBuilder(req.TenantID).
			WithTier(string(tier)).
			WithPipelineIfSet(req.PipelineID).
			WithName(tags.InstanceName(req.TenantID, req.PipelineID)).
			Build(),
	})
	if err != nil {
		return nil, a.fail(fmt.Errorf("%w for tenant %s: %w", ErrLaunchFailed, req.TenantID, err), "")
	}
	if instanceID == "" {
		return nil, a.fail(fmt.Errorf("%w for tenant %s: no instance id returned", ErrLaunchFailed, req.TenantID), "")
	}
	LogResourceCreated(a.observer, string(StateLaunching), "instance", instanceID)

	// Wait for running
	a.enter(StatePending, instanceID)
	inst, err := p.waitRunning(ctx, a, api, instanceID)
	if err != nil {
		return nil, a.fail(err, instanceID)
	}
	a.enter(StateRunning, instanceID)

	// Wait for SSH
	a.enter(StateSSHWaiting, instanceID)
	if err := p.waitSSH(ctx, a, api, inst, req.Instance.SecurityGroupIDs); err != nil {
		return nil, a.fail(err, instanceID)
	}

	key := p.validateKey(ctx, a, req, inst)

	// Persist
	now := p.now().UTC().Format(time.RFC3339)
	dep := &store.Deployment{
		TenantID:   req.TenantID,
		InstanceID: instanceID,
		PipelineID: req.PipelineID,
		Size:       size,
		Region:     req.Instance.Region,
		Metadata: map[string]string{
			store.MetaImageID:     imageID,
			store.MetaKeyPairName: req.Instance.KeyPairName,
			store.MetaKeyName:     req.Instance.KeyPairName,
			store.MetaPublicIP:    inst.PublicIP,
			store.MetaCreatedAt:   now,
		},
	}
	if err := p.store.CreateDeployment(ctx, dep); err != nil {
		return nil, a.fail(fmt.Errorf("failed to record deployment of instance %s: %w", instanceID, err), instanceID)
	}
	LogResourceCreated(a.observer, string(StateSSHWaiting), "deployment", dep.ID)

	if req.PipelineID != "" {
		p.bestEffort("pipeline_config_backfill", func() error {
			return p.backfillPipelineConfig(ctx, req.PipelineID, req.Instance.KeyPairName)
		})
	}
	if key != nil {
		p.bestEffort("key_association", func() error {
			return p.keys.AssociateWithDeployment(ctx, key.ID, dep.ID)
		})
	}
	if p.billing != nil {
		p.bestEffort("billing_start", func() error {
			return p.billing.TrackDeploymentStart(ctx, dep.ID)
		})
	}

	a.enter(StateReady, instanceID)
	return &Result{
		InstanceID:    instanceID,
		PublicAddress: inst.PublicIP,
		DeploymentID:  dep.ID,
		State:         StateReady,
	}, nil
}

// reuse returns the pipeline's active instance when it is running. A nil
// result means fresh provisioning should proceed.
func (p *Provisioner) reuse(ctx context.Context, a *attempt, api ec2.API, req Request) (*Result, error) {
	dep, err := p.store.FindActiveDeployment(ctx, req.TenantID, req.PipelineID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up deployment of pipeline %s: %w", req.PipelineID, err)
	}

	inst, err := api.DescribeInstance(ctx, dep.InstanceID)
	if err != nil {
		p.logger.Info("active deployment's instance cannot be described, provisioning a new one",
			"deployment", dep.ID, "instance", dep.InstanceID, "error", err.Error())
		return nil, nil
	}
	if inst.State != ec2.StateRunning {
		p.logger.Info("active deployment's instance is not running, provisioning a new one",
			"deployment", dep.ID, "instance", dep.InstanceID, "state", string(inst.State))
		return nil, nil
	}

	address := inst.PublicIP
	if address == "" {
		address = dep.Metadata[store.MetaPublicIP]
	}
	a.enter(StateReused, inst.ID)
	LogResourceExists(a.observer, string(StateReused), "instance", inst.ID)
	return &Result{
		InstanceID:    inst.ID,
		PublicAddress: address,
		DeploymentID:  dep.ID,
		Reused:        true,
		State:         StateReused,
	}, nil
}

// waitRunning polls until the instance runs with a public address.
func (p *Provisioner) waitRunning(ctx context.Context, a *attempt, api ec2.API, instanceID string) (*ec2.Instance, error) {
	var inst *ec2.Instance
	max := p.timeouts.RunningMaxAttempts
	used := 0

	err := retry.Poll(ctx, p.timeouts.RunningPollInterval, max, func(ctx context.Context, attempt int) (bool, error) {
		used = attempt
		a.observer.Progress(string(StatePending), attempt, max)

		got, err := api.DescribeInstance(ctx, instanceID)
		if err != nil {
			if ec2.IsNotFound(err) || ec2.IsThrottled(err) {
				return false, nil
			}
			return false, fmt.Errorf("failed to describe instance %s: %w", instanceID, err)
		}
		if got.State.IsTerminal() || got.State == ec2.StateStopping {
			return false, fmt.Errorf("%w: instance %s is %s", ErrInstanceEnteredBadState, instanceID, got.State)
		}
		if got.State == ec2.StateRunning && got.PublicIP != "" {
			inst = got
			return true, nil
		}
		return false, nil
	})
	a.metrics.recordPollAttempts(StatePending, used)

	if errors.Is(err, retry.ErrExhausted) {
		return nil, fmt.Errorf("%w: instance %s after %d attempts", ErrProvisionTimeout, instanceID, max)
	}
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// waitSSH polls the SSH port. Halfway through the budget it logs a
// security group diagnostic.
func (p *Provisioner) waitSSH(ctx context.Context, a *attempt, api ec2.API, inst *ec2.Instance, requestedGroups []string) error {
	max := p.timeouts.SSHMaxAttempts
	halfway := max / 2
	if halfway < 1 {
		halfway = 1
	}
	used := 0

	err := retry.Poll(ctx, p.timeouts.SSHPollInterval, max, func(ctx context.Context, attempt int) (bool, error) {
		used = attempt
		a.observer.Progress(string(StateSSHWaiting), attempt, max)

		open, err := p.prober.IsPortOpen(ctx, inst.PublicIP, p.sshPort, p.timeouts.PortProbeTimeout)
		if err != nil {
			return false, fmt.Errorf("failed to probe ssh on %s: %w", inst.PublicIP, err)
		}
		if open {
			return true, nil
		}
		if attempt == halfway && max > 1 {
			p.bestEffort("security_group_diagnostic", func() error {
				return p.diagnoseSecurityGroups(ctx, a, api, inst, requestedGroups)
			})
		}
		return false, nil
	})
	a.metrics.recordPollAttempts(StateSSHWaiting, used)

	if errors.Is(err, retry.ErrExhausted) {
		return fmt.Errorf("%w: instance %s (%s) after %d attempts", ErrSSHTimeout, inst.ID, inst.PublicIP, max)
	}
	return err
}

// diagnoseSecurityGroups logs whether any attached group admits the SSH
// port.
func (p *Provisioner) diagnoseSecurityGroups(ctx context.Context, a *attempt, api ec2.API, inst *ec2.Instance, requestedGroups []string) error {
	groupIDs := inst.SecurityGroupIDs
	if len(groupIDs) == 0 {
		groupIDs = requestedGroups
	}
	if len(groupIDs) == 0 {
		LogWarning(a.observer, string(StateSSHWaiting), inst.ID, "no security groups attached; the default group may block ssh")
		return nil
	}

	groups, err := api.DescribeSecurityGroups(ctx, groupIDs)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if g.AllowsTCPPort(int32(p.sshPort)) {
			p.logger.Info("security group admits ssh, instance may still be booting",
				"instance", inst.ID, "group", g.ID, "port", p.sshPort)
			return nil
		}
	}
	LogWarning(a.observer, string(StateSSHWaiting), inst.ID,
		fmt.Sprintf("no ingress rule in %v admits tcp/%d", groupIDs, p.sshPort))
	return nil
}

// validateKey resolves and verifies the instance key. Failures are
// warnings only.
func (p *Provisioner) validateKey(ctx context.Context, a *attempt, req Request, inst *ec2.Instance) *store.SSHKey {
	if p.keys == nil {
		return nil
	}
	key, err := p.keys.GetForInstance(ctx, inst.ID, req.Instance.Region, req.Credentials)
	if err != nil {
		LogWarning(a.observer, string(StateSSHWaiting), inst.ID, fmt.Sprintf("could not resolve key: %v", err))
		return nil
	}
	if !p.keys.VerifyKey(ctx, key.Content, key.KeyPairName, inst.PublicIP) {
		LogWarning(a.observer, string(StateSSHWaiting), inst.ID,
			fmt.Sprintf("key pair %s could not be verified against %s", key.KeyPairName, inst.PublicIP))
	}
	return key
}

// backfillPipelineConfig records the key pair name in the pipeline's
// deployment config and reconciles its key copies.
func (p *Provisioner) backfillPipelineConfig(ctx context.Context, pipelineID, keyPairName string) error {
	blob, err := p.store.GetDeploymentConfig(ctx, pipelineID)
	if err != nil {
		return err
	}
	cfg, err := deployconfig.Parse(blob)
	if err != nil {
		return err
	}

	changed := cfg.SetKeyPairName(keyPairName)
	changed = cfg.Reconcile() || changed
	if !changed {
		return nil
	}

	out, err := cfg.Bytes()
	if err != nil {
		return err
	}
	return p.store.SaveDeploymentConfig(ctx, pipelineID, out)
}

// Terminate terminates the deployment's instance and marks the record
// terminated. Prior metadata is kept; terminatedAt is added.
func (p *Provisioner) Terminate(ctx context.Context, deploymentID string, creds ec2.Credentials) (err error) {
	defer func() { p.metrics.recordTermination(err) }()

	dep, err := p.store.GetDeployment(ctx, deploymentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrDeploymentNotFound, deploymentID)
		}
		return fmt.Errorf("failed to load deployment %s: %w", deploymentID, err)
	}

	observer := p.observer.WithFields(map[string]string{"tenant": dep.TenantID, "deployment": dep.ID})

	api, err := p.connector.Connect(ctx, dep.Region, creds)
	if err != nil {
		return fmt.Errorf("failed to connect to region %s: %w", dep.Region, err)
	}

	LogResourceDeleting(observer, "terminate", "instance", dep.InstanceID)
	if err := api.TerminateInstance(ctx, dep.InstanceID); err != nil {
		return fmt.Errorf("failed to terminate instance %s of deployment %s: %w", dep.InstanceID, dep.ID, err)
	}
	LogResourceDeleted(observer, "terminate", "instance", dep.InstanceID)

	if p.billing != nil {
		p.bestEffort("billing_end", func() error {
			return p.billing.TrackDeploymentEnd(ctx, dep.ID)
		})
	}

	metadata := make(map[string]string, len(dep.Metadata)+1)
	maps.Copy(metadata, dep.Metadata)
	metadata[store.MetaTerminatedAt] = p.now().UTC().Format(time.RFC3339)
	dep.Metadata = metadata
	dep.Status = store.StatusTerminated

	p.bestEffort("deployment_status_update", func() error {
		return p.store.UpdateDeployment(ctx, dep)
	})
	return nil
}

// bestEffort runs fn through the shared helper and counts failures.
func (p *Provisioner) bestEffort(operation string, fn func() error) {
	if !bestEffort(p.logger, operation, fn) {
		p.metrics.recordBestEffortFailure(operation)
	}
}
