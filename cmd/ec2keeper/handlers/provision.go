package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/ec2keeper/internal/billing"
	"github.com/imamik/ec2keeper/internal/provisioning"
)

// ProvisionArgs are the flags of the provision command.
type ProvisionArgs struct {
	TenantID   string
	PipelineID string
	JSON       bool
}

// ProvisionOutput is the JSON shape of a provisioning result.
type ProvisionOutput struct {
	InstanceID    string `json:"instanceId"`
	PublicAddress string `json:"publicAddress"`
	DeploymentID  string `json:"deploymentId"`
	Reused        bool   `json:"reused"`
	State         string `json:"state"`
}

// newProvisioner wires a Provisioner onto the runtime.
func newProvisioner(rt *runtime) *provisioning.Provisioner {
	p := provisioning.NewProvisioner(provisioning.Dependencies{
		Store:     rt.store,
		Connector: rt.connector,
		Prober:    rt.prober,
		Keys:      rt.keys,
		Billing:   billing.NewTracker(rt.store, rt.logger),
		Metrics:   rt.metrics,
		Logger:    rt.logger,
	}, rt.timeouts)
	p.SetSSHPort(rt.cfg.SSH.Port)
	return p
}

// Provision handles the provision command.
//
// It returns a reachable instance for the tenant, reusing the pipeline's
// running instance when one exists.
func Provision(ctx context.Context, opts Options, args ProvisionArgs) (err error) {
	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer closeRuntime(rt, &err)

	if err := rt.cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	userData, err := rt.cfg.UserData()
	if err != nil {
		return err
	}

	res, err := newProvisioner(rt).Provision(ctx, provisioning.Request{
		TenantID:   args.TenantID,
		PipelineID: args.PipelineID,
		Instance: provisioning.InstanceConfig{
			Region:           rt.cfg.Region,
			ImageID:          rt.cfg.ImageID,
			KeyPairName:      rt.cfg.KeyPairName,
			SecurityGroupIDs: rt.cfg.SecurityGroupIDs,
			SubnetID:         rt.cfg.SubnetID,
			UserData:         userData,
		},
		Credentials: rt.creds,
	})
	if err != nil {
		return fmt.Errorf("provisioning failed: %w", err)
	}

	out := ProvisionOutput{
		InstanceID:    res.InstanceID,
		PublicAddress: res.PublicAddress,
		DeploymentID:  res.DeploymentID,
		Reused:        res.Reused,
		State:         string(res.State),
	}
	if args.JSON {
		return printJSON(out)
	}

	verb := "Provisioned"
	if out.Reused {
		verb = "Reusing"
	}
	fmt.Fprintf(stdout, "%s instance %s at %s (deployment %s)\n", verb, out.InstanceID, out.PublicAddress, out.DeploymentID)
	return nil
}
