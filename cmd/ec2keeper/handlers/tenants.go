package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/imamik/ec2keeper/internal/billing"
	"github.com/imamik/ec2keeper/internal/provisioning"
	"github.com/imamik/ec2keeper/internal/store"
)

// TenantsSetTier handles tenants set-tier.
func TenantsSetTier(ctx context.Context, opts Options, tenantID, tier string) (err error) {
	t := store.Tier(tier)
	if _, known := provisioning.TierLimits[t]; !known {
		return fmt.Errorf("unknown tier %q (want free, basic, professional, or enterprise)", tier)
	}

	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer closeRuntime(rt, &err)

	if err := rt.store.SetTenantTier(ctx, tenantID, t); err != nil {
		return err
	}

	size, sizeErr := provisioning.SizeForTier(t)
	if sizeErr != nil {
		size = "none"
	}
	fmt.Fprintf(stdout, "Tenant %s is on tier %s (instance type %s, up to %d active deployments)\n",
		tenantID, t, size, provisioning.LimitForTier(t))
	return nil
}

// UsageOutput is the JSON shape of a tenant usage report.
type UsageOutput struct {
	TenantID    string            `json:"tenantId"`
	Deployments []DeploymentUsage `json:"deployments"`
	Total       string            `json:"total"`
}

// DeploymentUsage is the billed runtime of one deployment.
type DeploymentUsage struct {
	DeploymentID string `json:"deploymentId"`
	InstanceID   string `json:"instanceId"`
	Status       string `json:"status"`
	Usage        string `json:"usage"`
}

// TenantsUsage handles tenants usage. It sums the billed runtime of the
// tenant's deployments.
func TenantsUsage(ctx context.Context, opts Options, tenantID string, jsonOutput bool) (err error) {
	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer closeRuntime(rt, &err)

	deps, err := rt.store.ListDeployments(ctx, tenantID)
	if err != nil {
		return err
	}

	tracker := billing.NewTracker(rt.store, rt.logger)
	out := UsageOutput{TenantID: tenantID, Deployments: []DeploymentUsage{}}
	var total time.Duration
	for _, d := range deps {
		used, err := tracker.Usage(ctx, d.ID)
		if err != nil {
			return err
		}
		total += used
		out.Deployments = append(out.Deployments, DeploymentUsage{
			DeploymentID: d.ID,
			InstanceID:   d.InstanceID,
			Status:       string(d.Status),
			Usage:        used.Round(time.Second).String(),
		})
	}
	out.Total = total.Round(time.Second).String()

	if jsonOutput {
		return printJSON(out)
	}
	for _, d := range out.Deployments {
		fmt.Fprintf(stdout, "  %-38s %-20s %-10s %s\n", d.DeploymentID, d.InstanceID, d.Status, d.Usage)
	}
	fmt.Fprintf(stdout, "Total usage of tenant %s: %s\n", tenantID, out.Total)
	return nil
}
