package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/imamik/ec2keeper/internal/deployconfig"
	"github.com/imamik/ec2keeper/internal/store"
)

// PipelinesRegister handles pipelines register. The deployment config
// file is optional; its key copies are reconciled before saving.
func PipelinesRegister(ctx context.Context, opts Options, pipelineID, tenantID, configFile string) (err error) {
	var blob []byte
	if configFile != "" {
		// #nosec G304
		data, err := os.ReadFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to read deployment config: %w", err)
		}
		cfg, err := deployconfig.Parse(data)
		if err != nil {
			return err
		}
		cfg.Reconcile()
		if blob, err = cfg.Bytes(); err != nil {
			return err
		}
	}

	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer closeRuntime(rt, &err)

	if err := rt.store.UpsertPipeline(ctx, store.Pipeline{
		ID:               pipelineID,
		TenantID:         tenantID,
		DeploymentConfig: blob,
	}); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Registered pipeline %s for tenant %s\n", pipelineID, tenantID)
	return nil
}

// PipelinesShow handles pipelines show. It prints the stored deployment
// config.
func PipelinesShow(ctx context.Context, opts Options, pipelineID string) (err error) {
	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer closeRuntime(rt, &err)

	blob, err := rt.store.GetDeploymentConfig(ctx, pipelineID)
	if err != nil {
		return fmt.Errorf("failed to load pipeline %s: %w", pipelineID, err)
	}
	_, err = fmt.Fprintln(stdout, string(blob))
	return err
}
