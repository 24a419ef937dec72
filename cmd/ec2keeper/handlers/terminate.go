package handlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/imamik/ec2keeper/internal/util/async"
)

// Terminate handles the terminate command.
//
// Deployments are terminated concurrently. Every failure is reported; one
// failed termination does not stop the others.
func Terminate(ctx context.Context, opts Options, deploymentIDs []string) (err error) {
	if len(deploymentIDs) == 0 {
		return fmt.Errorf("at least one deployment id is required")
	}

	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer closeRuntime(rt, &err)

	p := newProvisioner(rt)
	var mu sync.Mutex
	tasks := make([]async.Task, 0, len(deploymentIDs))
	for _, id := range deploymentIDs {
		tasks = append(tasks, async.Task{
			Name: id,
			Func: func(ctx context.Context) error {
				if err := p.Terminate(ctx, id, rt.creds); err != nil {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintf(stdout, "Terminated deployment %s\n", id)
				return nil
			},
		})
	}

	if err := async.RunParallel(ctx, tasks); err != nil {
		return fmt.Errorf("termination failed: %w", err)
	}
	return nil
}
