package provisioning

import (
	"errors"
	"fmt"

	"github.com/imamik/ec2keeper/internal/store"
)

var (
	// ErrTierNotEligible is returned when the tenant's tier may not
	// provision instances.
	ErrTierNotEligible = errors.New("tier not eligible for provisioning")

	// ErrQuotaExceeded is returned when the tenant already holds its
	// tier's maximum of active deployments.
	ErrQuotaExceeded = errors.New("deployment quota exceeded")

	// ErrLaunchFailed is returned when the run request fails or yields no
	// instance id.
	ErrLaunchFailed = errors.New("instance launch failed")

	// ErrInstanceEnteredBadState is returned when a launched instance
	// reports terminated, shutting-down, stopping, or stopped.
	ErrInstanceEnteredBadState = errors.New("instance entered bad state")

	// ErrProvisionTimeout is returned when the instance is not running
	// within the attempt budget.
	ErrProvisionTimeout = errors.New("timed out waiting for instance to run")

	// ErrSSHTimeout is returned when the SSH port does not open within the
	// attempt budget.
	ErrSSHTimeout = errors.New("timed out waiting for ssh")

	// ErrDeploymentNotFound matches store.ErrNotFound as well.
	ErrDeploymentNotFound = fmt.Errorf("deployment %w", store.ErrNotFound)
)

// errorReason maps an error to a metrics label.
func errorReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrTierNotEligible):
		return "tier_not_eligible"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrLaunchFailed):
		return "launch_failed"
	case errors.Is(err, ErrInstanceEnteredBadState):
		return "bad_state"
	case errors.Is(err, ErrProvisionTimeout):
		return "provision_timeout"
	case errors.Is(err, ErrSSHTimeout):
		return "ssh_timeout"
	case errors.Is(err, ErrDeploymentNotFound):
		return "deployment_not_found"
	default:
		return "error"
	}
}
