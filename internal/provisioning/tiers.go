package provisioning

import (
	"fmt"

	"github.com/imamik/ec2keeper/internal/store"
)

// TierSizes maps each eligible tier to its instance type. The free tier
// is absent: it may not provision.
var TierSizes = map[store.Tier]string{
	store.TierBasic:        "t3.small",
	store.TierProfessional: "t3.medium",
	store.TierEnterprise:   "t3.large",
}

// TierLimits is the maximum number of concurrently active deployments per
// tier.
var TierLimits = map[store.Tier]int{
	store.TierFree:         0,
	store.TierBasic:        1,
	store.TierProfessional: 2,
	store.TierEnterprise:   5,
}

// SizeForTier returns the instance type for a tier, or an error matching
// ErrTierNotEligible for free and unknown tiers.
func SizeForTier(tier store.Tier) (string, error) {
	size, ok := TierSizes[tier]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrTierNotEligible, tier)
	}
	return size, nil
}

// LimitForTier returns the concurrency limit for a tier. Unknown tiers get
// zero.
func LimitForTier(tier store.Tier) int {
	return TierLimits[tier]
}
