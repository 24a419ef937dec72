package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that every field needed to launch an instance is set.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Region) == "" {
		errs = append(errs, errors.New("region is required"))
	}
	if strings.TrimSpace(c.ImageID) == "" {
		errs = append(errs, errors.New("imageId is required"))
	}
	if strings.TrimSpace(c.KeyPairName) == "" {
		errs = append(errs, errors.New("keyPairName is required"))
	}
	for i, sg := range c.SecurityGroupIDs {
		if !strings.HasPrefix(sg, "sg-") {
			errs = append(errs, fmt.Errorf("securityGroupIds[%d]: %q is not a security group id", i, sg))
		}
	}
	if c.SubnetID != "" && !strings.HasPrefix(c.SubnetID, "subnet-") {
		errs = append(errs, fmt.Errorf("subnetId: %q is not a subnet id", c.SubnetID))
	}
	if c.SSH.Port < 1 || c.SSH.Port > 65535 {
		errs = append(errs, fmt.Errorf("ssh.port: %d out of range", c.SSH.Port))
	}

	return errors.Join(errs...)
}
