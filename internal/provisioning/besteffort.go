package provisioning

import (
	"fmt"

	"github.com/go-logr/logr"
)

// bestEffort runs fn, logging any error or panic instead of returning it.
// It reports whether fn succeeded.
func bestEffort(logger logr.Logger, name string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Errorf("panic: %v", r), "best-effort operation failed", "operation", name)
			ok = false
		}
	}()

	if err := fn(); err != nil {
		logger.Error(err, "best-effort operation failed", "operation", name)
		return false
	}
	return true
}
