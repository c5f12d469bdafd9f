package reclaim

import (
	"fmt"
	"strings"
)

const maxKeyLength = 1024

// ValidateOrphan checks an orphan before it is queued or processed.
func ValidateOrphan(o Orphan) error {
	if strings.TrimSpace(o.Key) == "" {
		return fmt.Errorf("key is required")
	}
	if len(o.Key) > maxKeyLength {
		return fmt.Errorf("key too long")
	}
	if strings.Contains(o.Key, "..") || strings.HasPrefix(o.Key, "/") {
		return fmt.Errorf("key must be a relative object key")
	}
	switch o.Reason {
	case ReasonCompensation, ReasonRetired:
	default:
		return fmt.Errorf("unknown reason %q", o.Reason)
	}
	if o.QueuedAt <= 0 {
		return fmt.Errorf("queued_at must be set")
	}
	return nil
}
