package adcp

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingDepth means the record has neither a depth nor a pressure
	// series, so no bin can be placed in the water column.
	ErrMissingDepth = errors.New("no DEPTH, PRES_REL or PRES variable")

	// ErrMissingSiteDepth means a downward looking instrument has no site
	// depth metadata for the side-lobe test.
	ErrMissingSiteDepth = errors.New("site_nominal_depth and site_depth_at_deployment are both unset")

	ErrNoPings                 = errors.New("record has no pings")
	ErrNoBins                  = errors.New("record has no bins")
	ErrMissingBinSize          = errors.New("bin size unknown: set bin_size or provide at least two bins")
	ErrShapeMismatch           = errors.New("variable shape does not match record dimensions")
	ErrNonMonotonicBins        = errors.New("bin depth is not monotonic with bin index")
	ErrInconsistentOrientation = errors.New("bin heights mix upward and downward looking values")
)

// MissingVariableError reports an absent variable that a test needs.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("variable %s not present", e.Name)
}
