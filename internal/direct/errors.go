package direct

import "errors"

var (
	// ErrInvalidTiling reports a tiling the chosen strategy cannot lay out.
	ErrInvalidTiling = errors.New("invalid tiling")
	// ErrCandidateFailed reports a candidate that failed to build or run.
	ErrCandidateFailed = errors.New("candidate failed")
)
