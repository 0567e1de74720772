package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrInvalidOpportunity marks an opportunity that fails validation, such
	// as a score outside [0,1] or an unknown kind.
	ErrInvalidOpportunity = errors.New("invalid opportunity")

	// ErrDataSource marks a failed snapshot fetch. Recoverable: the cycle
	// falls back to cached snapshots and skips pools with no cache entry.
	ErrDataSource = errors.New("market data source unavailable")

	// ErrEnhancement marks a failed score-enhancement stage. Recoverable:
	// the engine passes through the unmodified detector output.
	ErrEnhancement = errors.New("score enhancement failed")

	// ErrDispatch marks a failed alert delivery. Logged and counted, never
	// retried within the same cycle.
	ErrDispatch = errors.New("alert dispatch failed")

	// ErrConfiguration marks invalid threshold or cap values at startup.
	// Fatal: the scheduler must not start.
	ErrConfiguration = errors.New("invalid configuration")
)
