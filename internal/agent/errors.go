package agent

import "errors"

var (
	// ErrNoCachedCatalog is returned by a cached cycle when the node has
	// never cached a catalog.
	ErrNoCachedCatalog = errors.New("no cached catalog")

	// ErrRunInProgress is returned when another cycle holds the run lock.
	ErrRunInProgress = errors.New("another apply cycle is in progress")
)
