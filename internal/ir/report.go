package ir

// RunMode selects where an apply cycle gets its catalog.
type RunMode string

const (
	ModeLive   RunMode = "live"   // Fresh compile, then cache
	ModeCached RunMode = "cached" // Replay the node's cached catalog
	ModeLocal  RunMode = "local"  // Catalog supplied directly, never cached
)

// RunStatus summarizes the result of an apply cycle.
type RunStatus string

const (
	StatusNoChanges      RunStatus = "no changes"
	StatusChangesApplied RunStatus = "changes applied"
	StatusFailures       RunStatus = "failures"
)

// RunReport is the persisted summary of one finished apply cycle.
type RunReport struct {
	Node         string         `json:"node" cbor:"node"`
	VersionToken string         `json:"version_token" cbor:"version_token"`
	Mode         RunMode        `json:"mode" cbor:"mode"`
	Status       RunStatus      `json:"status" cbor:"status"`
	Changed      []ChangedEntry `json:"changed,omitempty" cbor:"changed,omitempty"`
	Failed       []FailedEntry  `json:"failed,omitempty" cbor:"failed,omitempty"`
	FinishedAt   string         `json:"finished_at" cbor:"finished_at"` // RFC 3339, UTC
}

// ChangedEntry records one path the cycle changed.
type ChangedEntry struct {
	Path   string `json:"path" cbor:"path"`
	Action string `json:"action" cbor:"action"`
}

// FailedEntry records one resource the cycle could not converge.
type FailedEntry struct {
	Path   string `json:"path" cbor:"path"`
	Code   string `json:"code" cbor:"code"`
	Reason string `json:"reason" cbor:"reason"`
}
